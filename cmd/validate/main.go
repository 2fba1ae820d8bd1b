// Command validate cross-checks classifiers' result files against each
// other and reports the first few packets on which they disagree, each
// alongside a fresh linear-scan truth computation. The truth value is
// reported, not compared; with a single result file no disagreement can
// be found.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drjdaly/bytecuts/internal/rule"
	"github.com/drjdaly/bytecuts/internal/ruleio"
)

// disagreeLimit caps how many disagreements get reported before
// validation aborts.
const disagreeLimit = 5

var (
	rulesPath   string
	packetsPath string
	resultFlags []string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "validate",
	Short: "Cross-check classifier result files against each other, reporting linear-scan truth on disagreement",
	RunE:  runValidate,
}

func init() {
	rootCmd.SilenceUsage = true
	flags := rootCmd.Flags()
	flags.StringVar(&rulesPath, "rules", "", "path to the rule file the results were classified against (required)")
	flags.StringVar(&packetsPath, "packets", "", "path to the packet trace the results were classified against (required)")
	flags.StringArrayVar(&resultFlags, "result", nil, "name=path pair naming one algorithm's result file (repeatable, at least one required)")
	flags.BoolVar(&verboseFlag, "verbose", false, "enable development-mode structured logging")

	for _, name := range []string{"rules", "packets"} {
		if err := rootCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger := newLogger(verboseFlag)
	defer func() { _ = logger.Sync() }()

	if len(resultFlags) == 0 {
		return fmt.Errorf("at least one --result name=path is required")
	}

	// The rule file and the packet trace are independent inputs; load
	// them concurrently rather than one after the other.
	var rules []rule.Rule
	var packets []rule.Packet
	var rulesErr, packetsErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rules, rulesErr = ruleio.ReadRuleFile(rulesPath)
	}()
	go func() {
		defer wg.Done()
		packets, packetsErr = ruleio.ReadPackets(packetsPath)
	}()
	wg.Wait()
	if rulesErr != nil {
		return rulesErr
	}
	if packetsErr != nil {
		return packetsErr
	}
	logger.Infow("loaded rules", "count", len(rules), "path", rulesPath)
	logger.Infow("loaded packets", "count", len(packets), "path", packetsPath)

	algs := make(map[string][]int, len(resultFlags))
	for _, rf := range resultFlags {
		kv := strings.SplitN(rf, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("--result must be name=path, got %q", rf)
		}
		name, path := kv[0], kv[1]
		res, err := ruleio.ReadResults(path)
		if err != nil {
			return err
		}
		if len(res) != len(packets) {
			return fmt.Errorf("%s: %d results, want %d (one per packet)", name, len(res), len(packets))
		}
		algs[name] = res
	}

	names := make([]string, 0, len(algs))
	for name := range algs {
		names = append(names, name)
	}
	sort.Strings(names)

	numDisagree := 0
	for i := range packets {
		want := algs[names[0]][i]
		agree := true
		for _, name := range names[1:] {
			if algs[name][i] != want {
				agree = false
				break
			}
		}
		if agree {
			continue
		}

		numDisagree++
		if numDisagree > disagreeLimit {
			return fmt.Errorf("exceeded disagreement limit (%d)", disagreeLimit)
		}

		fields := make([]interface{}, 0, 2*len(names)+4)
		fields = append(fields, "index", i, "packet", packets[i])
		for _, name := range names {
			fields = append(fields, name, algs[name][i])
		}
		fields = append(fields, "truth", trueResult(rules, packets[i]))
		logger.Warnw("disagreement", fields...)
	}

	if numDisagree == 0 {
		logger.Info("all classifiers are in accord")
	}
	return nil
}

// trueResult computes the highest-priority rule matching p by linear
// scan, independent of rule order or whether the loader produced
// descending-priority order.
func trueResult(rules []rule.Rule, p rule.Packet) int {
	best := rule.NoMatch
	for i := range rules {
		if rules[i].Matches(p) && rules[i].Priority > best {
			best = rules[i].Priority
		}
	}
	return best
}

func newLogger(verbose bool) *zap.SugaredLogger {
	var l *zap.Logger
	if verbose {
		l, _ = zap.NewDevelopment()
	} else {
		l, _ = zap.NewProduction()
	}
	return l.Sugar()
}
