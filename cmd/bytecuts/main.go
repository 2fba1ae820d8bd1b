// Command bytecuts loads a ruleset and packet trace, constructs a
// ByteCuts classifier, classifies every packet, and writes a stats CSV
// (plus, optionally, a per-packet results file).
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drjdaly/bytecuts/internal/classifier"
	"github.com/drjdaly/bytecuts/internal/config"
	"github.com/drjdaly/bytecuts/internal/ruleio"
	"github.com/drjdaly/bytecuts/internal/stats"
)

var (
	rulesPath   string
	packetsPath string
	statsPath   string
	resultsPath string
	bcSet       []string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "bytecuts",
	Short: "Construct a ByteCuts classifier and classify a packet trace",
	RunE:  runClassify,
}

func init() {
	rootCmd.SilenceUsage = true
	flags := rootCmd.Flags()
	flags.StringVar(&rulesPath, "rules", "", "path to a ClassBench or MSU rule file (required)")
	flags.StringVar(&packetsPath, "packets", "", "path to a packet trace file (required)")
	flags.StringVar(&statsPath, "stats", "", "path to write the stats CSV to (required)")
	flags.StringVar(&resultsPath, "results", "", "optional path to write one classified priority per packet")
	flags.StringArrayVar(&bcSet, "set", nil, "override a BC.* option, e.g. --set BC.BadFraction=0.05 (repeatable)")
	flags.BoolVar(&verbose, "verbose", false, "enable development-mode structured logging")

	for _, name := range []string{"rules", "packets", "stats"} {
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

func runClassify(cmd *cobra.Command, args []string) error {
	logger := newLogger(verbose)
	defer func() { _ = logger.Sync() }()

	opt := config.FromMap(parseSet(bcSet))
	logger.Infow("configuration", "badFraction", opt.BadFraction, "turningPoint", opt.TurningPoint, "minFraction", opt.MinFraction)

	rules, err := ruleio.ReadRuleFile(rulesPath)
	if err != nil {
		return err
	}
	logger.Infow("loaded rules", "count", len(rules), "path", rulesPath)

	packets, err := ruleio.ReadPackets(packetsPath)
	if err != nil {
		return err
	}
	logger.Infow("loaded packets", "count", len(packets), "path", packetsPath)

	c := classifier.New(opt)

	buildStart := time.Now()
	c.Construct(rules)
	buildDur := time.Since(buildStart)
	logger.Infow("construction complete", "duration", buildDur, "tables", c.NumTables(), "memBytes", c.MemBytes())

	results := make([]int, len(packets))
	classifyStart := time.Now()
	for i, p := range packets {
		results[i] = c.Classify(p)
	}
	classifyDur := time.Since(classifyStart)
	logger.Infow("classification complete", "duration", classifyDur)

	if resultsPath != "" {
		if err := ruleio.WriteResults(resultsPath, results); err != nil {
			return err
		}
		logger.Infow("wrote results", "path", resultsPath)
	}

	summary := stats.Summarize("ByteCuts", c, buildDur, classifyDur, len(rules))

	f, err := os.Create(statsPath)
	if err != nil {
		return fmt.Errorf("creating stats file %s: %w", statsPath, err)
	}
	defer f.Close()
	if err := stats.WriteCSV(f, summary); err != nil {
		return fmt.Errorf("writing stats file %s: %w", statsPath, err)
	}
	logger.Infow("wrote stats", "path", statsPath)
	return nil
}

// parseSet turns a list of "BC.Name=value" flags into the flat
// string-to-string map config.FromMap expects.
func parseSet(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		m[kv[0]] = kv[1]
	}
	return m
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
