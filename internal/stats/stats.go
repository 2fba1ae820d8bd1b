// Package stats summarizes a completed classifier construction and
// classification run into a single CSV row.
package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/drjdaly/bytecuts/internal/classifier"
)

// Header is the stats CSV column order.
var Header = []string{
	"Name", "Build", "Classify", "Memory",
	"MaxHeight", "SumHeight", "MaxCost", "SumCost", "Trees",
	"FirstSize", "Table90", "Table95", "Table99",
	"Heights", "Costs", "Priors", "BadTrees", "GoodTrees",
}

// Summary is one run's worth of stats row data.
type Summary struct {
	Name     string
	Build    time.Duration
	Classify time.Duration
	Memory   int

	MaxHeight, SumHeight int
	MaxCost, SumCost     int
	Trees                int

	// FirstSize is RulesInTable(0) expressed as a fraction of the
	// original ruleset, not a raw count.
	FirstSize float64

	// Table90/95/99 are the smallest prefix of trees (walked in
	// construction order) whose cumulative RulesInTable reaches
	// 90/95/99% of the original ruleset size.
	Table90, Table95, Table99 int

	Heights, Costs, Priors []int

	BadTrees, GoodTrees int
}

// Summarize reads every reported metric off c, given the original rule
// count and the measured build/classify wall time.
func Summarize(name string, c *classifier.Classifier, build, classify time.Duration, totalRules int) Summary {
	s := Summary{
		Name:      name,
		Build:     build,
		Classify:  classify,
		Memory:    c.MemBytes(),
		Trees:     c.NumTables(),
		GoodTrees: c.NumGoodTrees(),
		BadTrees:  c.NumBadTrees(),
	}

	for i := 0; i < c.NumTables(); i++ {
		h := c.HeightOfTree(i)
		cost := c.CostOfTree(i)
		s.Heights = append(s.Heights, h)
		s.Costs = append(s.Costs, cost)
		s.Priors = append(s.Priors, c.PriorityOfTable(i))
		s.SumHeight += h
		s.SumCost += cost
		if h > s.MaxHeight {
			s.MaxHeight = h
		}
		if cost > s.MaxCost {
			s.MaxCost = cost
		}
	}

	if c.NumTables() > 0 && totalRules > 0 {
		s.FirstSize = float64(c.RulesInTable(0)) / float64(totalRules)
	}

	s.Table90 = tablesToReach(c, 0.90, totalRules)
	s.Table95 = tablesToReach(c, 0.95, totalRules)
	s.Table99 = tablesToReach(c, 0.99, totalRules)

	return s
}

// tablesToReach walks tables in construction order, accumulating
// RulesInTable until the running total reaches fraction*totalRules, and
// returns the number of tables consumed. Each call restarts the walk
// from the first table.
func tablesToReach(c *classifier.Classifier, fraction float64, totalRules int) int {
	threshold := fraction * float64(totalRules)
	found := 0
	n := 0
	for float64(found) < threshold && n < c.NumTables() {
		found += c.RulesInTable(n)
		n++
	}
	return n
}

// WriteCSV writes a single-row stats CSV (header plus one data row) to
// w, following Header's column order.
func WriteCSV(w io.Writer, s Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	row := []string{
		s.Name,
		strconv.FormatFloat(s.Build.Seconds(), 'f', -1, 64),
		strconv.FormatFloat(s.Classify.Seconds(), 'f', -1, 64),
		strconv.Itoa(s.Memory),
		strconv.Itoa(s.MaxHeight),
		strconv.Itoa(s.SumHeight),
		strconv.Itoa(s.MaxCost),
		strconv.Itoa(s.SumCost),
		strconv.Itoa(s.Trees),
		strconv.FormatFloat(s.FirstSize, 'f', -1, 64),
		strconv.Itoa(s.Table90),
		strconv.Itoa(s.Table95),
		strconv.Itoa(s.Table99),
		joinInts(s.Heights),
		joinInts(s.Costs),
		joinInts(s.Priors),
		strconv.Itoa(s.BadTrees),
		strconv.Itoa(s.GoodTrees),
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, "-")
}
