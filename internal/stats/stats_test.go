package stats

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/drjdaly/bytecuts/internal/classifier"
	"github.com/drjdaly/bytecuts/internal/config"
	"github.com/drjdaly/bytecuts/internal/rule"
)

func buildClassifier(t *testing.T, n int) *classifier.Classifier {
	t.Helper()
	rules := make([]rule.Rule, 0, n)
	for i := 0; i < n; i++ {
		r := rule.Rule{Priority: i}
		sa := rule.Point(i) << 24
		r.Range[rule.SA] = rule.Interval{Low: sa, High: sa}
		r.PrefixLength[rule.SA] = 32
		r.Range[rule.DA] = rule.Interval{Low: 0, High: 0xFFFFFFFF}
		r.Range[rule.SP] = rule.Interval{Low: 0, High: 65535}
		r.Range[rule.DP] = rule.Interval{Low: 0, High: 65535}
		r.Range[rule.Proto] = rule.Interval{Low: 0, High: 255}
		rules = append(rules, r)
	}
	c := classifier.New(config.Default())
	c.Construct(rules)
	return c
}

func TestSummarizeCountsEveryTable(t *testing.T) {
	n := 50
	c := buildClassifier(t, n)
	s := Summarize("ByteCuts", c, 10*time.Millisecond, 2*time.Millisecond, n)

	if s.Trees != c.NumTables() {
		t.Errorf("Trees = %d, want %d", s.Trees, c.NumTables())
	}
	if len(s.Heights) != s.Trees || len(s.Costs) != s.Trees || len(s.Priors) != s.Trees {
		t.Errorf("per-tree slices length mismatch: heights=%d costs=%d priors=%d trees=%d",
			len(s.Heights), len(s.Costs), len(s.Priors), s.Trees)
	}
	if s.GoodTrees+s.BadTrees != s.Trees {
		t.Errorf("GoodTrees+BadTrees = %d, want %d", s.GoodTrees+s.BadTrees, s.Trees)
	}
	if s.FirstSize <= 0 || s.FirstSize > 1 {
		t.Errorf("FirstSize = %f, want in (0,1]", s.FirstSize)
	}
	if s.Table90 == 0 || s.Table90 > s.Trees {
		t.Errorf("Table90 = %d, want in (0,%d]", s.Table90, s.Trees)
	}
	if s.Table90 > s.Table95 || s.Table95 > s.Table99 {
		t.Errorf("expected Table90 <= Table95 <= Table99, got %d %d %d", s.Table90, s.Table95, s.Table99)
	}
}

func TestSummarizeEmptyClassifier(t *testing.T) {
	c := classifier.New(config.Default())
	c.Construct(nil)
	s := Summarize("ByteCuts", c, 0, 0, 0)
	if s.Trees != 0 {
		t.Errorf("expected zero trees, got %d", s.Trees)
	}
	if s.FirstSize != 0 {
		t.Errorf("expected zero FirstSize for an empty classifier, got %f", s.FirstSize)
	}
}

func TestWriteCSVRoundTrips(t *testing.T) {
	c := buildClassifier(t, 20)
	s := Summarize("ByteCuts", c, time.Millisecond, time.Microsecond, 20)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, s); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	r := csv.NewReader(&buf)
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("reading back CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (header + one row)", len(records))
	}
	if len(records[0]) != len(Header) {
		t.Fatalf("header has %d columns, want %d", len(records[0]), len(Header))
	}
	for i, col := range Header {
		if records[0][i] != col {
			t.Errorf("column %d = %q, want %q", i, records[0][i], col)
		}
	}
	if records[1][0] != "ByteCuts" {
		t.Errorf("Name column = %q, want ByteCuts", records[1][0])
	}
}
