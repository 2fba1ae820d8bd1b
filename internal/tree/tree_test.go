package tree

import (
	"testing"

	"github.com/drjdaly/bytecuts/internal/rule"
)

func exactRule(priority int, sa, da, sp, dp, proto rule.Point) rule.Rule {
	r := rule.Rule{Priority: priority}
	r.Range[rule.SA] = rule.Interval{Low: sa, High: sa}
	r.Range[rule.DA] = rule.Interval{Low: da, High: da}
	r.Range[rule.SP] = rule.Interval{Low: sp, High: sp}
	r.Range[rule.DP] = rule.Interval{Low: dp, High: dp}
	r.Range[rule.Proto] = rule.Interval{Low: proto, High: proto}
	return r
}

func TestLeafClassifyFirstMatchWins(t *testing.T) {
	leaf := NewLeaf([]rule.Rule{
		exactRule(5, 1, 1, 1, 1, 1),
		exactRule(1, 0, 0, 0, 0, 0),
	})
	if got := leaf.Classify(rule.Packet{1, 1, 1, 1, 1}); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
	if got := leaf.Classify(rule.Packet{2, 2, 2, 2, 2}); got != rule.NoMatch {
		t.Errorf("got %d, want %d", got, rule.NoMatch)
	}
}

func TestSplitClassifyRoutesByBoundary(t *testing.T) {
	leftLeaf := NewLeaf([]rule.Rule{exactRule(1, 0, 0, 100, 0, 0)})
	rightLeaf := NewLeaf([]rule.Rule{exactRule(2, 0, 0, 2000, 0, 0)})
	split := NewSplit(rule.SP, 1000, leftLeaf, rightLeaf)

	pkt := rule.Packet{0, 0, 100, 0, 0}
	if got := split.Classify(pkt); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	pkt[rule.SP] = 2000
	if got := split.Classify(pkt); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestCutClassifyIndexesByWindow(t *testing.T) {
	// 2-bit window at bits [30,32): top 2 bits of a 32-bit point select
	// among 4 children.
	children := make([]*Node, 4)
	for i := range children {
		children[i] = NewLeaf([]rule.Rule{exactRule(i, rule.Point(i)<<30, 0, 0, 0, 0)})
	}
	cut := NewCut(rule.SA, 30, 32, children)

	for i := 0; i < 4; i++ {
		p := rule.Point(i) << 30
		pkt := rule.Packet{p, 0, 0, 0, 0}
		if got := cut.Classify(pkt); got != i {
			t.Errorf("slot %d: got %d, want %d", i, got, i)
		}
	}
}

func TestCutSharedChildDeduplication(t *testing.T) {
	shared := NewLeaf([]rule.Rule{exactRule(9, 0, 0, 0, 0, 0)})
	other := NewLeaf([]rule.Rule{exactRule(1, 0, 0, 0, 0, 0)})
	cut := NewCut(rule.SA, 30, 32, []*Node{shared, shared, shared, other})

	if got := cut.Height(); got != 2 {
		t.Errorf("Height() = %d, want 2", got)
	}
	// NodeSize for the cut plus each distinct leaf's Size counted once:
	// shared (three slots, one instance) and other.
	ruleSize := 19
	want := NodeSize + shared.Size(ruleSize) + other.Size(ruleSize)
	if got := cut.Size(ruleSize); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
	if got := cut.NumRules(); got != 2 {
		t.Errorf("NumRules() = %d, want 2 (shared leaf counted once)", got)
	}
}

func TestHeightLeafIsOne(t *testing.T) {
	leaf := NewLeaf(nil)
	if got := leaf.Height(); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestCostLeafIsRuleCount(t *testing.T) {
	leaf := NewLeaf([]rule.Rule{exactRule(0, 0, 0, 0, 0, 0), exactRule(1, 0, 0, 0, 0, 0)})
	if got := leaf.Cost(); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestSplitCostIsSymmetric(t *testing.T) {
	deepLeft := NewSplit(rule.SP, 5,
		NewLeaf(nil),
		NewLeaf([]rule.Rule{exactRule(0, 0, 0, 0, 0, 0), exactRule(1, 0, 0, 0, 0, 0), exactRule(2, 0, 0, 0, 0, 0)}))
	shallowRight := NewLeaf([]rule.Rule{exactRule(0, 0, 0, 0, 0, 0)})
	top := NewSplit(rule.SP, 10, deepLeft, shallowRight)

	// deepLeft.Cost() = 1 + max(0,3) = 4; shallowRight.Cost() = 1.
	if got := top.Cost(); got != 1+4 {
		t.Errorf("got %d, want %d", got, 1+4)
	}
}
