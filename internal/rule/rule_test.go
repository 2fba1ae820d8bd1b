package rule

import "testing"

func TestIntervalContains(t *testing.T) {
	iv := Interval{Low: 10, High: 20}
	cases := []struct {
		p    Point
		want bool
	}{
		{9, false},
		{10, true},
		{15, true},
		{20, true},
		{21, false},
	}
	for _, c := range cases {
		if got := iv.Contains(c.p); got != c.want {
			t.Errorf("Contains(%d) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestIntervalIntersects(t *testing.T) {
	a := Interval{Low: 10, High: 20}
	if !a.Intersects(Interval{Low: 20, High: 30}) {
		t.Error("expected touching intervals to intersect")
	}
	if a.Intersects(Interval{Low: 21, High: 30}) {
		t.Error("expected disjoint intervals to not intersect")
	}
}

func exactRule(priority int, sa, da, sp, dp, proto Point) Rule {
	r := Rule{Priority: priority}
	r.Range[SA] = Interval{sa, sa}
	r.Range[DA] = Interval{da, da}
	r.Range[SP] = Interval{sp, sp}
	r.Range[DP] = Interval{dp, dp}
	r.Range[Proto] = Interval{proto, proto}
	return r
}

func TestRuleMatches(t *testing.T) {
	r := exactRule(0, 0x0A000001, 0x0A000002, 80, 80, 6)
	if !r.Matches(Packet{0x0A000001, 0x0A000002, 80, 80, 6}) {
		t.Error("expected exact packet to match")
	}
	if r.Matches(Packet{0x0A000001, 0x0A000003, 80, 80, 6}) {
		t.Error("expected mismatched DA to not match")
	}
}

func TestPortPrefixLength(t *testing.T) {
	if got := PortPrefixLength(Interval{80, 80}); got != 32 {
		t.Errorf("got %d, want 32", got)
	}
	if got := PortPrefixLength(Interval{0, 65535}); got != 16 {
		t.Errorf("got %d, want 16", got)
	}
}

func TestProtoPrefixLength(t *testing.T) {
	if got := ProtoPrefixLength(true); got != 32 {
		t.Errorf("got %d, want 32", got)
	}
	if got := ProtoPrefixLength(false); got != 24 {
		t.Errorf("got %d, want 24", got)
	}
}

func TestSortRulesDescendingPriority(t *testing.T) {
	rules := []Rule{
		exactRule(1, 0, 0, 0, 0, 0),
		exactRule(5, 0, 0, 0, 0, 0),
		exactRule(3, 0, 0, 0, 0, 0),
	}
	SortRules(rules)
	for i := 1; i < len(rules); i++ {
		if rules[i-1].Priority < rules[i].Priority {
			t.Fatalf("rules not sorted descending: %v", rules)
		}
	}
}

func TestMaxPriorityEmpty(t *testing.T) {
	if got := MaxPriority(nil); got != NoMatch {
		t.Errorf("got %d, want %d", got, NoMatch)
	}
}
