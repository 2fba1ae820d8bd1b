// Package builder constructs ByteCuts decision trees from a rule subset,
// alternating Cut (multi-way, nibble-aligned bit-window fan-out) and Split
// (binary port-range partition) nodes, terminating at Leaf nodes.
//
// Primary mode builds compact trees and may reject rules it cannot place
// within its cost budget back to the caller via remain; secondary mode
// never rejects and never emits Split nodes, trading compactness for the
// guarantee that every rule handed in gets placed.
package builder

import (
	"sort"

	"github.com/drjdaly/bytecuts/internal/rule"
	"github.com/drjdaly/bytecuts/internal/tree"
)

// Options tunes the builder. These are constructor parameters, not part
// of the classifier's public BC.* configuration surface — tree-shape
// tuning and partition tuning are different concerns.
type Options struct {
	// LeafMax is the largest rule subset built directly into a Leaf
	// without attempting a Cut or Split.
	LeafMax int

	// MaxCutWidth caps the bit width of a Cut window (nibble-aligned,
	// so always a multiple of 4), bounding a Cut node's fan-out to
	// 1<<MaxCutWidth children.
	MaxCutWidth uint8

	// WidePortSpan is the port-range span above which a port dimension is
	// considered "wide" and eligible for a Split node in primary mode.
	WidePortSpan rule.Point
}

// DefaultOptions returns the builder's built-in tuning constants.
func DefaultOptions() Options {
	return Options{
		LeafMax:      8,
		MaxCutWidth:  8,
		WidePortSpan: 0xFFFF,
	}
}

type mode int

const (
	modePrimary mode = iota
	modeSecondary
)

// BuildPrimaryRoot builds one compact tree from rules, returning the root
// and any rules the cost budget forced it to reject. The caller is
// expected to retry BuildPrimaryRoot on remain until it returns empty.
func BuildPrimaryRoot(rules []rule.Rule, opt Options) (*tree.Node, []rule.Rule) {
	var remain []rule.Rule
	root := build(rules, opt, modePrimary, &remain)
	return root, remain
}

// BuildSecondaryRoot builds one always-succeeding tree from rules. remain
// is always empty; the return shape matches BuildPrimaryRoot so callers
// can share a driver loop.
func BuildSecondaryRoot(rules []rule.Rule, opt Options) (*tree.Node, []rule.Rule) {
	var remain []rule.Rule
	root := build(rules, opt, modeSecondary, &remain)
	return root, remain
}

func build(rules []rule.Rule, opt Options, m mode, remain *[]rule.Rule) *tree.Node {
	if len(rules) <= opt.LeafMax {
		return leafOf(rules)
	}

	if cand := bestCut(rules, opt); cand != nil {
		return buildCutNode(cand, opt, m, remain)
	}

	if m == modePrimary {
		if left, right, point, dim, ok := bestSplit(rules, opt); ok {
			return tree.NewSplit(dim, point,
				build(left, opt, m, remain),
				build(right, opt, m, remain))
		}
	}

	if m == modeSecondary {
		return leafOf(rules)
	}

	// Primary mode, no cut/split improvement: keep the highest-priority
	// LeafMax rules in this leaf and reject the rest to remain, to be
	// retried in a subsequent tree by the classifier's build loop.
	sorted := append([]rule.Rule(nil), rules...)
	rule.SortRules(sorted)
	*remain = append(*remain, sorted[opt.LeafMax:]...)
	return leafOf(sorted[:opt.LeafMax])
}

func leafOf(rules []rule.Rule) *tree.Node {
	sorted := append([]rule.Rule(nil), rules...)
	rule.SortRules(sorted)
	return tree.NewLeaf(sorted)
}

// cutCandidate is one nibble-aligned bit window considered as a Cut.
type cutCandidate struct {
	dim      rule.Dim
	cutLow   uint8
	cutTotal uint8
	buckets  [][]rule.Rule // length 1<<(cutTotal-cutLow)
	cost     int
}

// bestCut searches every nibble-aligned (dim, cutLow, cutTotal) window and
// returns the one with the lowest cost heuristic, or nil if none improves
// strictly over keeping rules as a single Leaf.
func bestCut(rules []rule.Rule, opt Options) *cutCandidate {
	var best *cutCandidate
	for d := rule.Dim(0); d < rule.NumDims; d++ {
		for cutLow := uint8(0); cutLow < 32; cutLow += 4 {
			for width := uint8(4); width <= opt.MaxCutWidth && cutLow+width <= 32; width += 4 {
				cutTotal := cutLow + width
				cand := buildCandidate(rules, d, cutLow, cutTotal)
				if cand == nil {
					continue
				}
				if best == nil || cand.cost < best.cost {
					best = cand
				}
			}
		}
	}
	if best == nil || best.cost >= len(rules) {
		return nil
	}
	return best
}

func buildCandidate(rules []rule.Rule, d rule.Dim, cutLow, cutTotal uint8) *cutCandidate {
	width := cutTotal - cutLow
	numBuckets := 1 << width
	buckets := make([][]rule.Rule, numBuckets)

	total := 0
	maxBucket := 0
	distinctBucketsUsed := 0
	for _, r := range rules {
		slots := bucketsForWindow(r.Range[d], cutLow, cutTotal)
		for _, s := range slots {
			if len(buckets[s]) == 0 {
				distinctBucketsUsed++
			}
			buckets[s] = append(buckets[s], r)
			total++
			if len(buckets[s]) > maxBucket {
				maxBucket = len(buckets[s])
			}
		}
	}
	if distinctBucketsUsed <= 1 {
		// Every rule lands in the same single bucket: no fan-out gained.
		return nil
	}

	replication := total - len(rules)
	return &cutCandidate{
		dim:      d,
		cutLow:   cutLow,
		cutTotal: cutTotal,
		buckets:  buckets,
		cost:     maxBucket + replication,
	}
}

// bucketsForWindow returns the set of window slots iv can land in. When
// iv's bits above cutTotal aren't constant across the interval, the window
// can't isolate iv from neighboring ranges and it is replicated into every
// slot.
func bucketsForWindow(iv rule.Interval, cutLow, cutTotal uint8) []uint32 {
	width := cutTotal - cutLow
	numBuckets := uint32(1) << width
	mask := numBuckets - 1

	if cutTotal < 32 {
		if uint32(iv.Low)>>cutTotal != uint32(iv.High)>>cutTotal {
			all := make([]uint32, numBuckets)
			for i := range all {
				all[i] = uint32(i)
			}
			return all
		}
	}

	lo := (uint32(iv.Low) >> cutLow) & mask
	hi := (uint32(iv.High) >> cutLow) & mask
	if lo > hi {
		lo, hi = 0, mask
	}
	out := make([]uint32, 0, hi-lo+1)
	for b := lo; b <= hi; b++ {
		out = append(out, b)
	}
	return out
}

// buildCutNode recurses into each bucket, sharing a single child node
// across buckets whose rule subsets are identical (by rule priority
// signature).
func buildCutNode(cand *cutCandidate, opt Options, m mode, remain *[]rule.Rule) *tree.Node {
	children := make([]*tree.Node, len(cand.buckets))
	built := make(map[string]*tree.Node, len(cand.buckets))

	for i, bucket := range cand.buckets {
		if len(bucket) == 0 {
			children[i] = tree.NewLeaf(nil)
			continue
		}
		key := signature(bucket)
		child, ok := built[key]
		if !ok {
			child = build(bucket, opt, m, remain)
			built[key] = child
		}
		children[i] = child
	}
	return tree.NewCut(cand.dim, cand.cutLow, cand.cutTotal, children)
}

func signature(rules []rule.Rule) string {
	ids := make([]int, len(rules))
	for i, r := range rules {
		ids[i] = r.Priority
	}
	sort.Ints(ids)
	b := make([]byte, 0, len(ids)*5)
	for i, id := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendInt(b, id)
	}
	return string(b)
}

func appendInt(b []byte, v int) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	start := len(b)
	if v == 0 {
		return append(b, '0')
	}
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	// reverse the digits just appended
	for l, r := start, len(b)-1; l < r; l, r = l+1, r-1 {
		b[l], b[r] = b[r], b[l]
	}
	return b
}

// bestSplit picks a port dimension with a wide bounding range and a
// roughly-balancing split point. A rule whose interval straddles the split
// point is placed in both halves. Returns ok=false if neither port
// dimension is wide enough, or if splitting wouldn't shrink either side.
func bestSplit(rules []rule.Rule, opt Options) (left, right []rule.Rule, point rule.Point, dim rule.Dim, ok bool) {
	for _, d := range []rule.Dim{rule.SP, rule.DP} {
		lo, hi, any := boundingInterval(rules, d)
		if !any || hi-lo <= opt.WidePortSpan {
			continue
		}
		s := lo + (hi-lo)/2

		var l, r []rule.Rule
		for _, rl := range rules {
			iv := rl.Range[d]
			if iv.Low <= s {
				l = append(l, rl)
			}
			if iv.High > s {
				r = append(r, rl)
			}
		}
		if len(l) == len(rules) && len(r) == len(rules) {
			continue // no rule was actually separated
		}
		return l, r, s, d, true
	}
	return nil, nil, 0, 0, false
}

func boundingInterval(rules []rule.Rule, d rule.Dim) (lo, hi rule.Point, any bool) {
	for i, r := range rules {
		if i == 0 {
			lo, hi = r.Range[d].Low, r.Range[d].High
			any = true
			continue
		}
		if r.Range[d].Low < lo {
			lo = r.Range[d].Low
		}
		if r.Range[d].High > hi {
			hi = r.Range[d].High
		}
	}
	return lo, hi, any
}
