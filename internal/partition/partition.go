// Package partition implements the ByteCuts partitioner: repeatedly peeling
// off the subset of a ruleset that shares a short address prefix on one
// address dimension, leaving a residual of rules no common prefix covers
// well enough to bother with.
package partition

import (
	"github.com/drjdaly/bytecuts/internal/config"
	"github.com/drjdaly/bytecuts/internal/rule"
)

// addrDims are the two dimensions Separate searches over; port and
// protocol fields never partition.
var addrDims = [...]rule.Dim{rule.SA, rule.DA}

// candidate is one (dim, prefixLen) choice considered by Separate.
type candidate struct {
	dim      rule.Dim
	length   uint8
	maxPart  int
	dropped  int
	kept     int
	cost     int
	ratioIn  float64
	ratioOut float64
}

// Separate splits rules into (kept, remain): kept is the subset sharing
// some L-bit prefix on some address dimension, chosen by scanning every
// (dimension, length) candidate and keeping the best under better;
// remain is everything else.
func Separate(rules []rule.Rule, opt config.Options) (kept, remain []rule.Rule) {
	if len(rules) == 0 {
		return nil, nil
	}

	var best *candidate
	for _, d := range addrDims {
		for length := uint8(4); length <= 32; length += 4 {
			cand := evaluate(rules, d, length)
			if best == nil || better(cand, best, opt) {
				best = cand
			}
		}
	}

	return split(rules, best.dim, best.length)
}

func evaluate(rules []rule.Rule, d rule.Dim, length uint8) *candidate {
	shift := uint(32 - length)
	tally := make(map[rule.Point]int)
	dropped := 0
	for _, r := range rules {
		if r.PrefixLength[d] < length {
			dropped++
			continue
		}
		prefix := r.Range[d].Low & (rule.Point(0xFFFFFFFF) << shift)
		tally[prefix]++
	}

	maxPart := 0
	for _, n := range tally {
		if n > maxPart {
			maxPart = n
		}
	}
	kept := len(rules) - dropped

	cand := &candidate{
		dim:     d,
		length:  length,
		maxPart: maxPart,
		dropped: dropped,
		kept:    kept,
		cost:    dropped + maxPart,
	}
	if kept > 0 {
		cand.ratioIn = float64(maxPart) / float64(kept)
	}
	cand.ratioOut = float64(dropped) / float64(len(rules))
	return cand
}

// better reports whether cand beats best under the three-way policy:
// non-strict improvement on both counts wins outright; strict
// worsening on both counts loses outright with no fallthrough to the
// cost comparison; a mixed result defers to ratioIn/ratioOut
// thresholds, each strict on its primary count with a tie broken by
// strict improvement on the other count, and finally to cost.
func better(cand, best *candidate, opt config.Options) bool {
	betterPart := cand.maxPart < best.maxPart
	betterDrop := cand.dropped < best.dropped
	goodPart := cand.maxPart <= best.maxPart
	goodDrop := cand.dropped <= best.dropped

	if goodPart && goodDrop {
		return true
	}
	if !goodPart && !goodDrop {
		return false
	}

	if cand.ratioIn < opt.TurningPoint {
		return betterDrop || (goodDrop && betterPart)
	}
	if cand.ratioOut < 1-opt.MinFraction {
		return betterPart || (goodPart && betterDrop)
	}
	return cand.cost < best.cost
}

func split(rules []rule.Rule, d rule.Dim, length uint8) (kept, remain []rule.Rule) {
	for _, r := range rules {
		if r.PrefixLength[d] >= length {
			kept = append(kept, r)
		} else {
			remain = append(remain, r)
		}
	}
	return kept, remain
}
