// Package classifier drives the partitioner and tree builder across an
// entire ruleset and answers packet lookups against the resulting forest
// of trees.
package classifier

import (
	"github.com/drjdaly/bytecuts/internal/builder"
	"github.com/drjdaly/bytecuts/internal/config"
	"github.com/drjdaly/bytecuts/internal/partition"
	"github.com/drjdaly/bytecuts/internal/rule"
	"github.com/drjdaly/bytecuts/internal/tree"
)

// ruleEntrySize is the per-rule-entry bookkeeping overhead tree.Size
// charges at a leaf.
const ruleEntrySize = 19

// table is one tree in the forest, plus the bookkeeping the Classify
// prune check and the metrics accessors need.
type table struct {
	root        *tree.Node
	maxPriority int
	inputSize   int // rules handed to the builder, not rules placed
	good        bool
}

// Classifier holds the forest built from a ruleset: good ("primary")
// trees produced by the compactness-biased builder, followed by bad
// ("secondary") trees covering whatever the partitioner could never
// dredge down to the BadFraction floor.
type Classifier struct {
	opt    config.Options
	bopt   builder.Options
	tables []table
}

// New constructs an empty Classifier using the given configuration
// options. Call Construct to populate it from a ruleset.
func New(opt config.Options) *Classifier {
	return &Classifier{opt: opt, bopt: builder.DefaultOptions()}
}

// Construct populates c from ruleset, replacing any state from a prior
// call. An empty ruleset is legal: it produces zero trees, and every
// subsequent Classify call returns rule.NoMatch.
func (c *Classifier) Construct(ruleset []rule.Rule) {
	c.tables = nil
	if len(ruleset) == 0 {
		return
	}

	rules := append([]rule.Rule(nil), ruleset...)
	rule.SortRules(rules)

	floor := int(c.opt.BadFraction * float64(len(rules)))
	working := rules

	for len(working) > floor {
		kept, remain := partition.Separate(working, c.opt)
		if len(kept) == 0 {
			break
		}
		c.buildGoodTrees(kept)
		if len(remain) == len(working) {
			break
		}
		working = remain
	}

	c.buildBadTrees(working)
}

func (c *Classifier) buildGoodTrees(partitionRules []rule.Rule) {
	remain := partitionRules
	for len(remain) > 0 {
		input := remain
		root, rejected := builder.BuildPrimaryRoot(input, c.bopt)
		c.tables = append(c.tables, table{
			root:        root,
			maxPriority: rule.MaxPriority(input),
			inputSize:   len(input),
			good:        true,
		})
		if len(rejected) == len(remain) {
			break
		}
		remain = rejected
	}
}

func (c *Classifier) buildBadTrees(residual []rule.Rule) {
	remain := residual
	for len(remain) > 0 {
		input := remain
		root, rejected := builder.BuildSecondaryRoot(input, c.bopt)
		c.tables = append(c.tables, table{
			root:        root,
			maxPriority: rule.MaxPriority(input),
			inputSize:   len(input),
			good:        false,
		})
		if len(rejected) == 0 || len(rejected) == len(remain) {
			break
		}
		remain = rejected
	}
}

// Classify returns the highest priority among rules matching p, or
// rule.NoMatch. Trees are walked in construction order; a tree whose
// maxPriority cannot beat the running best is skipped entirely — this
// prune is required for performance, not correctness.
func (c *Classifier) Classify(p rule.Packet) int {
	best := rule.NoMatch
	for i := range c.tables {
		t := &c.tables[i]
		if t.maxPriority <= best {
			continue
		}
		if got := t.root.Classify(p); got > best {
			best = got
		}
	}
	return best
}

// NumTables returns the total number of trees (good and bad).
func (c *Classifier) NumTables() int { return len(c.tables) }

// NumGoodTrees returns the number of primary-mode trees.
func (c *Classifier) NumGoodTrees() int {
	n := 0
	for _, t := range c.tables {
		if t.good {
			n++
		}
	}
	return n
}

// NumBadTrees returns the number of secondary-mode trees.
func (c *Classifier) NumBadTrees() int {
	return len(c.tables) - c.NumGoodTrees()
}

// RulesInTable returns the number of rules handed to the builder for
// table i — its input size, not the count of rules it actually placed
// (a Split node may duplicate a rule across both halves).
func (c *Classifier) RulesInTable(i int) int { return c.tables[i].inputSize }

// PriorityOfTable returns the highest rule priority among table i's
// input rules.
func (c *Classifier) PriorityOfTable(i int) int { return c.tables[i].maxPriority }

// HeightOfTree returns table i's tree height.
func (c *Classifier) HeightOfTree(i int) int { return c.tables[i].root.Height() }

// CostOfTree returns table i's tree cost.
func (c *Classifier) CostOfTree(i int) int { return c.tables[i].root.Cost() }

// MemBytes returns the total memory footprint of every tree in the
// forest.
func (c *Classifier) MemBytes() int {
	total := 0
	for _, t := range c.tables {
		total += t.root.Size(ruleEntrySize)
	}
	return total
}
