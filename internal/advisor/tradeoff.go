package advisor

import (
	"fmt"
	"math"
	"sort"
)

// resolvedCandidate is a tradeoff survivor: the winning candidate plus any
// findings demoted under it and the manual-review flag.
type resolvedCandidate struct {
	Candidate
	Alternatives []Alternative
	ManualReview bool
}

// conflictRule declares when two pattern types on the same table propose
// mutually exclusive storage strategies, and which resolution applies.
// Rules are checked in order; the first match wins. LOB_CLIFF operates at
// the storage-representation level, not the normalization level, so it never
// appears here and always passes through.
type conflictRule struct {
	a, b PatternType
	// applies refines the rule beyond the type pair, e.g. a
	// DOCUMENT_RELATIONAL finding only fights further normalization when it
	// points toward documents.
	applies    func(a, b DetectedPattern) bool
	resolution Resolution
}

var conflictRules = []conflictRule{
	// A duality view serves both access patterns, resolving the
	// document-vs-relational tension structurally.
	{
		a:          PatternDualityView,
		b:          PatternDocumentRelational,
		resolution: ResolutionMergeIntoDualityView,
	},
	{
		a: PatternDocumentRelational,
		b: PatternJoinDimension,
		applies: func(a, b DetectedPattern) bool {
			return a.Direction == "document"
		},
		resolution: ResolutionKeepHighestROI,
	},
}

// matchConflictRule orients the pair against the rule table: on a match it
// returns the rule and the pair indices ordered as the rule's (a, b) sides.
func matchConflictRule(x, y Candidate) (conflictRule, bool, bool) {
	for _, rule := range conflictRules {
		if rule.a == x.Pattern.PatternType && rule.b == y.Pattern.PatternType {
			if rule.applies == nil || rule.applies(x.Pattern, y.Pattern) {
				return rule, false, true
			}
		}
		if rule.a == y.Pattern.PatternType && rule.b == x.Pattern.PatternType {
			if rule.applies == nil || rule.applies(y.Pattern, x.Pattern) {
				return rule, true, true
			}
		}
	}
	return conflictRule{}, false, false
}

// analyzeTradeoffs reconciles candidates that compete for the same table.
// It must see the complete candidate set: conflicts cannot be resolved from
// partial results. Re-running it on its own survivors produces no new
// conflicts, since every losing member of a conflicting pair is demoted out.
func analyzeTradeoffs(candidates []Candidate, cm CostModelConfig) ([]resolvedCandidate, []TradeoffConflict) {
	byTable := make(map[string][]int, len(candidates))
	tableOrder := make([]string, 0, len(candidates))
	for i := range candidates {
		table := candidates[i].Pattern.Table
		if _, seen := byTable[table]; !seen {
			tableOrder = append(tableOrder, table)
		}
		byTable[table] = append(byTable[table], i)
	}
	sort.Strings(tableOrder)

	survivors := make([]resolvedCandidate, 0, len(candidates))
	conflicts := make([]TradeoffConflict, 0, 4)

	for _, table := range tableOrder {
		group := byTable[table]
		items := make([]resolvedCandidate, 0, len(group))
		for _, idx := range group {
			items = append(items, resolvedCandidate{Candidate: candidates[idx]})
		}
		alive := make([]bool, len(items))
		for i := range alive {
			alive[i] = true
		}

		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				if !alive[i] || !alive[j] {
					continue
				}
				rule, swapped, ok := matchConflictRule(items[i].Candidate, items[j].Candidate)
				if !ok {
					continue
				}
				first, second := i, j
				if swapped {
					first, second = j, i
				}
				conflicts = append(conflicts, TradeoffConflict{
					Table: table,
					Competing: []PatternType{
						items[first].Pattern.PatternType,
						items[second].Pattern.PatternType,
					},
					Resolution: resolveConflict(items, alive, first, second, rule, cm),
				})
			}
		}
		for i := range items {
			if alive[i] {
				survivors = append(survivors, items[i])
			}
		}
	}
	return survivors, conflicts
}

// resolveConflict applies the matched rule to the pair; first is the rule's
// `a` side. Losers are demoted onto the winner, never dropped silently.
func resolveConflict(
	items []resolvedCandidate,
	alive []bool,
	first int,
	second int,
	rule conflictRule,
	cm CostModelConfig,
) Resolution {
	switch rule.resolution {
	case ResolutionMergeIntoDualityView:
		demote(items, alive, first, second, fmt.Sprintf(
			"superseded by a duality view on %q, which serves both access patterns",
			items[second].Pattern.Table,
		))
		return ResolutionMergeIntoDualityView
	default:
		roiFirst := items[first].Cost.ROI
		roiSecond := items[second].Cost.ROI
		if math.Abs(roiFirst-roiSecond) <= cm.NearTieROIMargin {
			// Too close to auto-resolve: keep both, flag for a human.
			items[first].ManualReview = true
			items[second].ManualReview = true
			crossReference(items, first, second)
			return ResolutionManualReview
		}
		winner, loser := first, second
		if roiSecond > roiFirst {
			winner, loser = second, first
		}
		demote(items, alive, winner, loser, fmt.Sprintf(
			"lower ROI than the competing %s recommendation (%.2f vs %.2f)",
			items[winner].Pattern.PatternType, items[loser].Cost.ROI, items[winner].Cost.ROI,
		))
		return ResolutionKeepHighestROI
	}
}

// demote attaches the loser to the winner as an alternative considered and
// removes it from the survivor set.
func demote(items []resolvedCandidate, alive []bool, winner, loser int, reason string) {
	items[winner].Alternatives = append(items[winner].Alternatives, Alternative{
		Pattern: items[loser].Pattern,
		Cost:    items[loser].Cost,
		Reason:  reason,
	})
	alive[loser] = false
}

// crossReference records each near-tie candidate as the other's alternative
// so both audit trails name the competing option.
func crossReference(items []resolvedCandidate, first, second int) {
	items[first].Alternatives = append(items[first].Alternatives, Alternative{
		Pattern: items[second].Pattern,
		Cost:    items[second].Cost,
		Reason:  "near-tie ROI: competing option kept for manual review",
	})
	items[second].Alternatives = append(items[second].Alternatives, Alternative{
		Pattern: items[first].Pattern,
		Cost:    items[first].Cost,
		Reason:  "near-tie ROI: competing option kept for manual review",
	})
}
