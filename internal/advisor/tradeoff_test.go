package advisor

import "testing"

func candidateFor(pt PatternType, table string, roi float64, direction string) Candidate {
	return Candidate{
		Pattern: DetectedPattern{
			PatternType: pt,
			Table:       table,
			Direction:   direction,
			Severity:    SeverityMedium,
			Confidence:  0.8,
			Metrics:     map[string]float64{},
		},
		Cost: CostEstimate{ROI: roi, Priority: PriorityMedium},
	}
}

func TestAnalyzeTradeoffsDualityViewSupersedes(t *testing.T) {
	t.Parallel()

	cm := DefaultConfig().Cost
	candidates := []Candidate{
		candidateFor(PatternDocumentRelational, "inventory", 3.0, "document"),
		candidateFor(PatternDualityView, "inventory", 0.5, ""),
	}
	survivors, conflicts := analyzeTradeoffs(candidates, cm)

	if len(conflicts) != 1 || conflicts[0].Resolution != ResolutionMergeIntoDualityView {
		t.Fatalf("expected one MERGE_INTO_DUALITY_VIEW conflict, got %+v", conflicts)
	}
	if len(survivors) != 1 {
		t.Fatalf("expected one survivor, got %d", len(survivors))
	}
	winner := survivors[0]
	if winner.Pattern.PatternType != PatternDualityView {
		t.Fatalf("the duality view supersedes regardless of ROI, got %s", winner.Pattern.PatternType)
	}
	if len(winner.Alternatives) != 1 || winner.Alternatives[0].Pattern.PatternType != PatternDocumentRelational {
		t.Fatalf("demoted finding must survive as an alternative, got %+v", winner.Alternatives)
	}
}

func TestAnalyzeTradeoffsKeepsHighestROI(t *testing.T) {
	t.Parallel()

	cm := DefaultConfig().Cost
	candidates := []Candidate{
		candidateFor(PatternDocumentRelational, "catalog", 0.5, "document"),
		candidateFor(PatternJoinDimension, "catalog", 2.0, ""),
	}
	survivors, conflicts := analyzeTradeoffs(candidates, cm)

	if len(conflicts) != 1 || conflicts[0].Resolution != ResolutionKeepHighestROI {
		t.Fatalf("expected one KEEP_HIGHEST_ROI conflict, got %+v", conflicts)
	}
	if len(survivors) != 1 {
		t.Fatalf("expected one survivor, got %d", len(survivors))
	}
	winner := survivors[0]
	if winner.Pattern.PatternType != PatternJoinDimension {
		t.Fatalf("expected the higher-ROI candidate to win, got %s", winner.Pattern.PatternType)
	}
	if len(winner.Alternatives) != 1 || winner.Alternatives[0].Cost.ROI != 0.5 {
		t.Fatalf("loser must be kept as an alternative with its estimate, got %+v", winner.Alternatives)
	}
	if winner.ManualReview {
		t.Fatalf("a clear ROI winner must not be flagged for review")
	}
}

func TestAnalyzeTradeoffsNearTieFlagsManualReview(t *testing.T) {
	t.Parallel()

	cm := DefaultConfig().Cost
	candidates := []Candidate{
		candidateFor(PatternDocumentRelational, "catalog", 1.0, "document"),
		candidateFor(PatternJoinDimension, "catalog", 1.05, ""),
	}
	survivors, conflicts := analyzeTradeoffs(candidates, cm)

	if len(conflicts) != 1 || conflicts[0].Resolution != ResolutionManualReview {
		t.Fatalf("expected FLAG_FOR_MANUAL_REVIEW, got %+v", conflicts)
	}
	if len(survivors) != 2 {
		t.Fatalf("a near tie keeps both recommendations, got %d survivors", len(survivors))
	}
	for _, s := range survivors {
		if !s.ManualReview {
			t.Fatalf("both near-tie survivors must carry the review flag: %+v", s)
		}
		if len(s.Alternatives) != 1 {
			t.Fatalf("each near-tie survivor must cross-reference the other, got %+v", s.Alternatives)
		}
	}
}

func TestAnalyzeTradeoffsRelationalDirectionDoesNotConflict(t *testing.T) {
	t.Parallel()

	cm := DefaultConfig().Cost
	// A relational-leaning classification and denormalization both push the
	// same way; there is nothing to arbitrate.
	candidates := []Candidate{
		candidateFor(PatternDocumentRelational, "catalog", 0.5, "relational"),
		candidateFor(PatternJoinDimension, "catalog", 2.0, ""),
	}
	survivors, conflicts := analyzeTradeoffs(candidates, cm)
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", conflicts)
	}
	if len(survivors) != 2 {
		t.Fatalf("expected both candidates to survive, got %d", len(survivors))
	}
}

func TestAnalyzeTradeoffsLOBCliffPassesThrough(t *testing.T) {
	t.Parallel()

	cm := DefaultConfig().Cost
	candidates := []Candidate{
		candidateFor(PatternLOBCliff, "inventory", 0.2, ""),
		candidateFor(PatternDualityView, "inventory", 1.0, ""),
		candidateFor(PatternDocumentRelational, "inventory", 0.9, "document"),
	}
	survivors, conflicts := analyzeTradeoffs(candidates, cm)

	if len(conflicts) != 1 {
		t.Fatalf("expected only the duality/document conflict, got %+v", conflicts)
	}
	foundLOB := false
	for _, s := range survivors {
		if s.Pattern.PatternType == PatternLOBCliff {
			foundLOB = true
		}
	}
	if !foundLOB {
		t.Fatalf("LOB_CLIFF operates at the storage-representation level and must pass through")
	}
}

func TestAnalyzeTradeoffsIdempotentOnSurvivors(t *testing.T) {
	t.Parallel()

	cm := DefaultConfig().Cost
	candidates := []Candidate{
		candidateFor(PatternDocumentRelational, "inventory", 3.0, "document"),
		candidateFor(PatternDualityView, "inventory", 0.5, ""),
		candidateFor(PatternJoinDimension, "regions", 1.2, ""),
	}
	survivors, _ := analyzeTradeoffs(candidates, cm)

	again := make([]Candidate, 0, len(survivors))
	for _, s := range survivors {
		again = append(again, s.Candidate)
	}
	rerun, conflicts := analyzeTradeoffs(again, cm)
	if len(conflicts) != 0 {
		t.Fatalf("re-running on survivors must find no conflicts, got %+v", conflicts)
	}
	if len(rerun) != len(survivors) {
		t.Fatalf("re-running must keep the survivor set, got %d vs %d", len(rerun), len(survivors))
	}
}

func TestAnalyzeTradeoffsIndependentTablesUntouched(t *testing.T) {
	t.Parallel()

	cm := DefaultConfig().Cost
	candidates := []Candidate{
		candidateFor(PatternDualityView, "alpha", 1.0, ""),
		candidateFor(PatternDocumentRelational, "beta", 1.0, "document"),
	}
	survivors, conflicts := analyzeTradeoffs(candidates, cm)
	if len(conflicts) != 0 || len(survivors) != 2 {
		t.Fatalf("findings on different tables never conflict, got %d survivors, %+v", len(survivors), conflicts)
	}
}
