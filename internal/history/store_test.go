package history

import (
	"context"
	"testing"
	"time"

	"schemadvisor/internal/advisor"
)

func sampleRecommendations() []advisor.Recommendation {
	return []advisor.Recommendation{
		{
			Rank: 1,
			Pattern: advisor.DetectedPattern{
				PatternType: advisor.PatternDualityView,
				Table:       "inventory",
				Severity:    advisor.SeverityHigh,
				Confidence:  0.8,
				Summary:     "balanced OLTP/analytics mix",
				Metrics:     map[string]float64{"dualityScore": 0.4},
			},
			Cost:      advisor.CostEstimate{AnnualSavings: 1200, ImplementationCost: 4800, ROI: 0.25, Priority: advisor.PriorityHigh},
			Rationale: "serves both access patterns from one copy",
			Alternatives: []advisor.Alternative{
				{
					Pattern: advisor.DetectedPattern{
						PatternType: advisor.PatternDocumentRelational,
						Table:       "inventory",
					},
					Cost:   advisor.CostEstimate{ROI: 0.2},
					Reason: "superseded by the duality view",
				},
			},
		},
		{
			Rank: 2,
			Pattern: advisor.DetectedPattern{
				PatternType: advisor.PatternLOBCliff,
				Table:       "documents",
				Severity:    advisor.SeverityMedium,
				Confidence:  0.6,
				Metrics:     map[string]float64{"riskScore": 0.5},
			},
			Cost:         advisor.CostEstimate{ROI: 0.1, Priority: advisor.PriorityMedium},
			ManualReview: true,
		},
	}
}

func TestStoreSaveAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	metrics := advisor.RunMetrics{
		QueryPatternCount: 5,
		TableCount:        4,
		FindingsByPattern: map[advisor.PatternType]int{advisor.PatternDualityView: 1},
		ConflictsDetected: 1,
		ConflictsResolved: 1,
	}
	runID, err := store.SaveRun(ctx, time.Now().Add(-time.Second), sampleRecommendations(), metrics)
	if err != nil {
		t.Fatalf("save run: %v", err)
	}
	if runID <= 0 {
		t.Fatalf("expected positive run id, got %d", runID)
	}

	detail, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if detail.RecommendationCount != 2 || len(detail.Recommendations) != 2 {
		t.Fatalf("unexpected recommendation count: %+v", detail)
	}
	if detail.Metrics.ConflictsDetected != 1 {
		t.Fatalf("metrics did not round-trip: %+v", detail.Metrics)
	}
	first := detail.Recommendations[0]
	if first.Rank != 1 || first.Pattern.Table != "inventory" {
		t.Fatalf("recommendations out of order: %+v", first)
	}
	if len(first.Alternatives) != 1 || first.Alternatives[0].Reason == "" {
		t.Fatalf("alternative audit trail lost: %+v", first.Alternatives)
	}
	if !detail.Recommendations[1].ManualReview {
		t.Fatalf("manual review flag lost")
	}
}

func TestStoreListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	var last int64
	for i := 0; i < 3; i++ {
		last, err = store.SaveRun(ctx, time.Now(), nil, advisor.RunMetrics{})
		if err != nil {
			t.Fatalf("save run %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected limit to apply, got %d runs", len(runs))
	}
	if runs[0].ID != last {
		t.Fatalf("expected newest run first, got %d want %d", runs[0].ID, last)
	}
}

func TestStoreGetRunMissing(t *testing.T) {
	t.Parallel()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if _, err := store.GetRun(context.Background(), 12345); err == nil {
		t.Fatalf("expected error for missing run")
	}
}
