package advisor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Engine orchestrates one analysis run: evidence indexing, pattern
// detection, cost estimation, tradeoff resolution, plan construction, and
// final ranking. It holds no mutable state across runs.
type Engine struct {
	cfg       Config
	detectors []Detector
	generator PlanGenerator
	logger    *slog.Logger
}

// NewEngine builds an engine over the default detector registry. generator
// and logger may be nil; a nil generator means every plan uses the
// deterministic fallback.
func NewEngine(cfg Config, generator PlanGenerator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		detectors: defaultDetectors(),
		generator: generator,
		logger:    logger,
	}
}

// Run analyzes one workload/metadata snapshot and returns the ranked
// recommendation list. The snapshot is consumed read-only; an aborted run
// simply discards its in-progress candidates.
func (e *Engine) Run(
	ctx context.Context,
	queries []QueryPattern,
	tables []TableMetadata,
) ([]Recommendation, RunMetrics, error) {
	started := time.Now()
	metrics := RunMetrics{
		QueryPatternCount: len(queries),
		TableCount:        len(tables),
		FindingsByPattern: make(map[PatternType]int, len(e.detectors)),
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, metrics, err
	}

	ev := buildWorkloadEvidence(queries, tables, e.cfg.DocumentRelational.MultiColumnMin, e.logger)
	metrics.SkippedTables = ev.skippedTables
	metrics.SkippedQueryPatterns = ev.skippedQueryPatterns

	// Detectors are pure functions over the immutable evidence index, so
	// they run concurrently; outputs are collected in registry order to keep
	// assembly deterministic.
	type detectorOutput struct {
		findings   []DetectedPattern
		suppressed int
	}
	outputs := make([]detectorOutput, len(e.detectors))
	var wg sync.WaitGroup
	for i := range e.detectors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			findings, suppressed := e.detectors[i].Detect(ev, e.cfg)
			outputs[i] = detectorOutput{findings: findings, suppressed: suppressed}
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, metrics, err
	}

	candidates := make([]Candidate, 0, 8)
	for i := range outputs {
		metrics.SuppressedByVolume += outputs[i].suppressed
		for _, finding := range outputs[i].findings {
			metrics.FindingsByPattern[finding.PatternType]++
			candidates = append(candidates, Candidate{
				Pattern: finding,
				Cost:    estimateCost(finding, e.cfg.Cost),
			})
		}
		e.logger.Debug("detector finished",
			"detector", e.detectors[i].Name(),
			"findings", len(outputs[i].findings),
			"suppressed", outputs[i].suppressed)
	}

	survivors, conflicts := analyzeTradeoffs(candidates, e.cfg.Cost)
	metrics.ConflictsDetected = len(conflicts)
	for _, conflict := range conflicts {
		if conflict.Resolution != ResolutionManualReview {
			metrics.ConflictsResolved++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, metrics, err
	}

	recommendations := make([]Recommendation, 0, len(survivors))
	for _, sc := range survivors {
		impl, usedFallback := buildImplementationPlan(ctx, e.generator, sc.Pattern)
		if usedFallback {
			metrics.GeneratorFallbacks++
			if e.generator != nil {
				e.logger.Warn("SQL generation failed, using fallback plan",
					"table", sc.Pattern.Table, "pattern", sc.Pattern.PatternType)
			}
		}
		if sc.ManualReview {
			metrics.ManualReviewCount++
		}
		recommendations = append(recommendations, Recommendation{
			Pattern:        sc.Pattern,
			Cost:           sc.Cost,
			Rationale:      buildRationale(sc.Pattern, sc.Cost),
			Implementation: impl,
			Rollback:       buildRollbackPlan(sc.Pattern),
			Alternatives:   sc.Alternatives,
			ManualReview:   sc.ManualReview,
		})
	}

	rankRecommendations(recommendations)
	metrics.ElapsedMillis = time.Since(started).Milliseconds()
	return recommendations, metrics, nil
}

// rankRecommendations orders by priority, then descending ROI, then
// descending confidence, with affected-table name (and pattern type) as the
// deterministic tiebreak, and assigns 1-based ranks.
func rankRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		pi, pj := priorityRank(recs[i].Cost.Priority), priorityRank(recs[j].Cost.Priority)
		if pi != pj {
			return pi > pj
		}
		if recs[i].Cost.ROI != recs[j].Cost.ROI {
			return recs[i].Cost.ROI > recs[j].Cost.ROI
		}
		if recs[i].Pattern.Confidence != recs[j].Pattern.Confidence {
			return recs[i].Pattern.Confidence > recs[j].Pattern.Confidence
		}
		if recs[i].Pattern.Table != recs[j].Pattern.Table {
			return recs[i].Pattern.Table < recs[j].Pattern.Table
		}
		return recs[i].Pattern.PatternType < recs[j].Pattern.PatternType
	})
	for i := range recs {
		recs[i].Rank = i + 1
	}
}
