package advisor

import (
	"fmt"
	"math"
)

// documentRelationalDetector classifies tables whose access pattern leans
// clearly toward document storage or clearly toward relational storage.
// Tables inside the margin dead zone are left unclassified on purpose:
// mixed-access tables must not be forced into a decision.
type documentRelationalDetector struct{}

func (documentRelationalDetector) Name() string { return "document-relational" }

func (documentRelationalDetector) PatternType() PatternType { return PatternDocumentRelational }

func (documentRelationalDetector) Detect(ev *workloadEvidence, cfg Config) ([]DetectedPattern, int) {
	dr := cfg.DocumentRelational
	findings := make([]DetectedPattern, 0, 4)
	suppressed := 0

	for _, name := range ev.tableOrder {
		te := ev.tables[name]
		if te.totalExecutions == 0 {
			continue
		}

		confidence, gated := applyVolumeGate(cfg.Volume, te.totalExecutions, 0.8)
		if gated {
			suppressed++
			continue
		}

		selectAll := te.selectStarFraction()
		nullable := te.nullableColumnFraction()
		multiColumn := te.multiColumnUpdateFraction()
		aggregate := te.fractionOfTotal(te.aggregateExecutions)
		join := te.fractionOfTotal(te.joinExecutions)

		documentScore := dr.SelectAllWeight*selectAll +
			dr.NullableWeight*nullable +
			dr.MultiColumnUpdateWeight*multiColumn
		relationalScore := dr.AggregateWeight*aggregate + dr.JoinWeight*join

		gap := documentScore - relationalScore
		if math.Abs(gap) < dr.Margin {
			continue
		}

		direction := "document"
		if gap < 0 {
			direction = "relational"
		}
		absGap := math.Abs(gap)
		severity := SeverityLow
		switch {
		case absGap >= dr.HighGap:
			severity = SeverityHigh
		case absGap >= dr.MediumGap:
			severity = SeverityMedium
		}

		findings = append(findings, DetectedPattern{
			PatternType: PatternDocumentRelational,
			Table:       name,
			Direction:   direction,
			Severity:    severity,
			Confidence:  confidence,
			Summary: fmt.Sprintf(
				"table %q access leans %s (document score %.2f vs relational score %.2f)",
				name, direction, documentScore, relationalScore,
			),
			Metrics: map[string]float64{
				"documentScore":             documentScore,
				"relationalScore":           relationalScore,
				"scoreGap":                  gap,
				"selectAllFraction":         selectAll,
				"nullableColumnFraction":    nullable,
				"multiColumnUpdateFraction": multiColumn,
				"aggregateFraction":         aggregate,
				"joinFraction":              join,
				"dailyExecutions":           ev.executionsPerDay(te.totalExecutions, cfg.Volume.WindowDays),
				"avgElapsedMillis":          te.avgElapsedMillis(),
				"bytesPerDay":               safeDiv(te.bytesReadTotal, cfg.Volume.WindowDays),
				"rowCount":                  float64(te.meta.RowCount),
			},
		})
	}
	return findings, suppressed
}
