package advisor

import (
	"fmt"
	"sort"
)

// joinDimensionDetector flags frequently-joined dimension tables as
// denormalization candidates. A volatile dimension suppresses the
// recommendation regardless of join frequency: copied attributes would churn
// in the fact table faster than the join they replace.
type joinDimensionDetector struct{}

func (joinDimensionDetector) Name() string { return "join-dimension" }

func (joinDimensionDetector) PatternType() PatternType { return PatternJoinDimension }

func (joinDimensionDetector) Detect(ev *workloadEvidence, cfg Config) ([]DetectedPattern, int) {
	jd := cfg.JoinDimension
	findings := make([]DetectedPattern, 0, 4)
	suppressed := 0

	for _, key := range ev.joinOrder {
		je := ev.joins[key]
		dim, ok := ev.tables[key.Dimension]
		if !ok {
			continue
		}

		confidence, gated := applyVolumeGate(cfg.Volume, je.executions, 0.8)
		if gated {
			suppressed++
			continue
		}

		joinFrequency := 0.0
		if ev.totalExecutions > 0 {
			joinFrequency = float64(je.executions) / float64(ev.totalExecutions)
		}
		if joinFrequency < jd.MinJoinFrequency {
			continue
		}

		fetchedColumns := len(je.dimensionColumns)
		if fetchedColumns == 0 {
			// No column attribution in the evidence; assume a single
			// attribute is fetched rather than rejecting the candidate.
			fetchedColumns = 1
		}
		if fetchedColumns > jd.MaxFetchedColumns {
			// Denormalizing a wide slice of the dimension is a
			// maintenance-cost red flag, not a recommendation.
			continue
		}

		dimensionUpdatesPerDay := dim.effectiveUpdatesPerDay(cfg.Volume.WindowDays)
		if dimensionUpdatesPerDay > jd.VolatilityPerDayMax {
			continue
		}

		joinExecsPerDay := ev.executionsPerDay(je.executions, cfg.Volume.WindowDays)
		avgJoinElapsed := 0.0
		if je.executions > 0 {
			avgJoinElapsed = je.elapsedWeightedMillis / float64(je.executions)
		}
		savedPerDay := joinExecsPerDay * avgJoinElapsed * jd.JoinElapsedFraction
		propagationPerDay := dimensionUpdatesPerDay * float64(fetchedColumns) * jd.PropagationCostMillis
		netBenefit := savedPerDay - propagationPerDay
		if netBenefit <= jd.NetBenefitMargin {
			continue
		}

		severity := SeverityLow
		switch {
		case joinFrequency >= jd.HighJoinFrequency:
			severity = SeverityHigh
		case joinFrequency >= jd.MediumJoinFrequency:
			severity = SeverityMedium
		}

		columns := make([]string, 0, len(je.dimensionColumns))
		for col := range je.dimensionColumns {
			columns = append(columns, col)
		}
		sort.Strings(columns)

		findings = append(findings, DetectedPattern{
			PatternType:  PatternJoinDimension,
			Table:        key.Dimension,
			Columns:      columns,
			RelatedTable: key.Fact,
			Severity:     severity,
			Confidence:   confidence,
			Summary: fmt.Sprintf(
				"dimension %q is joined from %q in %.0f%% of the workload; denormalizing %d column(s) saves ~%.0f ms/day net",
				key.Dimension, key.Fact, joinFrequency*100, fetchedColumns, netBenefit,
			),
			Metrics: map[string]float64{
				"joinFrequency":          joinFrequency,
				"joinExecutionsPerDay":   joinExecsPerDay,
				"avgJoinElapsedMillis":   avgJoinElapsed,
				"fetchedColumns":         float64(fetchedColumns),
				"dimensionUpdatesPerDay": dimensionUpdatesPerDay,
				"netBenefitMillisPerDay": netBenefit,
				"joinBytesPerDay":        safeDiv(je.bytesReadTotal, cfg.Volume.WindowDays),
				"dimensionRowCount":      float64(dim.meta.RowCount),
				"factRowCount":           factRowCount(ev, key.Fact),
			},
		})
	}
	return findings, suppressed
}

func factRowCount(ev *workloadEvidence, fact string) float64 {
	if te, ok := ev.tables[fact]; ok {
		return float64(te.meta.RowCount)
	}
	return 0
}

func safeDiv(numerator float64, denominator float64) float64 {
	if denominator <= 0 {
		return 0
	}
	return numerator / denominator
}
