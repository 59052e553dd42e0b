package advisor

import "fmt"

// dualityViewDetector finds tables served by both OLTP and analytics traffic.
// The duality score is min(oltpFraction, analyticsFraction): a perfectly
// balanced 50/50 mix yields the maximum score of 0.5.
type dualityViewDetector struct{}

func (dualityViewDetector) Name() string { return "duality-view" }

func (dualityViewDetector) PatternType() PatternType { return PatternDualityView }

func (dualityViewDetector) Detect(ev *workloadEvidence, cfg Config) ([]DetectedPattern, int) {
	dv := cfg.DualityView
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

		oltpExecs := te.readExecutions + te.insertExecutions + te.updateExecutions + te.deleteExecutions
		analyticsExecs := te.aggregateExecutions + te.joinExecutions
		oltpFraction := te.fractionOfTotal(oltpExecs)
		analyticsFraction := te.fractionOfTotal(analyticsExecs)

		score := oltpFraction
		if analyticsFraction < score {
			score = analyticsFraction
		}
		if score < dv.MediumScore {
			continue
		}

		severity := SeverityMedium
		if score >= dv.HighScore {
			severity = SeverityHigh
		}
		dailyExecutions := ev.executionsPerDay(te.totalExecutions, cfg.Volume.WindowDays)
		if dailyExecutions < dv.MinDailyExecutions && severity == SeverityHigh {
			// Duality-view overhead is not justified without volume; below
			// the gate the finding is still reported but never HIGH.
			severity = SeverityMedium
		}

		findings = append(findings, DetectedPattern{
			PatternType: PatternDualityView,
			Table:       name,
			Severity:    severity,
			Confidence:  confidence,
			Summary: fmt.Sprintf(
				"table %q serves a balanced mix: %.0f%% OLTP vs %.0f%% analytics (duality score %.2f)",
				name, oltpFraction*100, analyticsFraction*100, score,
			),
			Metrics: map[string]float64{
				"dualityScore":      score,
				"oltpFraction":      oltpFraction,
				"analyticsFraction": analyticsFraction,
				"dailyExecutions":   dailyExecutions,
				"avgElapsedMillis":  te.avgElapsedMillis(),
				"bytesPerDay":       safeDiv(te.bytesReadTotal, cfg.Volume.WindowDays),
				"rowCount":          float64(te.meta.RowCount),
			},
		})
	}
	return findings, suppressed
}
