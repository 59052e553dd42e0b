package advisor

import (
	"fmt"
	"strings"
)

// lobCliffDetector flags tables whose large-object or JSON column is subject
// to small, frequent partial updates. Low update selectivity raises risk: the
// whole object is rewritten for a small change.
type lobCliffDetector struct{}

func (lobCliffDetector) Name() string { return "lob-cliff" }

func (lobCliffDetector) PatternType() PatternType { return PatternLOBCliff }

func (lobCliffDetector) Detect(ev *workloadEvidence, cfg Config) ([]DetectedPattern, int) {
	lc := cfg.LOBCliff
	findings := make([]DetectedPattern, 0, 4)
	suppressed := 0

	for _, name := range ev.tableOrder {
		te := ev.tables[name]
		lobColumn, textFormat, ok := largestLOBColumn(te.meta, lc.MinLOBSizeBytes)
		if !ok {
			continue
		}
		updatesPerDay := te.effectiveUpdatesPerDay(cfg.Volume.WindowDays)
		if updatesPerDay <= 0 {
			continue
		}

		confidence, gated := applyVolumeGate(cfg.Volume, te.updateExecutions, 0.85)
		if gated {
			suppressed++
			continue
		}

		sizeFactor := clampFloat(float64(lobColumn.AvgSizeBytes)/lc.SizeThresholdBytes, 0, 1)
		frequencyFactor := clampFloat(updatesPerDay/lc.UpdatesPerDayThreshold, 0, 1)
		selectivity := te.avgUpdateSelectivity()
		selectivityFactor := clampFloat(1-selectivity, 0, 1)
		formatFactor := lc.BinaryFormatRisk
		if textFormat {
			formatFactor = lc.TextFormatRisk
		}

		risk := lc.SizeWeight*sizeFactor +
			lc.FrequencyWeight*frequencyFactor +
			lc.SelectivityWeight*selectivityFactor +
			lc.FormatWeight*formatFactor
		if risk < lc.MinRiskToReport {
			continue
		}

		severity := SeverityLow
		switch {
		case risk >= lc.HighRiskThreshold:
			// HIGH requires every sub-score to clear the per-factor floor;
			// one dominant factor alone must not drive HIGH.
			if sizeFactor >= lc.FactorFloor &&
				frequencyFactor >= lc.FactorFloor &&
				selectivityFactor >= lc.FactorFloor &&
				formatFactor >= lc.FactorFloor {
				severity = SeverityHigh
			} else {
				severity = SeverityMedium
			}
		case risk >= lc.MediumRiskThreshold:
			severity = SeverityMedium
		}

		format := "binary"
		if textFormat {
			format = "text"
		}
		findings = append(findings, DetectedPattern{
			PatternType: PatternLOBCliff,
			Table:       name,
			Columns:     []string{lobColumn.Name},
			Severity:    severity,
			Confidence:  confidence,
			Summary: fmt.Sprintf(
				"%s column %q (%s, avg %d bytes) rewritten ~%.0f times/day while updates touch only %.0f%% of the document",
				format, lobColumn.Name, lobColumn.DataType, lobColumn.AvgSizeBytes,
				updatesPerDay, selectivity*100,
			),
			Metrics: map[string]float64{
				"riskScore":            risk,
				"sizeFactor":           sizeFactor,
				"frequencyFactor":      frequencyFactor,
				"selectivityFactor":    selectivityFactor,
				"formatFactor":         formatFactor,
				"avgDocumentSizeBytes": float64(lobColumn.AvgSizeBytes),
				"updatesPerDay":        updatesPerDay,
				"avgUpdateSelectivity": selectivity,
				"rowCount":             float64(te.meta.RowCount),
				"avgElapsedMillis":     te.avgElapsedMillis(),
			},
		})
	}
	return findings, suppressed
}

var textLOBTypes = map[string]struct{}{
	"json":       {},
	"text":       {},
	"mediumtext": {},
	"longtext":   {},
	"clob":       {},
	"xml":        {},
}

var binaryLOBTypes = map[string]struct{}{
	"blob":       {},
	"mediumblob": {},
	"longblob":   {},
	"jsonb":      {},
	"bytea":      {},
	"varbinary":  {},
	"osson":      {},
}

// largestLOBColumn returns the biggest large-object column of the table and
// whether it uses a text representation. Columns below the minimum LOB size
// are ignored.
func largestLOBColumn(meta TableMetadata, minSizeBytes int64) (ColumnMetadata, bool, bool) {
	var best ColumnMetadata
	bestText := false
	found := false
	for i := range meta.Columns {
		col := meta.Columns[i]
		dataType := strings.ToLower(strings.TrimSpace(col.DataType))
		_, text := textLOBTypes[dataType]
		_, binary := binaryLOBTypes[dataType]
		if !text && !binary {
			continue
		}
		if col.AvgSizeBytes < minSizeBytes {
			continue
		}
		if !found || col.AvgSizeBytes > best.AvgSizeBytes {
			best = col
			bestText = text
			found = true
		}
	}
	return best, bestText, found
}
