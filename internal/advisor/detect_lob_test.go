package advisor

import "testing"

func lobFixtureTables(avgLOBSize int64) []TableMetadata {
	return []TableMetadata{
		{
			Name: "documents",
			Columns: []ColumnMetadata{
				{Name: "id", DataType: "bigint"},
				{Name: "payload", DataType: "json", AvgSizeBytes: avgLOBSize},
			},
			RowCount: 2_000_000,
		},
	}
}

func lobUpdateQuery(executions int64, selectivity float64) QueryPattern {
	return QueryPattern{
		Tables:            []string{"documents"},
		Columns:           []string{"payload"},
		Operation:         OpUpdate,
		ExecutionCount:    executions,
		AvgElapsedMillis:  12,
		UpdateSelectivity: selectivity,
	}
}

func TestLOBCliffAllFactorsHighYieldsHighSeverity(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	// 7000 updates over a 7-day window: 1000/day, at the frequency threshold.
	queries := []QueryPattern{lobUpdateQuery(7000, 0.05)}
	ev := buildWorkloadEvidence(queries, lobFixtureTables(256*1024), 3, discardLogger())

	findings, suppressed := lobCliffDetector{}.Detect(ev, cfg)
	if suppressed != 0 {
		t.Fatalf("expected no suppression, got %d", suppressed)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Severity != SeverityHigh {
		t.Fatalf("expected HIGH severity, got %s (risk %v)", f.Severity, f.Metrics["riskScore"])
	}
	if f.Table != "documents" || len(f.Columns) != 1 || f.Columns[0] != "payload" {
		t.Fatalf("unexpected attribution: table=%q columns=%v", f.Table, f.Columns)
	}
	if f.Confidence != 0.85 {
		t.Fatalf("expected full confidence 0.85 above the soft minimum, got %v", f.Confidence)
	}
}

func TestLOBCliffSingleWeakFactorBlocksHigh(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LOBCliff.HighRiskThreshold = 0.6

	// 700 updates over 7 days: 100/day, frequency factor 0.1 below the 0.15
	// floor, yet the weighted risk still clears the lowered HIGH threshold.
	queries := []QueryPattern{lobUpdateQuery(700, 0.05)}
	ev := buildWorkloadEvidence(queries, lobFixtureTables(256*1024), 3, discardLogger())

	findings, _ := lobCliffDetector{}.Detect(ev, cfg)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Metrics["riskScore"] < cfg.LOBCliff.HighRiskThreshold {
		t.Fatalf("fixture broken: risk %v below HIGH threshold", f.Metrics["riskScore"])
	}
	if f.Severity != SeverityMedium {
		t.Fatalf("expected MEDIUM when a factor is under the floor, got %s", f.Severity)
	}
}

func TestLOBCliffLowVolumePenalizesConfidence(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	// 700 updates is above the absolute floor but below the soft minimum.
	queries := []QueryPattern{lobUpdateQuery(700, 0.05)}
	ev := buildWorkloadEvidence(queries, lobFixtureTables(256*1024), 3, discardLogger())

	findings, _ := lobCliffDetector{}.Detect(ev, cfg)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	want := 0.85 * cfg.Volume.LowVolumePenalty
	if got := findings[0].Confidence; got != want {
		t.Fatalf("expected penalized confidence %v, got %v", want, got)
	}
}

func TestLOBCliffSuppressedBelowAbsoluteFloor(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	queries := []QueryPattern{lobUpdateQuery(50, 0.05)}
	ev := buildWorkloadEvidence(queries, lobFixtureTables(256*1024), 3, discardLogger())

	findings, suppressed := lobCliffDetector{}.Detect(ev, cfg)
	if len(findings) != 0 {
		t.Fatalf("expected no findings below the absolute floor, got %d", len(findings))
	}
	if suppressed != 1 {
		t.Fatalf("expected 1 suppressed candidate, got %d", suppressed)
	}
}

func TestLOBCliffIgnoresTablesWithoutLOBColumns(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	tables := []TableMetadata{
		{
			Name: "documents",
			Columns: []ColumnMetadata{
				{Name: "id", DataType: "bigint"},
				{Name: "title", DataType: "varchar", AvgSizeBytes: 64},
			},
		},
	}
	queries := []QueryPattern{lobUpdateQuery(7000, 0.05)}
	ev := buildWorkloadEvidence(queries, tables, 3, discardLogger())

	findings, suppressed := lobCliffDetector{}.Detect(ev, cfg)
	if len(findings) != 0 || suppressed != 0 {
		t.Fatalf("expected nothing for a LOB-free table, got %d findings, %d suppressed", len(findings), suppressed)
	}
}

func TestLargestLOBColumnPrefersBiggest(t *testing.T) {
	t.Parallel()

	meta := TableMetadata{
		Name: "mixed",
		Columns: []ColumnMetadata{
			{Name: "small_doc", DataType: "json", AvgSizeBytes: 8192},
			{Name: "big_blob", DataType: "longblob", AvgSizeBytes: 1 << 20},
			{Name: "tiny", DataType: "text", AvgSizeBytes: 100},
		},
	}
	col, text, ok := largestLOBColumn(meta, 4096)
	if !ok {
		t.Fatalf("expected a LOB column")
	}
	if col.Name != "big_blob" {
		t.Fatalf("expected big_blob, got %q", col.Name)
	}
	if text {
		t.Fatalf("longblob must classify as binary")
	}
}
