package advisor

import (
	"context"
	"fmt"
	"strings"
)

// GeneratedSQL is the output of the SQL/DDL generation collaborator.
type GeneratedSQL struct {
	SQL      string
	Warnings []string
}

// PlanGenerator is the language-model-backed DDL generation collaborator.
// The engine treats it as fallible: a failure or unusable output falls back
// to the deterministic placeholder plan, never to a missing recommendation.
type PlanGenerator interface {
	Generate(ctx context.Context, patternType PatternType, table string, metrics map[string]float64) (GeneratedSQL, error)
}

// buildRationale renders the pattern-specific explanation, referencing the
// finding's own metrics so the numbers in the text always match the evidence.
func buildRationale(p DetectedPattern, c CostEstimate) string {
	var b strings.Builder
	switch p.PatternType {
	case PatternLOBCliff:
		fmt.Fprintf(&b,
			"Table %q rewrites a %.0f-byte large object ~%.0f times/day while each update touches only %.0f%% of it (risk score %.2f). "+
				"Moving the hot attributes out of the object, or switching to a piecewise-updatable representation, avoids the full rewrite.",
			p.Table, p.Metrics["avgDocumentSizeBytes"], p.Metrics["updatesPerDay"],
			p.Metrics["avgUpdateSelectivity"]*100, p.Metrics["riskScore"])
	case PatternJoinDimension:
		fmt.Fprintf(&b,
			"Dimension %q is joined from %q in %.0f%% of the workload, fetching %.0f column(s), while the dimension changes only %.0f times/day. "+
				"Denormalizing those columns into the fact table removes the join with a net benefit of %.0f ms/day.",
			p.Table, p.RelatedTable, p.Metrics["joinFrequency"]*100,
			p.Metrics["fetchedColumns"], p.Metrics["dimensionUpdatesPerDay"],
			p.Metrics["netBenefitMillisPerDay"])
	case PatternDocumentRelational:
		fmt.Fprintf(&b,
			"Table %q shows a clear %s-leaning access pattern (document score %.2f vs relational score %.2f, gap %.2f). "+
				"Restructuring toward %s storage matches how the workload actually reads and writes it.",
			p.Table, p.Direction, p.Metrics["documentScore"], p.Metrics["relationalScore"],
			p.Metrics["scoreGap"], p.Direction)
	case PatternDualityView:
		fmt.Fprintf(&b,
			"Table %q serves %.0f%% OLTP and %.0f%% analytics traffic (duality score %.2f). "+
				"A duality view exposes both a relational and a document shape over the same rows, so neither side needs its own copy.",
			p.Table, p.Metrics["oltpFraction"]*100, p.Metrics["analyticsFraction"]*100,
			p.Metrics["dualityScore"])
	}
	fmt.Fprintf(&b, " Estimated annual savings $%.0f against a one-time cost of $%.0f (ROI %.2f).",
		c.AnnualSavings, c.ImplementationCost, c.ROI)
	return b.String()
}

// buildImplementationPlan asks the generation collaborator for DDL and falls
// back to the deterministic placeholder on any failure or empty output. A
// recommendation is always emitted even without machine-generated SQL.
// The returned bool reports whether the fallback was used.
func buildImplementationPlan(ctx context.Context, gen PlanGenerator, p DetectedPattern) (Plan, bool) {
	plan := Plan{Steps: implementationSteps(p)}
	if gen != nil {
		generated, err := gen.Generate(ctx, p.PatternType, p.Table, p.Metrics)
		if err == nil && strings.TrimSpace(generated.SQL) != "" {
			plan.SQL = generated.SQL
			plan.Warnings = generated.Warnings
			plan.Generated = true
			return plan, false
		}
	}
	plan.SQL = fallbackSQL(p)
	plan.Warnings = append(plan.Warnings, "SQL generation unavailable; placeholder DDL sketch emitted")
	return plan, true
}

// buildRollbackPlan derives the rollback structurally as the reverse of the
// proposed schema operation. It is always present.
func buildRollbackPlan(p DetectedPattern) Plan {
	var steps []string
	var sql string
	switch p.PatternType {
	case PatternLOBCliff:
		steps = []string{
			fmt.Sprintf("Stop dual-writing the extracted attributes of %q", p.Table),
			"Fold the extracted attributes back into the original large-object column",
			"Drop the extracted columns/side table once readers are switched back",
		}
		sql = fmt.Sprintf("-- reverse: re-embed extracted attributes into %s.%s and drop the side structure",
			p.Table, firstColumn(p))
	case PatternJoinDimension:
		steps = []string{
			fmt.Sprintf("Repoint readers of %q back to the join against %q", p.RelatedTable, p.Table),
			fmt.Sprintf("Drop the denormalized column(s) %s from %q", strings.Join(p.Columns, ", "), p.RelatedTable),
			"Remove the propagation trigger/job",
		}
		sql = fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s; -- restore join against %s",
			p.RelatedTable, strings.Join(p.Columns, ", DROP COLUMN "), p.Table)
	case PatternDocumentRelational:
		steps = []string{
			fmt.Sprintf("Keep the original %q schema until the restructured copy is verified", p.Table),
			"Repoint readers and writers back to the original schema",
			"Drop the restructured copy",
		}
		sql = fmt.Sprintf("-- reverse: repoint access to the original %s schema and drop the restructured copy", p.Table)
	case PatternDualityView:
		steps = []string{
			fmt.Sprintf("Repoint document-side consumers of %q back to their previous access path", p.Table),
			"Drop the duality view; the underlying table is untouched",
		}
		sql = fmt.Sprintf("DROP VIEW IF EXISTS %s_duality;", p.Table)
	}
	return Plan{Steps: steps, SQL: sql, Generated: false}
}

func implementationSteps(p DetectedPattern) []string {
	switch p.PatternType {
	case PatternLOBCliff:
		return []string{
			fmt.Sprintf("Identify the frequently-updated attributes inside %s.%s", p.Table, firstColumn(p)),
			"Extract them into dedicated columns (or a narrow side table) with dual-write",
			"Backfill from the existing documents, then switch updates to the extracted columns",
			"Shrink or archive the cold remainder of the large object",
		}
	case PatternJoinDimension:
		return []string{
			fmt.Sprintf("Add column(s) %s to fact table %q", strings.Join(p.Columns, ", "), p.RelatedTable),
			fmt.Sprintf("Backfill from dimension %q", p.Table),
			"Install update propagation (trigger or change feed) from the dimension",
			"Repoint readers to the denormalized columns and retire the join",
		}
	case PatternDocumentRelational:
		target := "a document collection"
		if p.Direction == "relational" {
			target = "normalized relational tables"
		}
		return []string{
			fmt.Sprintf("Create %s mirroring %q", target, p.Table),
			"Dual-write during migration and backfill existing rows",
			"Repoint readers once parity checks pass, then retire the old shape",
		}
	case PatternDualityView:
		return []string{
			fmt.Sprintf("Define a duality view over %q exposing the document shape", p.Table),
			"Repoint document-side consumers to the view",
			"Keep relational consumers on the base table; both now share one copy",
		}
	}
	return nil
}

// fallbackSQL is the deterministic placeholder used when the generation
// collaborator fails: a commented DDL sketch a reviewer can complete by hand.
func fallbackSQL(p DetectedPattern) string {
	switch p.PatternType {
	case PatternLOBCliff:
		return fmt.Sprintf(
			"-- TODO(reviewer): extract hot attributes from %s.%s\n"+
				"-- ALTER TABLE %s ADD COLUMN <attribute> <type>;\n"+
				"-- UPDATE %s SET <attribute> = JSON_VALUE(%s, '$.<path>');",
			p.Table, firstColumn(p), p.Table, p.Table, firstColumn(p))
	case PatternJoinDimension:
		return fmt.Sprintf(
			"-- ALTER TABLE %s ADD COLUMN %s;\n-- backfill from %s, then install propagation",
			p.RelatedTable, strings.Join(p.Columns, ", ADD COLUMN "), p.Table)
	case PatternDocumentRelational:
		return fmt.Sprintf("-- restructure %s toward %s storage; see plan steps", p.Table, p.Direction)
	case PatternDualityView:
		return fmt.Sprintf(
			"-- CREATE VIEW %s_duality AS SELECT /* document projection */ FROM %s;",
			p.Table, p.Table)
	}
	return ""
}

func firstColumn(p DetectedPattern) string {
	if len(p.Columns) > 0 {
		return p.Columns[0]
	}
	return "<column>"
}
