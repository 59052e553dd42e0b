// Package collector pulls workload digest statistics and table metadata from
// a MySQL-protocol monitored database and converts them into the evidence
// records the advisor consumes. Conversion failures are reported as a
// distinct error kind, skipped per record, and never surface as detector
// failures.
package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"schemadvisor/internal/advisor"
)

type Options struct {
	// Database restricts collection to one schema; empty collects all
	// non-system schemas.
	Database string
	// WindowDays is the monitoring window the digest statistics cover.
	WindowDays float64
	// MinExecutions drops digest rows below this count before conversion.
	MinExecutions int64
	// MaxTables caps the number of tables collected (largest first).
	MaxTables int
}

type Result struct {
	Queries  []advisor.QueryPattern
	Tables   []advisor.TableMetadata
	Skipped  int
	Warnings []string
}

// ConversionError reports a malformed upstream row. The row is skipped; the
// collection continues.
type ConversionError struct {
	Source string
	Detail string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("collector conversion: %s: %s", e.Source, e.Detail)
}

const systemSchemaPredicate = "table_schema NOT IN ('information_schema','mysql','performance_schema','sys')"

const digestScanLimit = 5000

// Collect gathers one evidence snapshot from the monitored database.
func Collect(ctx context.Context, cfg ConnConfig, opts Options, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 7
	}
	if opts.MaxTables <= 0 {
		opts.MaxTables = 500
	}

	db, err := openAndPing(ctx, cfg)
	if err != nil {
		return Result{}, err
	}
	defer db.Close()

	result := Result{}
	facts, err := collectTables(ctx, db, opts, &result, logger)
	if err != nil {
		return Result{}, err
	}
	if err := collectColumns(ctx, db, opts, facts, logger); err != nil {
		return Result{}, err
	}
	if err := collectIndexes(ctx, db, opts, facts); err != nil {
		// Index metadata is optional on some servers.
		result.Warnings = append(result.Warnings, fmt.Sprintf("index metadata unavailable: %v", err))
	}

	updatesPerTable, err := collectDigests(ctx, db, opts, facts, &result, logger)
	if err != nil {
		return Result{}, err
	}

	for name, tf := range facts {
		if updates, ok := updatesPerTable[name]; ok && updates > 0 {
			tf.meta.UpdatesPerDay = updates / opts.WindowDays
		}
	}
	for _, name := range sortedFactNames(facts) {
		result.Tables = append(result.Tables, facts[name].meta)
	}
	return result, nil
}

type tableFacts struct {
	meta         advisor.TableMetadata
	avgRowLength int64
}

func collectTables(
	ctx context.Context,
	db *sql.DB,
	opts Options,
	result *Result,
	logger *slog.Logger,
) (map[string]*tableFacts, error) {
	query := "SELECT table_name, table_rows, avg_row_length " +
		"FROM information_schema.tables " +
		"WHERE table_type = 'BASE TABLE' AND " + systemSchemaPredicate
	args := make([]any, 0, 1)
	if database := strings.TrimSpace(opts.Database); database != "" {
		query += " AND table_schema = ?"
		args = append(args, database)
	}
	query += fmt.Sprintf(" ORDER BY table_rows * avg_row_length DESC, table_name LIMIT %d", opts.MaxTables)

	rows, err := queryRowsAsStringMaps(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}

	facts := make(map[string]*tableFacts, len(rows))
	for i := range rows {
		row := rows[i]
		name := firstNonEmptyValue(row, "table_name")
		if name == "" {
			result.Skipped++
			logger.Warn("skipping table row", "error",
				&ConversionError{Source: "information_schema.tables", Detail: "missing table_name"})
			continue
		}
		rowCount, _ := parseInt64Loose(firstNonEmptyValue(row, "table_rows"))
		avgRowLength, _ := parseInt64Loose(firstNonEmptyValue(row, "avg_row_length"))
		facts[name] = &tableFacts{
			meta: advisor.TableMetadata{
				Name:     name,
				RowCount: rowCount,
			},
			avgRowLength: avgRowLength,
		}
	}
	return facts, nil
}

func collectColumns(
	ctx context.Context,
	db *sql.DB,
	opts Options,
	facts map[string]*tableFacts,
	logger *slog.Logger,
) error {
	query := "SELECT table_name, column_name, data_type, is_nullable " +
		"FROM information_schema.columns " +
		"WHERE " + systemSchemaPredicate
	args := make([]any, 0, 1)
	if database := strings.TrimSpace(opts.Database); database != "" {
		query += " AND table_schema = ?"
		args = append(args, database)
	}
	query += " ORDER BY table_name, ordinal_position"

	rows, err := queryRowsAsStringMaps(ctx, db, query, args...)
	if err != nil {
		return err
	}
	for i := range rows {
		row := rows[i]
		tf, ok := facts[firstNonEmptyValue(row, "table_name")]
		if !ok {
			continue
		}
		columnName := firstNonEmptyValue(row, "column_name")
		if columnName == "" {
			continue
		}
		dataType := strings.ToLower(firstNonEmptyValue(row, "data_type"))
		tf.meta.Columns = append(tf.meta.Columns, advisor.ColumnMetadata{
			Name:         columnName,
			DataType:     dataType,
			Nullable:     strings.EqualFold(firstNonEmptyValue(row, "is_nullable"), "YES"),
			AvgSizeBytes: estimateColumnSize(dataType, tf.avgRowLength),
		})
	}
	return nil
}

func collectIndexes(ctx context.Context, db *sql.DB, opts Options, facts map[string]*tableFacts) error {
	query := "SELECT DISTINCT table_name, index_name " +
		"FROM information_schema.statistics " +
		"WHERE " + systemSchemaPredicate
	args := make([]any, 0, 1)
	if database := strings.TrimSpace(opts.Database); database != "" {
		query += " AND table_schema = ?"
		args = append(args, database)
	}
	query += " ORDER BY table_name, index_name"

	rows, err := queryRowsAsStringMaps(ctx, db, query, args...)
	if err != nil {
		return err
	}
	for i := range rows {
		row := rows[i]
		tf, ok := facts[firstNonEmptyValue(row, "table_name")]
		if !ok {
			continue
		}
		if indexName := firstNonEmptyValue(row, "index_name"); indexName != "" {
			tf.meta.Indexes = append(tf.meta.Indexes, indexName)
		}
	}
	return nil
}

// collectDigests converts statement digest statistics into query patterns
// and returns update execution totals per table.
func collectDigests(
	ctx context.Context,
	db *sql.DB,
	opts Options,
	facts map[string]*tableFacts,
	result *Result,
	logger *slog.Logger,
) (map[string]float64, error) {
	query := "SELECT digest_text, count_star, avg_timer_wait, sum_rows_examined " +
		"FROM performance_schema.events_statements_summary_by_digest " +
		"WHERE digest_text IS NOT NULL"
	args := make([]any, 0, 2)
	if database := strings.TrimSpace(opts.Database); database != "" {
		query += " AND schema_name = ?"
		args = append(args, database)
	}
	if opts.MinExecutions > 0 {
		query += " AND count_star >= ?"
		args = append(args, opts.MinExecutions)
	}
	query += fmt.Sprintf(" ORDER BY count_star DESC LIMIT %d", digestScanLimit)

	rows, err := queryRowsAsStringMaps(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}

	updatesPerTable := make(map[string]float64, len(facts))
	for i := range rows {
		row := rows[i]
		pattern, convErr := convertDigestRow(row, facts)
		if convErr != nil {
			result.Skipped++
			logger.Debug("skipping digest row", "error", convErr)
			continue
		}
		if pattern.Operation == advisor.OpUpdate && len(pattern.Tables) > 0 {
			updatesPerTable[pattern.Tables[0]] += float64(pattern.ExecutionCount)
		}
		result.Queries = append(result.Queries, pattern)
	}
	return updatesPerTable, nil
}

func convertDigestRow(row map[string]string, facts map[string]*tableFacts) (advisor.QueryPattern, *ConversionError) {
	digestText := firstNonEmptyValue(row, "digest_text")
	if digestText == "" {
		return advisor.QueryPattern{}, &ConversionError{
			Source: "events_statements_summary_by_digest", Detail: "empty digest_text",
		}
	}
	info, ok := classifyDigest(digestText)
	if !ok {
		return advisor.QueryPattern{}, &ConversionError{
			Source: "events_statements_summary_by_digest",
			Detail: "unsupported statement kind",
		}
	}
	executions, ok := parseInt64Loose(firstNonEmptyValue(row, "count_star"))
	if !ok || executions <= 0 {
		return advisor.QueryPattern{}, &ConversionError{
			Source: "events_statements_summary_by_digest", Detail: "invalid count_star",
		}
	}
	// avg_timer_wait is reported in picoseconds.
	avgTimerPicos, _ := parseFloat64Loose(firstNonEmptyValue(row, "avg_timer_wait"))
	rowsExamined, _ := parseFloat64Loose(firstNonEmptyValue(row, "sum_rows_examined"))

	pattern := advisor.QueryPattern{
		Tables:           info.Tables,
		Columns:          info.Columns,
		Operation:        info.Operation,
		ExecutionCount:   executions,
		AvgElapsedMillis: avgTimerPicos / 1e9,
		SelectStar:       info.SelectStar,
	}
	if len(info.Tables) > 0 {
		if tf, ok := facts[info.Tables[0]]; ok {
			if executions > 0 && tf.avgRowLength > 0 {
				pattern.AvgBytesRead = int64(rowsExamined / float64(executions) * float64(tf.avgRowLength))
			}
			if info.Operation == advisor.OpUpdate && len(tf.meta.Columns) > 0 {
				pattern.UpdateSelectivity = clamp01(float64(info.SetColumns) / float64(len(tf.meta.Columns)))
			}
		}
	}
	return pattern, nil
}

func estimateColumnSize(dataType string, avgRowLength int64) int64 {
	if isLOBType(dataType) {
		// The large object dominates the row weight; attribute the bulk of
		// the average row length to it.
		if avgRowLength > 0 {
			return avgRowLength
		}
		return 0
	}
	return 32
}

func isLOBType(dataType string) bool {
	switch dataType {
	case "json", "text", "mediumtext", "longtext", "clob", "xml",
		"blob", "mediumblob", "longblob", "varbinary", "jsonb", "bytea":
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortedFactNames(facts map[string]*tableFacts) []string {
	names := make([]string, 0, len(facts))
	for name := range facts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
