package advisor

import (
	"log/slog"
	"sort"
	"strings"
)

// tableEvidence aggregates the workload observed against one table. All
// counters are execution-weighted.
type tableEvidence struct {
	meta TableMetadata

	totalExecutions     int64
	readExecutions      int64
	insertExecutions    int64
	updateExecutions    int64
	deleteExecutions    int64
	aggregateExecutions int64
	joinExecutions      int64

	selectStarExecutions  int64
	multiColumnUpdates    int64
	updateSelectivitySum  float64 // weighted by update executions
	elapsedWeightedMillis float64 // sum of executions * avgElapsed
	bytesReadTotal        float64
}

type joinKey struct {
	Fact      string
	Dimension string
}

type joinEvidence struct {
	executions            int64
	elapsedWeightedMillis float64
	bytesReadTotal        float64
	dimensionColumns      map[string]struct{}
}

// workloadEvidence is the read-only index detectors share. It is built once
// per run and never mutated afterwards, so detectors can run in parallel
// without synchronization.
type workloadEvidence struct {
	tables     map[string]*tableEvidence
	tableOrder []string
	joins      map[joinKey]*joinEvidence
	joinOrder  []joinKey

	totalExecutions      int64
	skippedTables        int
	skippedQueryPatterns int

	multiColumnMin int
}

func buildWorkloadEvidence(
	queries []QueryPattern,
	tables []TableMetadata,
	multiColumnMin int,
	logger *slog.Logger,
) *workloadEvidence {
	if multiColumnMin <= 0 {
		multiColumnMin = 1
	}
	ev := &workloadEvidence{
		tables:         make(map[string]*tableEvidence, len(tables)),
		joins:          make(map[joinKey]*joinEvidence, 16),
		multiColumnMin: multiColumnMin,
	}

	for i := range tables {
		meta := tables[i]
		name := strings.TrimSpace(meta.Name)
		if name == "" || len(meta.Columns) == 0 {
			ev.skippedTables++
			logger.Warn("skipping table with malformed metadata",
				"table", meta.Name, "columns", len(meta.Columns))
			continue
		}
		if _, exists := ev.tables[name]; exists {
			ev.skippedTables++
			logger.Warn("skipping duplicate table metadata", "table", name)
			continue
		}
		ev.tables[name] = &tableEvidence{meta: meta}
		ev.tableOrder = append(ev.tableOrder, name)
	}
	sort.Strings(ev.tableOrder)

	for i := range queries {
		q := queries[i]
		if q.ExecutionCount <= 0 || len(q.Tables) == 0 {
			ev.skippedQueryPatterns++
			continue
		}
		known := ev.knownTables(q.Tables)
		if len(known) == 0 {
			// Evidence for a table we have no metadata for: skip the
			// candidate, not the batch.
			ev.skippedQueryPatterns++
			logger.Debug("skipping query pattern for unknown tables", "tables", q.Tables)
			continue
		}
		ev.totalExecutions += q.ExecutionCount
		for _, name := range known {
			ev.recordTable(ev.tables[name], q)
		}
		if q.Operation == OpJoin && len(q.Tables) >= 2 {
			ev.recordJoin(q)
		}
	}

	ev.joinOrder = make([]joinKey, 0, len(ev.joins))
	for key := range ev.joins {
		ev.joinOrder = append(ev.joinOrder, key)
	}
	sort.Slice(ev.joinOrder, func(i, j int) bool {
		if ev.joinOrder[i].Fact != ev.joinOrder[j].Fact {
			return ev.joinOrder[i].Fact < ev.joinOrder[j].Fact
		}
		return ev.joinOrder[i].Dimension < ev.joinOrder[j].Dimension
	})
	return ev
}

func (ev *workloadEvidence) knownTables(names []string) []string {
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := ev.tables[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (ev *workloadEvidence) recordTable(te *tableEvidence, q QueryPattern) {
	execs := q.ExecutionCount
	te.totalExecutions += execs
	te.elapsedWeightedMillis += float64(execs) * q.AvgElapsedMillis
	te.bytesReadTotal += float64(execs) * float64(q.AvgBytesRead)

	switch q.Operation {
	case OpRead:
		te.readExecutions += execs
		if q.SelectStar {
			te.selectStarExecutions += execs
		}
	case OpInsert:
		te.insertExecutions += execs
	case OpUpdate:
		te.updateExecutions += execs
		te.updateSelectivitySum += float64(execs) * clampFloat(q.UpdateSelectivity, 0, 1)
		if columnsForTable(q.Columns, te.meta.Name) >= ev.multiColumnMin {
			te.multiColumnUpdates += execs
		}
	case OpDelete:
		te.deleteExecutions += execs
	case OpAggregate:
		te.aggregateExecutions += execs
	case OpJoin:
		te.joinExecutions += execs
	}
}

func (ev *workloadEvidence) recordJoin(q QueryPattern) {
	fact := strings.TrimSpace(q.Tables[0])
	if _, ok := ev.tables[fact]; !ok {
		return
	}
	for _, raw := range q.Tables[1:] {
		dim := strings.TrimSpace(raw)
		if dim == "" || dim == fact {
			continue
		}
		if _, ok := ev.tables[dim]; !ok {
			continue
		}
		key := joinKey{Fact: fact, Dimension: dim}
		je, ok := ev.joins[key]
		if !ok {
			je = &joinEvidence{dimensionColumns: make(map[string]struct{}, 4)}
			ev.joins[key] = je
		}
		je.executions += q.ExecutionCount
		je.elapsedWeightedMillis += float64(q.ExecutionCount) * q.AvgElapsedMillis
		je.bytesReadTotal += float64(q.ExecutionCount) * float64(q.AvgBytesRead)
		for _, col := range q.Columns {
			table, column, qualified := splitQualifiedColumn(col)
			if qualified && table == dim && column != "" {
				je.dimensionColumns[column] = struct{}{}
			}
		}
	}
}

func (ev *workloadEvidence) executionsPerDay(execs int64, windowDays float64) float64 {
	if windowDays <= 0 {
		return 0
	}
	return float64(execs) / windowDays
}

func (te *tableEvidence) avgElapsedMillis() float64 {
	if te.totalExecutions <= 0 {
		return 0
	}
	return te.elapsedWeightedMillis / float64(te.totalExecutions)
}

func (te *tableEvidence) avgUpdateSelectivity() float64 {
	if te.updateExecutions <= 0 {
		return 0
	}
	return te.updateSelectivitySum / float64(te.updateExecutions)
}

func (te *tableEvidence) selectStarFraction() float64 {
	if te.readExecutions <= 0 {
		return 0
	}
	return float64(te.selectStarExecutions) / float64(te.readExecutions)
}

func (te *tableEvidence) multiColumnUpdateFraction() float64 {
	if te.updateExecutions <= 0 {
		return 0
	}
	return float64(te.multiColumnUpdates) / float64(te.updateExecutions)
}

func (te *tableEvidence) nullableColumnFraction() float64 {
	if len(te.meta.Columns) == 0 {
		return 0
	}
	nullable := 0
	for i := range te.meta.Columns {
		if te.meta.Columns[i].Nullable {
			nullable++
		}
	}
	return float64(nullable) / float64(len(te.meta.Columns))
}

func (te *tableEvidence) fractionOfTotal(execs int64) float64 {
	if te.totalExecutions <= 0 {
		return 0
	}
	return float64(execs) / float64(te.totalExecutions)
}

// effectiveUpdatesPerDay prefers workload-observed update executions and
// falls back to the metadata snapshot's update frequency.
func (te *tableEvidence) effectiveUpdatesPerDay(windowDays float64) float64 {
	if te.updateExecutions > 0 && windowDays > 0 {
		return float64(te.updateExecutions) / windowDays
	}
	return te.meta.UpdatesPerDay
}

func splitQualifiedColumn(raw string) (table string, column string, qualified bool) {
	trimmed := strings.TrimSpace(raw)
	dot := strings.IndexByte(trimmed, '.')
	if dot <= 0 || dot == len(trimmed)-1 {
		return "", trimmed, false
	}
	return trimmed[:dot], trimmed[dot+1:], true
}

func columnsForTable(columns []string, table string) int {
	count := 0
	for _, raw := range columns {
		owner, column, qualified := splitQualifiedColumn(raw)
		if column == "" {
			continue
		}
		if !qualified || owner == table {
			count++
		}
	}
	return count
}
