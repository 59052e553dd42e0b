package collector

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"schemadvisor/internal/advisor"
)

// digestInfo is the shallow classification of one normalized statement
// digest. Full SQL parsing belongs to the upstream template extractor; this
// layer only needs the operation kind, the touched tables, and enough column
// signal for selectivity estimates.
type digestInfo struct {
	Operation  advisor.OperationKind
	Tables     []string
	Columns    []string
	SelectStar bool
	SetColumns int
}

// tableRef matches an optionally backtick-quoted, optionally schema-qualified
// table reference; the table name lands in the last non-empty group.
const tableRef = "`?([a-zA-Z0-9_$]+)`?(?:\\s*\\.\\s*`?([a-zA-Z0-9_$]+)`?)?"

var (
	fromTablePattern   = regexp.MustCompile("(?i)\\bfrom\\s+" + tableRef)
	joinTablePattern   = regexp.MustCompile("(?i)\\bjoin\\s+" + tableRef)
	updateTablePattern = regexp.MustCompile("(?i)^\\s*update\\s+" + tableRef)
	insertTablePattern = regexp.MustCompile("(?i)^\\s*insert\\s+(?:ignore\\s+)?into\\s+" + tableRef)
	deleteTablePattern = regexp.MustCompile("(?i)^\\s*delete\\s+from\\s+" + tableRef)
	setClausePattern   = regexp.MustCompile("(?i)\\bset\\s+(.+?)(?:\\bwhere\\b|$)")
	setColumnPattern   = regexp.MustCompile("`?([a-zA-Z0-9_$]+)`?\\s*=")
	selectStarPattern  = regexp.MustCompile(`(?i)^\s*select\s+\*`)
	aggregatePattern   = regexp.MustCompile(`(?i)\bgroup\s+by\b|\b(?:count|sum|avg|min|max)\s*\(`)
)

// classifyDigest maps a digest text to an operation kind plus the tables and
// columns it touches. DDL, SHOW, and other non-DML statements report false.
func classifyDigest(digestText string) (digestInfo, bool) {
	text := strings.TrimSpace(digestText)
	upper := strings.ToUpper(text)

	switch {
	case strings.HasPrefix(upper, "SELECT"):
		return classifySelect(text), true
	case strings.HasPrefix(upper, "UPDATE"):
		return classifyUpdate(text), true
	case strings.HasPrefix(upper, "INSERT"):
		if m := insertTablePattern.FindStringSubmatch(text); m != nil {
			return digestInfo{Operation: advisor.OpInsert, Tables: []string{tableFromMatch(m)}}, true
		}
		return digestInfo{}, false
	case strings.HasPrefix(upper, "DELETE"):
		if m := deleteTablePattern.FindStringSubmatch(text); m != nil {
			return digestInfo{Operation: advisor.OpDelete, Tables: []string{tableFromMatch(m)}}, true
		}
		return digestInfo{}, false
	default:
		return digestInfo{}, false
	}
}

func classifySelect(text string) digestInfo {
	info := digestInfo{Operation: advisor.OpRead}

	if m := fromTablePattern.FindStringSubmatch(text); m != nil {
		info.Tables = append(info.Tables, tableFromMatch(m))
	}
	joined := joinTablePattern.FindAllStringSubmatch(text, -1)
	for _, m := range joined {
		table := tableFromMatch(m)
		if table != "" && !containsString(info.Tables, table) {
			info.Tables = append(info.Tables, table)
		}
	}

	switch {
	case len(joined) > 0:
		info.Operation = advisor.OpJoin
	case aggregatePattern.MatchString(text):
		info.Operation = advisor.OpAggregate
	}
	info.SelectStar = selectStarPattern.MatchString(text)
	return info
}

func classifyUpdate(text string) digestInfo {
	info := digestInfo{Operation: advisor.OpUpdate}
	if m := updateTablePattern.FindStringSubmatch(text); m != nil {
		info.Tables = append(info.Tables, tableFromMatch(m))
	}
	if m := setClausePattern.FindStringSubmatch(text); m != nil {
		columns := setColumnPattern.FindAllStringSubmatch(m[1], -1)
		for _, col := range columns {
			info.Columns = append(info.Columns, col[1])
		}
		info.SetColumns = len(columns)
	}
	return info
}

// tableFromMatch picks the table name out of a tableRef submatch: the second
// group when the reference is schema-qualified, the first otherwise.
func tableFromMatch(m []string) string {
	if m[2] != "" {
		return m[2]
	}
	return m[1]
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func parseInt64Loose(raw string) (int64, bool) {
	normalized := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if normalized == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(normalized, 10, 64); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(normalized, 64); err == nil {
		if f < 0 {
			return 0, true
		}
		if f > math.MaxInt64 {
			return math.MaxInt64, true
		}
		return int64(f), true
	}
	return 0, false
}

func parseFloat64Loose(raw string) (float64, bool) {
	normalized := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if normalized == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
