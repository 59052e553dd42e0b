package advisor

// PatternType identifies a schema anti-pattern class.
type PatternType string

const (
	PatternLOBCliff           PatternType = "LOB_CLIFF"
	PatternJoinDimension      PatternType = "JOIN_DIMENSION"
	PatternDocumentRelational PatternType = "DOCUMENT_RELATIONAL"
	PatternDualityView        PatternType = "DUALITY_VIEW"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// OperationKind classifies a query template by its dominant operation.
type OperationKind string

const (
	OpRead      OperationKind = "read"
	OpInsert    OperationKind = "insert"
	OpUpdate    OperationKind = "update"
	OpDelete    OperationKind = "delete"
	OpAggregate OperationKind = "aggregate"
	OpJoin      OperationKind = "join"
)

// QueryPattern is a deduplicated query template with aggregate statistics,
// produced by the upstream feature pipeline. Immutable once built; detectors
// consume it read-only.
type QueryPattern struct {
	// Tables touched by the template. For join patterns the first entry is
	// the fact side; the rest are joined dimensions.
	Tables []string `json:"tables" yaml:"tables"`
	// Columns referenced, optionally qualified as "table.column".
	// Unqualified names are attributed to the first table.
	Columns          []string      `json:"columns,omitempty" yaml:"columns,omitempty"`
	Operation        OperationKind `json:"operation" yaml:"operation"`
	ExecutionCount   int64         `json:"executionCount" yaml:"executionCount"`
	AvgElapsedMillis float64       `json:"avgElapsedMillis" yaml:"avgElapsedMillis"`
	AvgBytesRead     int64         `json:"avgBytesRead" yaml:"avgBytesRead"`
	// UpdateSelectivity is the fraction of the row/document actually
	// modified per update execution. Meaningful for update patterns only.
	UpdateSelectivity float64 `json:"updateSelectivity,omitempty" yaml:"updateSelectivity,omitempty"`
	// SelectStar marks read templates that fetch the full row/document.
	SelectStar bool `json:"selectStar,omitempty" yaml:"selectStar,omitempty"`
}

type ColumnMetadata struct {
	Name         string `json:"name" yaml:"name"`
	DataType     string `json:"dataType" yaml:"dataType"`
	Nullable     bool   `json:"nullable" yaml:"nullable"`
	AvgSizeBytes int64  `json:"avgSizeBytes,omitempty" yaml:"avgSizeBytes,omitempty"`
}

// TableMetadata is an immutable per-table schema snapshot for one analysis run.
type TableMetadata struct {
	Name          string           `json:"name" yaml:"name"`
	Columns       []ColumnMetadata `json:"columns" yaml:"columns"`
	RowCount      int64            `json:"rowCount" yaml:"rowCount"`
	Indexes       []string         `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	UpdatesPerDay float64          `json:"updatesPerDay" yaml:"updatesPerDay"`
}

// DetectedPattern is a single anti-pattern finding. Created once per detector
// run and never mutated afterwards; confidence and severity adjustments happen
// before construction.
type DetectedPattern struct {
	PatternType PatternType `json:"patternType"`
	Table       string      `json:"table"`
	Columns     []string    `json:"columns,omitempty"`
	// RelatedTable names the fact table for JOIN_DIMENSION findings.
	RelatedTable string `json:"relatedTable,omitempty"`
	// Direction is "document" or "relational" for DOCUMENT_RELATIONAL
	// findings, empty otherwise.
	Direction  string             `json:"direction,omitempty"`
	Severity   Severity           `json:"severity"`
	Confidence float64            `json:"confidence"`
	Summary    string             `json:"summary"`
	Metrics    map[string]float64 `json:"metrics"`
}

// CostEstimate prices one finding under a cost model. Owned one-to-one by a
// DetectedPattern; computed once and never recomputed downstream.
type CostEstimate struct {
	AnnualSavings      float64  `json:"annualSavings"`
	ImplementationCost float64  `json:"implementationCost"`
	ROI                float64  `json:"roi"`
	Priority           Priority `json:"priority"`
}

// Candidate pairs a finding with its cost estimate.
type Candidate struct {
	Pattern DetectedPattern `json:"pattern"`
	Cost    CostEstimate    `json:"cost"`
}

type Resolution string

const (
	ResolutionKeepHighestROI       Resolution = "KEEP_HIGHEST_ROI"
	ResolutionMergeIntoDualityView Resolution = "MERGE_INTO_DUALITY_VIEW"
	ResolutionManualReview         Resolution = "FLAG_FOR_MANUAL_REVIEW"
)

// TradeoffConflict records two or more findings on the same table proposing
// mutually exclusive storage strategies, and how the conflict was resolved.
type TradeoffConflict struct {
	Table      string        `json:"table"`
	Competing  []PatternType `json:"competing"`
	Resolution Resolution    `json:"resolution"`
}

// Alternative is a finding that lost a tradeoff conflict, retained on the
// winning recommendation as an audit trail.
type Alternative struct {
	Pattern DetectedPattern `json:"pattern"`
	Cost    CostEstimate    `json:"cost"`
	Reason  string          `json:"reason"`
}

// Plan is an ordered implementation or rollback procedure. SQL may come from
// the generation collaborator or from the deterministic fallback.
type Plan struct {
	Steps []string `json:"steps"`
	SQL   string   `json:"sql"`
	// Generated is false when the fallback produced the SQL text.
	Generated bool     `json:"generated"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Recommendation is the terminal, externally visible entity. Built once,
// immutable, ordered by priority then ROI then confidence.
type Recommendation struct {
	Rank           int             `json:"rank"`
	Pattern        DetectedPattern `json:"pattern"`
	Cost           CostEstimate    `json:"cost"`
	Rationale      string          `json:"rationale"`
	Implementation Plan            `json:"implementation"`
	Rollback       Plan            `json:"rollback"`
	Alternatives   []Alternative   `json:"alternatives,omitempty"`
	ManualReview   bool            `json:"manualReview,omitempty"`
}

// RunMetrics summarizes one analysis run for downstream consumers.
type RunMetrics struct {
	QueryPatternCount    int                 `json:"queryPatternCount"`
	TableCount           int                 `json:"tableCount"`
	SkippedTables        int                 `json:"skippedTables"`
	SkippedQueryPatterns int                 `json:"skippedQueryPatterns"`
	FindingsByPattern    map[PatternType]int `json:"findingsByPattern"`
	SuppressedByVolume   int                 `json:"suppressedByVolume"`
	ConflictsDetected    int                 `json:"conflictsDetected"`
	ConflictsResolved    int                 `json:"conflictsResolved"`
	ManualReviewCount    int                 `json:"manualReviewCount"`
	GeneratorFallbacks   int                 `json:"generatorFallbacks"`
	ElapsedMillis        int64               `json:"elapsedMillis"`
}

func severityWeight(s Severity) float64 {
	switch s {
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 0.66
	default:
		return 0.33
	}
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

func clampFloat(value float64, min float64, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
