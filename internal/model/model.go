// Package model defines the hierarchy data model and its semantic validation.
//
// A project is supplied to the engine as an immutable Snapshot: the full set
// of hierarchy nodes, the filter groups they reference, and an optional
// variance configuration. Shape validation (types, required fields) is the
// caller's job; this package performs semantic validation only.
package model

// MaxLevels is the maximum depth of the denormalized level path on a node.
const MaxLevels = 15

// MaxFilterGroupRefs is the maximum number of filter-group references per node.
const MaxFilterGroupRefs = 4

// Operation is a formula operation over a list of operands.
type Operation string

const (
	OpAdd      Operation = "ADD"
	OpSubtract Operation = "SUBTRACT"
	OpMultiply Operation = "MULTIPLY"
	OpDivide   Operation = "DIVIDE"
	OpSum      Operation = "SUM"
	OpAverage  Operation = "AVERAGE"
	OpCount    Operation = "COUNT"
	OpMin      Operation = "MIN"
	OpMax      Operation = "MAX"
)

// IsAggregate reports whether the operation folds all operands with a single
// SQL aggregate rather than combining them arithmetically.
func (o Operation) IsAggregate() bool {
	switch o {
	case OpSum, OpAverage, OpCount, OpMin, OpMax:
		return true
	}
	return false
}

// JoinType is the SQL join type declared on a source mapping.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
)

// SystemType identifies the planning scenario a mapping represents.
type SystemType string

const (
	SystemActuals   SystemType = "ACTUALS"
	SystemBudget    SystemType = "BUDGET"
	SystemForecast  SystemType = "FORECAST"
	SystemPriorYear SystemType = "PRIOR_YEAR"
	SystemCustom    SystemType = "CUSTOM"
)

// SystemTypes lists all system types in canonical order. Fact planning and
// rendering iterate in this order so output is stable.
var SystemTypes = []SystemType{SystemActuals, SystemBudget, SystemForecast, SystemPriorYear, SystemCustom}

// DimensionRole determines join anchoring in fact-table generation.
type DimensionRole string

const (
	RolePrimary   DimensionRole = "PRIMARY"
	RoleSecondary DimensionRole = "SECONDARY"
	RoleOptional  DimensionRole = "OPTIONAL"
)

// Logic is the boolean connective between filter conditions.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ArtifactKind identifies one generated SQL artifact type.
type ArtifactKind string

const (
	ArtifactInsert       ArtifactKind = "INSERT"
	ArtifactView         ArtifactKind = "VIEW"
	ArtifactMapping      ArtifactKind = "MAPPING"
	ArtifactDynamicTable ArtifactKind = "DYNAMIC_TABLE"
	ArtifactFactTable    ArtifactKind = "FACT_TABLE"
	ArtifactAll          ArtifactKind = "ALL"
)

// ArtifactKinds lists the concrete artifact kinds (ALL excluded) in the
// order the orchestrator generates them.
var ArtifactKinds = []ArtifactKind{ArtifactInsert, ArtifactView, ArtifactMapping, ArtifactDynamicTable, ArtifactFactTable}

// Level is one entry of a node's materialized level path.
type Level struct {
	Label     string `json:"label"`
	SortOrder int    `json:"sort_order"`
}

// Flags holds the named booleans on a node. Include and Exclude may both be
// false (neutral) but must not both be true.
type Flags struct {
	Include       bool            `json:"include"`
	Exclude       bool            `json:"exclude"`
	IsCalculation bool            `json:"is_calculation"`
	SignChange    bool            `json:"sign_change"`
	IsLeaf        bool            `json:"is_leaf"`
	Active        bool            `json:"active"`
	Custom        map[string]bool `json:"custom,omitempty"`
}

// FormulaRule is one operand of a formula. It references another node by ID,
// carries an evaluation precedence within the group, and may instead supply a
// cross-group parameter reference or a constant.
type FormulaRule struct {
	NodeID       string   `json:"node_id"`
	Precedence   int      `json:"precedence"`
	ParameterRef string   `json:"parameter_ref,omitempty"`
	Constant     *float64 `json:"constant,omitempty"`
}

// Formula is a named operation over FormulaRule operands.
type Formula struct {
	Operation Operation     `json:"operation"`
	Rules     []FormulaRule `json:"rules"`
}

// FilterCondition is one column/operator/value predicate. Logic connects the
// condition to whatever precedes it in the node's filter.
type FilterCondition struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Logic    Logic  `json:"logic"`
}

// GroupRef references a shared FilterGroup by ID. Logic connects the group's
// expansion to the conditions accumulated before it.
type GroupRef struct {
	GroupID string `json:"group_id"`
	Logic   Logic  `json:"logic"`
}

// Filter is a node's filter configuration: up to MaxFilterGroupRefs group
// references, inline conditions, and an optional raw-SQL escape hatch.
type Filter struct {
	GroupRefs  []GroupRef        `json:"group_refs,omitempty"`
	Conditions []FilterCondition `json:"conditions,omitempty"`
	RawSQL     string            `json:"raw_sql,omitempty"`
}

// JoinKey is one column pair of a multi-column join.
type JoinKey struct {
	SourceColumn string `json:"source_column"`
	TargetColumn string `json:"target_column"`
	Operator     string `json:"operator"` // =, LIKE, IN
}

// MappingFlags holds the named booleans on a source mapping.
type MappingFlags struct {
	Include   bool `json:"include"`
	Exclude   bool `json:"exclude"`
	Transform bool `json:"transform"`
	Active    bool `json:"active"`
}

// SourceMapping points a node at a physical source column.
type SourceMapping struct {
	Index           int           `json:"index"`
	Database        string        `json:"database"`
	Schema          string        `json:"schema"`
	Table           string        `json:"table"`
	Column          string        `json:"column"`
	UID             string        `json:"uid,omitempty"`
	JoinType        JoinType      `json:"join_type"`
	SystemType      SystemType    `json:"system_type"`
	DimensionRole   DimensionRole `json:"dimension_role"`
	PrecedenceGroup string        `json:"precedence_group"`
	JoinKeys        []JoinKey     `json:"join_keys,omitempty"`
	Flags           MappingFlags  `json:"flags"`
}

// QualifiedTable returns the dot-joined physical table reference.
func (m SourceMapping) QualifiedTable() string {
	s := m.Table
	if m.Schema != "" {
		s = m.Schema + "." + s
	}
	if m.Database != "" {
		s = m.Database + "." + s
	}
	return s
}

// Pivot declares columns to pivot with a per-column aggregate function.
type Pivot struct {
	Columns   []string `json:"columns"`
	Aggregate string   `json:"aggregate"`
}

// HierarchyNode is one taxonomy entry.
type HierarchyNode struct {
	ID          string          `json:"id"`
	ParentID    string          `json:"parent_id,omitempty"` // empty means root
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Levels      []Level         `json:"levels,omitempty"`
	Flags       Flags           `json:"flags"`
	Formula     *Formula        `json:"formula,omitempty"`
	Filter      *Filter         `json:"filter,omitempty"`
	Mappings    []SourceMapping `json:"mappings,omitempty"`
	Pivot       *Pivot          `json:"pivot,omitempty"`
}

// FilterGroup is a named, independently stored filter definition shared
// across nodes. The engine treats the group store as read-only; editing
// semantics (copy-on-write at the node reference) live in the persistence
// layer.
type FilterGroup struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Conditions []FilterCondition `json:"conditions,omitempty"`
	RawSQL     string            `json:"raw_sql,omitempty"`
}

// VarianceComparison derives `minuend - subtrahend` columns in fact tables.
type VarianceComparison struct {
	Name           string     `json:"name"`
	Minuend        SystemType `json:"minuend"`
	Subtrahend     SystemType `json:"subtrahend"`
	IncludePercent bool       `json:"include_percent"`
}

// VarianceConfig configures fact-table variance columns.
type VarianceConfig struct {
	IncludeVariance bool                 `json:"include_variance"`
	Comparisons     []VarianceComparison `json:"comparisons,omitempty"`
}

// Snapshot is the full, immutable input to one compilation request.
type Snapshot struct {
	Project  string          `json:"project"`
	Nodes    []HierarchyNode `json:"nodes"`
	Groups   []FilterGroup   `json:"groups,omitempty"`
	Variance *VarianceConfig `json:"variance,omitempty"`
}
