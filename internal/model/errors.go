package model

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a fatal model error. Any ModelError blocks all
// artifact generation for the request.
type ErrorKind string

const (
	ErrDuplicateID            ErrorKind = "duplicate_node_id"
	ErrUnknownParent          ErrorKind = "unknown_parent"
	ErrParentCycle            ErrorKind = "parent_cycle"
	ErrIncludeExcludeConflict ErrorKind = "include_exclude_conflict"
	ErrAmbiguousPrimary       ErrorKind = "ambiguous_primary_mapping"
	ErrTooManyLevels          ErrorKind = "too_many_levels"
	ErrTooManyFilterGroups    ErrorKind = "too_many_filter_groups"
	ErrCircularFormula        ErrorKind = "circular_formula_reference"
	ErrUnresolvedReference    ErrorKind = "unresolved_parameter_reference"
	ErrUnresolvedFilterGroup  ErrorKind = "unresolved_filter_group"
)

// ModelError is a fatal semantic error attached to a node.
type ModelError struct {
	Kind   ErrorKind
	NodeID string
	Detail string
}

func (e ModelError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: node %q: %s", e.Kind, e.NodeID, e.Detail)
	}
	return fmt.Sprintf("%s: node %q", e.Kind, e.NodeID)
}

// Errors is a collection of ModelError values that itself satisfies error.
type Errors []ModelError

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// DiagnosticKind classifies a non-fatal warning attached to otherwise
// successful output.
type DiagnosticKind string

const (
	DiagUnsupportedArtifact    DiagnosticKind = "unsupported_artifact_for_dialect"
	DiagInactiveMappingSkipped DiagnosticKind = "inactive_mapping_skipped"
	DiagVarianceMissingPrimary DiagnosticKind = "variance_missing_primary"
)

// Diagnostic is a non-fatal warning. Generation proceeds.
type Diagnostic struct {
	Kind   DiagnosticKind
	NodeID string
	Detail string
}

func (d Diagnostic) String() string {
	if d.NodeID != "" {
		return fmt.Sprintf("%s: node %q: %s", d.Kind, d.NodeID, d.Detail)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}
