package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, parent string) HierarchyNode {
	return HierarchyNode{ID: id, ParentID: parent, Name: id, Flags: Flags{Active: true}}
}

func kinds(errs Errors) []ErrorKind {
	out := make([]ErrorKind, len(errs))
	for i, e := range errs {
		out[i] = e.Kind
	}
	return out
}

func TestValidateAcceptsForest(t *testing.T) {
	snap := Snapshot{
		Project: "demo",
		Nodes: []HierarchyNode{
			node("root", ""),
			node("child", "root"),
			node("orphan", ""),
		},
	}

	vm, errs := Validate(snap)
	require.Empty(t, errs)
	require.NotNil(t, vm)

	assert.Equal(t, []string{"root", "orphan"}, []string{vm.Nodes[2].ID, vm.Nodes[1].ID})
	assert.Equal(t, []string{"child"}, vm.Children("root"))
	assert.Equal(t, []string{"orphan", "root"}, vm.Roots())
}

func TestValidateDuplicateID(t *testing.T) {
	snap := Snapshot{Project: "demo", Nodes: []HierarchyNode{node("a", ""), node("a", "")}}

	vm, errs := Validate(snap)
	require.Nil(t, vm)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateID, errs[0].Kind)
	assert.Equal(t, "a", errs[0].NodeID)
}

func TestValidateUnknownParent(t *testing.T) {
	snap := Snapshot{Project: "demo", Nodes: []HierarchyNode{node("a", "ghost")}}

	_, errs := Validate(snap)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownParent, errs[0].Kind)
	assert.Contains(t, errs[0].Detail, "ghost")
}

func TestValidateParentCycleReportsPath(t *testing.T) {
	snap := Snapshot{Project: "demo", Nodes: []HierarchyNode{
		node("a", "b"),
		node("b", "c"),
		node("c", "a"),
	}}

	_, errs := Validate(snap)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrParentCycle, errs[0].Kind)
	assert.Contains(t, errs[0].Detail, "a -> b -> c -> a")
}

func TestValidateStagesStopAfterIdentityErrors(t *testing.T) {
	// The duplicate ID must suppress the consistency stage entirely: the
	// include/exclude conflict on the second node is not reported.
	bad := node("b", "")
	bad.Flags.Include = true
	bad.Flags.Exclude = true

	snap := Snapshot{Project: "demo", Nodes: []HierarchyNode{node("a", ""), node("a", ""), bad}}

	_, errs := Validate(snap)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateID, errs[0].Kind)
}

func TestValidateCollectsAllErrorsOfFailingStage(t *testing.T) {
	snap := Snapshot{Project: "demo", Nodes: []HierarchyNode{
		node("a", "ghost"),
		node("b", "phantom"),
	}}

	_, errs := Validate(snap)
	require.Len(t, errs, 2)
	assert.Equal(t, []ErrorKind{ErrUnknownParent, ErrUnknownParent}, kinds(errs))
}

func TestValidateIncludeExcludeConflict(t *testing.T) {
	n := node("a", "")
	n.Flags.Include = true
	n.Flags.Exclude = true

	m := node("b", "")
	m.Mappings = []SourceMapping{{
		Index: 1, Table: "t", Column: "c",
		Flags: MappingFlags{Include: true, Exclude: true, Active: true},
	}}

	_, errs := Validate(Snapshot{Project: "demo", Nodes: []HierarchyNode{n, m}})
	require.Len(t, errs, 2)
	assert.Equal(t, []ErrorKind{ErrIncludeExcludeConflict, ErrIncludeExcludeConflict}, kinds(errs))
}

func TestValidateTooManyLevels(t *testing.T) {
	n := node("deep", "")
	for i := 0; i <= MaxLevels; i++ {
		n.Levels = append(n.Levels, Level{Label: "L", SortOrder: i})
	}

	_, errs := Validate(Snapshot{Project: "demo", Nodes: []HierarchyNode{n}})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrTooManyLevels, errs[0].Kind)
}

func TestValidateTooManyFilterGroupRefs(t *testing.T) {
	n := node("filtered", "")
	n.Filter = &Filter{}
	for i := 0; i <= MaxFilterGroupRefs; i++ {
		n.Filter.GroupRefs = append(n.Filter.GroupRefs, GroupRef{GroupID: "g"})
	}

	_, errs := Validate(Snapshot{Project: "demo", Nodes: []HierarchyNode{n}})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrTooManyFilterGroups, errs[0].Kind)
}

func TestValidateAmbiguousPrimary(t *testing.T) {
	n := node("a", "")
	primary := SourceMapping{
		Table: "t", Column: "c", SystemType: SystemActuals,
		DimensionRole: RolePrimary, Flags: MappingFlags{Active: true},
	}
	n.Mappings = []SourceMapping{primary, primary}

	_, errs := Validate(Snapshot{Project: "demo", Nodes: []HierarchyNode{n}})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrAmbiguousPrimary, errs[0].Kind)
}

func TestValidatePrimaryPerSystemTypeIsUnambiguous(t *testing.T) {
	// Two PRIMARY mappings are fine when they anchor different system types
	// or different precedence groups.
	n := node("a", "")
	n.Mappings = []SourceMapping{
		{Table: "t", Column: "c", SystemType: SystemActuals, DimensionRole: RolePrimary, Flags: MappingFlags{Active: true}},
		{Table: "t", Column: "c", SystemType: SystemBudget, DimensionRole: RolePrimary, Flags: MappingFlags{Active: true}},
		{Table: "t", Column: "c", SystemType: SystemActuals, DimensionRole: RolePrimary, PrecedenceGroup: "ALT", Flags: MappingFlags{Active: true}},
	}

	_, errs := Validate(Snapshot{Project: "demo", Nodes: []HierarchyNode{n}})
	assert.Empty(t, errs)
}
