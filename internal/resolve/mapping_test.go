package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-data/treeline/internal/model"
)

func mapping(idx int, table string) model.SourceMapping {
	return model.SourceMapping{
		Index: idx, Schema: "src", Table: table, Column: "AMOUNT",
		SystemType: model.SystemActuals, DimensionRole: model.RoleSecondary,
		Flags: model.MappingFlags{Active: true},
	}
}

func TestAggregateMappingsInheritsChildToParentOnly(t *testing.T) {
	parent := model.HierarchyNode{ID: "parent", Name: "parent", Mappings: []model.SourceMapping{mapping(1, "p_table")}}
	child := model.HierarchyNode{ID: "child", ParentID: "parent", Name: "child", Mappings: []model.SourceMapping{mapping(2, "c_table")}}

	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{parent, child}})
	agg := AggregateMappings(vm)

	parentMappings := agg.ByNode["parent"][""][model.SystemActuals]
	require.Len(t, parentMappings, 2)
	assert.Equal(t, "p_table", parentMappings[0].Table)
	assert.Empty(t, parentMappings[0].InheritedFrom)
	assert.Equal(t, "c_table", parentMappings[1].Table)
	assert.Equal(t, "child", parentMappings[1].InheritedFrom)

	// Inheritance never flows downward.
	childMappings := agg.ByNode["child"][""][model.SystemActuals]
	require.Len(t, childMappings, 1)
	assert.Equal(t, "c_table", childMappings[0].Table)
}

func TestAggregateMappingsTransitiveThroughGrandchild(t *testing.T) {
	root := model.HierarchyNode{ID: "a", Name: "a"}
	mid := model.HierarchyNode{ID: "b", ParentID: "a", Name: "b"}
	leaf := model.HierarchyNode{ID: "c", ParentID: "b", Name: "c", Mappings: []model.SourceMapping{mapping(1, "leaf_table")}}

	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{root, mid, leaf}})
	agg := AggregateMappings(vm)

	rootMappings := agg.ByNode["a"][""][model.SystemActuals]
	require.Len(t, rootMappings, 1)
	assert.Equal(t, "leaf_table", rootMappings[0].Table)
	assert.Equal(t, "c", rootMappings[0].InheritedFrom)
}

func TestAggregateMappingsPrecedenceGroupBlocksInheritance(t *testing.T) {
	grouped := mapping(1, "alt_table")
	grouped.PrecedenceGroup = "ALT"

	transformed := mapping(2, "xform_table")
	transformed.PrecedenceGroup = "ALT"
	transformed.Flags.Transform = true

	parent := model.HierarchyNode{ID: "parent", Name: "parent"}
	child := model.HierarchyNode{ID: "child", ParentID: "parent", Name: "child",
		Mappings: []model.SourceMapping{grouped, transformed}}

	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{parent, child}})
	agg := AggregateMappings(vm)

	// Only the Transform-flagged mapping crosses upward, and it keeps its
	// own precedence group.
	parentAlt := agg.ByNode["parent"]["ALT"][model.SystemActuals]
	require.Len(t, parentAlt, 1)
	assert.Equal(t, "xform_table", parentAlt[0].Table)
	assert.Equal(t, "child", parentAlt[0].InheritedFrom)
}

func TestAggregateMappingsSkipsInactiveWithDiagnostic(t *testing.T) {
	inactive := mapping(1, "dead_table")
	inactive.Flags.Active = false

	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{inactive, mapping(2, "live_table")}}

	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})
	agg := AggregateMappings(vm)

	require.Len(t, agg.ByNode["a"][""][model.SystemActuals], 1)
	require.Len(t, agg.Diagnostics, 1)
	assert.Equal(t, model.DiagInactiveMappingSkipped, agg.Diagnostics[0].Kind)
	assert.Equal(t, "a", agg.Diagnostics[0].NodeID)
	assert.Contains(t, agg.Diagnostics[0].Detail, "dead_table")
}

func TestGroupedMappingsOrdering(t *testing.T) {
	a := mapping(2, "second")
	b := mapping(1, "first")
	budget := mapping(3, "bud")
	budget.SystemType = model.SystemBudget

	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{a, b, budget}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})
	agg := AggregateMappings(vm)

	grouped := agg.ByNode["a"]
	assert.Equal(t, []string{""}, grouped.PrecedenceGroups())

	actuals := grouped[""][model.SystemActuals]
	require.Len(t, actuals, 2)
	assert.Equal(t, "first", actuals[0].Table)
	assert.Equal(t, "second", actuals[1].Table)
	require.Len(t, grouped[""][model.SystemBudget], 1)
}
