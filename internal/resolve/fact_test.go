package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-data/treeline/internal/model"
)

func primary(st model.SystemType, table string) model.SourceMapping {
	return model.SourceMapping{
		Index: 1, Schema: "src", Table: table, Column: "AMOUNT",
		SystemType: st, DimensionRole: model.RolePrimary,
		JoinKeys: []model.JoinKey{{SourceColumn: "ACCOUNT_ID", TargetColumn: "ACCOUNT_ID", Operator: "="}},
		Flags:    model.MappingFlags{Active: true},
	}
}

func TestPlanFactAnchorsAndBase(t *testing.T) {
	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{
		primary(model.SystemBudget, "budget"),
		primary(model.SystemActuals, "actuals"),
	}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})

	plan := PlanFact(vm, AggregateMappings(vm), nil)
	require.Len(t, plan.Groups, 1)
	gp := plan.Groups[0]

	// ACTUALS precedes BUDGET in canonical order, so it is the base.
	assert.Equal(t, model.SystemActuals, gp.Base.SystemType)
	assert.Equal(t, "actuals", gp.Base.Anchor.Table)
	require.Len(t, gp.Joins, 1)
	assert.Equal(t, model.SystemBudget, gp.Joins[0].SystemType)
}

func TestPlanFactAttachesSecondaryMappings(t *testing.T) {
	secondary := model.SourceMapping{
		Index: 2, Schema: "src", Table: "dim_account", Column: "ACCOUNT_NAME",
		SystemType: model.SystemActuals, DimensionRole: model.RoleSecondary,
		Flags: model.MappingFlags{Active: true},
	}
	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{
		primary(model.SystemActuals, "actuals"),
		secondary,
	}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})

	plan := PlanFact(vm, AggregateMappings(vm), nil)
	require.Len(t, plan.Groups, 1)
	require.Len(t, plan.Groups[0].Base.Attached, 1)
	assert.Equal(t, "dim_account", plan.Groups[0].Base.Attached[0].Table)
}

func TestPlanFactGroupWithoutPrimary(t *testing.T) {
	secondary := model.SourceMapping{
		Index: 1, Table: "t", Column: "c",
		SystemType: model.SystemActuals, DimensionRole: model.RoleSecondary,
		PrecedenceGroup: "ALT",
		Flags:           model.MappingFlags{Active: true},
	}
	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{secondary}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})

	plan := PlanFact(vm, AggregateMappings(vm), nil)
	assert.Empty(t, plan.Groups)
	require.Len(t, plan.Diagnostics, 1)
	assert.Equal(t, model.DiagVarianceMissingPrimary, plan.Diagnostics[0].Kind)
	assert.Contains(t, plan.Diagnostics[0].Detail, `"ALT"`)
}

func TestPlanFactVarianceColumns(t *testing.T) {
	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{
		primary(model.SystemActuals, "actuals"),
		primary(model.SystemBudget, "budget"),
	}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})

	cfg := &model.VarianceConfig{
		IncludeVariance: true,
		Comparisons: []model.VarianceComparison{{
			Name: "Act vs Bud", Minuend: model.SystemActuals, Subtrahend: model.SystemBudget,
			IncludePercent: true,
		}},
	}

	plan := PlanFact(vm, AggregateMappings(vm), cfg)
	require.Len(t, plan.Groups, 1)
	variance := plan.Groups[0].Variance
	require.Len(t, variance, 2)
	assert.Equal(t, "Act vs Bud", variance[0].Name)
	assert.False(t, variance[0].Percent)
	assert.Equal(t, "Act vs Bud %", variance[1].Name)
	assert.True(t, variance[1].Percent)
}

func TestPlanFactVarianceMissingAnchorOmittedWithDiagnostic(t *testing.T) {
	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{
		primary(model.SystemActuals, "actuals"),
	}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})

	cfg := &model.VarianceConfig{
		IncludeVariance: true,
		Comparisons: []model.VarianceComparison{{
			Name: "Act vs Bud", Minuend: model.SystemActuals, Subtrahend: model.SystemBudget,
		}},
	}

	plan := PlanFact(vm, AggregateMappings(vm), cfg)
	require.Len(t, plan.Groups, 1)
	assert.Empty(t, plan.Groups[0].Variance)
	require.Len(t, plan.Diagnostics, 1)
	assert.Equal(t, model.DiagVarianceMissingPrimary, plan.Diagnostics[0].Kind)
	assert.Contains(t, plan.Diagnostics[0].Detail, "subtrahend BUDGET")
}

func TestPlanFactVarianceDisabled(t *testing.T) {
	n := model.HierarchyNode{ID: "a", Name: "a", Mappings: []model.SourceMapping{
		primary(model.SystemActuals, "actuals"),
		primary(model.SystemBudget, "budget"),
	}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n}})

	cfg := &model.VarianceConfig{
		IncludeVariance: false,
		Comparisons: []model.VarianceComparison{{
			Name: "Act vs Bud", Minuend: model.SystemActuals, Subtrahend: model.SystemBudget,
		}},
	}

	plan := PlanFact(vm, AggregateMappings(vm), cfg)
	require.Len(t, plan.Groups, 1)
	assert.Empty(t, plan.Groups[0].Variance)
	assert.Empty(t, plan.Diagnostics)
}

func TestPlanFactIgnoresInheritedCopies(t *testing.T) {
	// The parent sorts before the child, so its inherited copy of the
	// child's PRIMARY mapping is visited first and must not anchor.
	parent := model.HierarchyNode{ID: "alpha", Name: "alpha"}
	child := model.HierarchyNode{ID: "zulu", ParentID: "alpha", Name: "zulu",
		Mappings: []model.SourceMapping{primary(model.SystemActuals, "actuals")}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{parent, child}})

	agg := AggregateMappings(vm)
	require.NotEmpty(t, agg.ByNode["alpha"][""][model.SystemActuals])

	plan := PlanFact(vm, agg, nil)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, "zulu", plan.Groups[0].Base.NodeID)
	assert.Empty(t, plan.Groups[0].Base.Attached)
	assert.Empty(t, plan.Groups[0].Joins)
}

func TestPlanFactFirstAnchorInNodeOrderWins(t *testing.T) {
	n1 := model.HierarchyNode{ID: "alpha", Name: "alpha", Mappings: []model.SourceMapping{primary(model.SystemActuals, "alpha_table")}}
	n2 := model.HierarchyNode{ID: "beta", Name: "beta", Mappings: []model.SourceMapping{primary(model.SystemActuals, "beta_table")}}
	vm := validated(t, model.Snapshot{Project: "demo", Nodes: []model.HierarchyNode{n2, n1}})

	plan := PlanFact(vm, AggregateMappings(vm), nil)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, "alpha_table", plan.Groups[0].Base.Anchor.Table)
	assert.Equal(t, "alpha", plan.Groups[0].Base.NodeID)
}
