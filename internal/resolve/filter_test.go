package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-data/treeline/internal/model"
)

func validated(t *testing.T, snap model.Snapshot) *model.ValidatedModel {
	t.Helper()
	vm, errs := model.Validate(snap)
	require.Empty(t, errs)
	return vm
}

func TestResolveFiltersInlineConditions(t *testing.T) {
	vm := validated(t, model.Snapshot{
		Project: "demo",
		Nodes: []model.HierarchyNode{{
			ID: "a", Name: "a",
			Filter: &model.Filter{Conditions: []model.FilterCondition{
				{Column: "REGION", Operator: "=", Value: "EMEA"},
				{Column: "YEAR", Operator: ">", Value: "2024", Logic: model.LogicOr},
			}},
		}},
	})

	trees, errs := ResolveFilters(vm)
	require.Empty(t, errs)
	tree := trees["a"]
	require.NotNil(t, tree)

	// ((REGION = EMEA) OR (YEAR > 2024)): one internal node, logic from the
	// second condition.
	assert.False(t, tree.IsLeaf())
	assert.Equal(t, model.LogicOr, tree.Logic)
	assert.Equal(t, "REGION", tree.Left.Cond.Column)
	assert.Equal(t, "YEAR", tree.Right.Cond.Column)
}

func TestResolveFiltersGroupRefsExpandFirst(t *testing.T) {
	vm := validated(t, model.Snapshot{
		Project: "demo",
		Nodes: []model.HierarchyNode{{
			ID: "a", Name: "a",
			Filter: &model.Filter{
				GroupRefs: []model.GroupRef{{GroupID: "g1", Logic: model.LogicOr}},
				Conditions: []model.FilterCondition{
					{Column: "YEAR", Operator: "=", Value: "2025"},
				},
				RawSQL: "ACTIVE_FLAG = 1",
			},
		}},
		Groups: []model.FilterGroup{{
			ID: "g1", Name: "west",
			Conditions: []model.FilterCondition{
				{Column: "REGION", Operator: "=", Value: "WEST"},
				{Column: "REGION", Operator: "=", Value: "NORTH", Logic: model.LogicOr},
			},
		}},
	})

	trees, errs := ResolveFilters(vm)
	require.Empty(t, errs)
	tree := trees["a"]
	require.NotNil(t, tree)

	// Outermost combine is the raw SQL, joined with AND.
	assert.Equal(t, model.LogicAnd, tree.Logic)
	assert.Equal(t, "ACTIVE_FLAG = 1", tree.Right.Raw)

	// Beneath it: (group expansion) AND (inline condition).
	inner := tree.Left
	assert.Equal(t, model.LogicAnd, inner.Logic)
	assert.Equal(t, "YEAR", inner.Right.Cond.Column)

	group := inner.Left
	assert.Equal(t, model.LogicOr, group.Logic)
	assert.Equal(t, "WEST", group.Left.Cond.Value)
	assert.Equal(t, "NORTH", group.Right.Cond.Value)
}

func TestResolveFiltersUnresolvedGroupsAllReported(t *testing.T) {
	vm := validated(t, model.Snapshot{
		Project: "demo",
		Nodes: []model.HierarchyNode{
			{ID: "a", Name: "a", Filter: &model.Filter{GroupRefs: []model.GroupRef{{GroupID: "nope"}}}},
			{ID: "b", Name: "b", Filter: &model.Filter{GroupRefs: []model.GroupRef{{GroupID: "missing"}}}},
		},
	})

	trees, errs := ResolveFilters(vm)
	assert.Nil(t, trees)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, model.ErrUnresolvedFilterGroup, e.Kind)
	}
}

func TestResolveFiltersSkipsNodesWithoutFilter(t *testing.T) {
	vm := validated(t, model.Snapshot{
		Project: "demo",
		Nodes:   []model.HierarchyNode{{ID: "a", Name: "a"}},
	})

	trees, errs := ResolveFilters(vm)
	require.Empty(t, errs)
	assert.Empty(t, trees)
}
