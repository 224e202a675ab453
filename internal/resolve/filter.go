// Package resolve turns a validated hierarchy model into the intermediate
// structures the dialect backends render: condition trees, a formula
// evaluation order, aggregated mappings, and a fact join plan. Every
// resolver is a pure function of the validated model; output ordering is
// deterministic throughout.
package resolve

import (
	"fmt"

	"github.com/treeline-data/treeline/internal/model"
)

// ConditionTree is a normalized binary boolean expression. Internal nodes
// carry Logic and two children; leaves carry either a single condition or a
// raw-SQL fragment. Parenthesization is a property of the tree shape, so
// every backend renders precedence identically.
type ConditionTree struct {
	Logic model.Logic
	Left  *ConditionTree
	Right *ConditionTree

	Cond *model.FilterCondition
	Raw  string
}

// IsLeaf reports whether the tree node is a condition or raw-SQL leaf.
func (t *ConditionTree) IsLeaf() bool {
	return t.Cond != nil || t.Raw != ""
}

// ResolveFilters builds the condition tree for every node that carries a
// filter. A missing filter-group reference is fatal; all missing references
// are collected before returning.
func ResolveFilters(vm *model.ValidatedModel) (map[string]*ConditionTree, model.Errors) {
	trees := make(map[string]*ConditionTree)
	var errs model.Errors

	for i := range vm.Nodes {
		n := &vm.Nodes[i]
		if n.Filter == nil {
			continue
		}
		tree, nodeErrs := resolveFilter(n, vm)
		if len(nodeErrs) > 0 {
			errs = append(errs, nodeErrs...)
			continue
		}
		if tree != nil {
			trees[n.ID] = tree
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return trees, nil
}

// resolveFilter merges a node's group references and inline conditions into
// one tree. Slots merge left to right: each group expansion joins the
// accumulated tree with the logic declared on its reference, each inline
// condition with its own logic, and the raw-SQL fragment (if any) last with
// AND.
func resolveFilter(n *model.HierarchyNode, vm *model.ValidatedModel) (*ConditionTree, model.Errors) {
	var errs model.Errors
	var tree *ConditionTree

	for _, ref := range n.Filter.GroupRefs {
		g, ok := vm.Group(ref.GroupID)
		if !ok {
			errs = append(errs, model.ModelError{
				Kind:   model.ErrUnresolvedFilterGroup,
				NodeID: n.ID,
				Detail: fmt.Sprintf("filter group %q does not exist", ref.GroupID),
			})
			continue
		}
		sub := groupTree(g)
		if sub == nil {
			continue
		}
		tree = combine(tree, sub, defaultLogic(ref.Logic))
	}

	for i := range n.Filter.Conditions {
		c := n.Filter.Conditions[i]
		leaf := &ConditionTree{Cond: &c}
		tree = combine(tree, leaf, defaultLogic(c.Logic))
	}

	if n.Filter.RawSQL != "" {
		tree = combine(tree, &ConditionTree{Raw: n.Filter.RawSQL}, model.LogicAnd)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return tree, nil
}

// groupTree expands a filter group into a left-deep subtree.
func groupTree(g *model.FilterGroup) *ConditionTree {
	var tree *ConditionTree
	for i := range g.Conditions {
		c := g.Conditions[i]
		tree = combine(tree, &ConditionTree{Cond: &c}, defaultLogic(c.Logic))
	}
	if g.RawSQL != "" {
		tree = combine(tree, &ConditionTree{Raw: g.RawSQL}, model.LogicAnd)
	}
	return tree
}

// combine joins an accumulated tree with the next subtree, left-deep.
func combine(acc, next *ConditionTree, logic model.Logic) *ConditionTree {
	if acc == nil {
		return next
	}
	return &ConditionTree{Logic: logic, Left: acc, Right: next}
}

func defaultLogic(l model.Logic) model.Logic {
	if l == "" {
		return model.LogicAnd
	}
	return l
}
