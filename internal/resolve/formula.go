package resolve

import (
	"fmt"
	"sort"

	"github.com/treeline-data/treeline/internal/dag"
	"github.com/treeline-data/treeline/internal/model"
)

// Operand is one resolved formula operand, sorted into evaluation position
// by its declared precedence.
type Operand struct {
	NodeID       string
	Precedence   int
	ParameterRef string
	Constant     *float64
}

// FormulaGroup is the resolved formula of one calculation node.
type FormulaGroup struct {
	NodeID    string
	Operation model.Operation
	Operands  []Operand
}

// EvaluationOrder is a flat, dependency-respecting sequence of formula
// groups. SQL backends emit computed expressions in this order so no group
// references a result that has not been defined yet.
type EvaluationOrder struct {
	Groups []FormulaGroup

	index map[string]int
}

// Index returns the position of a formula group in the order, or -1 if the
// node has no formula.
func (o *EvaluationOrder) Index(nodeID string) int {
	if i, ok := o.index[nodeID]; ok {
		return i
	}
	return -1
}

// BuildEvaluationOrder builds the formula dependency graph and orders it
// topologically with Kahn's algorithm. An edge A -> B means A's formula
// consumes B's resolved value, either because an operand node carries its
// own formula or through an explicit parameter reference.
//
// Every cycle and every unresolved reference is reported; an arbitrary
// order is never picked silently.
func BuildEvaluationOrder(vm *model.ValidatedModel) (*EvaluationOrder, model.Errors) {
	var errs model.Errors
	g := dag.NewGraph()

	// First pass: register every formula-bearing node.
	for i := range vm.Nodes {
		n := &vm.Nodes[i]
		if n.Formula == nil {
			continue
		}
		g.AddNode(n.ID, resolveGroup(n))
	}

	// Second pass: edges and reference checks.
	for i := range vm.Nodes {
		n := &vm.Nodes[i]
		if n.Formula == nil {
			continue
		}
		for _, r := range n.Formula.Rules {
			if r.NodeID != "" {
				operand, ok := vm.Node(r.NodeID)
				if !ok {
					errs = append(errs, model.ModelError{
						Kind:   model.ErrUnresolvedReference,
						NodeID: n.ID,
						Detail: fmt.Sprintf("operand %q does not exist", r.NodeID),
					})
					continue
				}
				if operand.ID == n.ID {
					// A formula naming its own node is a one-node cycle.
					errs = append(errs, model.ModelError{
						Kind:   model.ErrCircularFormula,
						NodeID: n.ID,
						Detail: "cycle: " + n.ID + " -> " + n.ID,
					})
					continue
				}
				if operand.Formula != nil {
					_ = g.AddEdge(n.ID, operand.ID)
				}
			}
			if r.ParameterRef != "" {
				ref, ok := vm.Node(r.ParameterRef)
				if !ok || ref.Formula == nil {
					errs = append(errs, model.ModelError{
						Kind:   model.ErrUnresolvedReference,
						NodeID: n.ID,
						Detail: fmt.Sprintf("parameter reference %q does not resolve to a formula group", r.ParameterRef),
					})
					continue
				}
				if ref.ID == n.ID {
					errs = append(errs, model.ModelError{
						Kind:   model.ErrCircularFormula,
						NodeID: n.ID,
						Detail: "cycle: " + n.ID + " -> " + n.ID,
					})
					continue
				}
				_ = g.AddEdge(n.ID, ref.ID)
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	if cycles := g.Cycles(); len(cycles) > 0 {
		for _, cycle := range cycles {
			errs = append(errs, model.ModelError{
				Kind:   model.ErrCircularFormula,
				NodeID: cycle[0],
				Detail: "cycle: " + joinCycle(cycle),
			})
		}
		return nil, errs
	}

	sorted, err := g.TopologicalSort()
	if err != nil {
		// Cycles were ruled out above; this is a programming error.
		panic(fmt.Sprintf("resolve: topological sort failed on acyclic graph: %v", err))
	}

	order := &EvaluationOrder{index: make(map[string]int, len(sorted))}
	for _, n := range sorted {
		order.index[n.ID] = len(order.Groups)
		order.Groups = append(order.Groups, n.Data.(FormulaGroup))
	}
	return order, nil
}

// resolveGroup materializes the formula group for a node, operands sorted by
// precedence with node ID as tie-breaker.
func resolveGroup(n *model.HierarchyNode) FormulaGroup {
	fg := FormulaGroup{NodeID: n.ID, Operation: n.Formula.Operation}
	for _, r := range n.Formula.Rules {
		fg.Operands = append(fg.Operands, Operand{
			NodeID:       r.NodeID,
			Precedence:   r.Precedence,
			ParameterRef: r.ParameterRef,
			Constant:     r.Constant,
		})
	}
	sort.SliceStable(fg.Operands, func(i, j int) bool {
		if fg.Operands[i].Precedence != fg.Operands[j].Precedence {
			return fg.Operands[i].Precedence < fg.Operands[j].Precedence
		}
		return fg.Operands[i].NodeID < fg.Operands[j].NodeID
	})
	return fg
}

func joinCycle(cycle []string) string {
	s := ""
	for _, id := range cycle {
		s += id + " -> "
	}
	return s + cycle[0]
}
