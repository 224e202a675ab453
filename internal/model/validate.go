package model

import (
	"fmt"
	"sort"
	"strings"
)

// ValidatedModel is the immutable result of successful semantic validation.
// Nodes and groups are held in sorted order so every later stage iterates
// deterministically.
type ValidatedModel struct {
	Project  string
	Nodes    []HierarchyNode
	Groups   []FilterGroup
	Variance *VarianceConfig

	byID     map[string]*HierarchyNode
	children map[string][]string
	groups   map[string]*FilterGroup
}

// Node returns the node with the given ID.
func (m *ValidatedModel) Node(id string) (*HierarchyNode, bool) {
	n, ok := m.byID[id]
	return n, ok
}

// Children returns the sorted child IDs of a node.
func (m *ValidatedModel) Children(id string) []string {
	return m.children[id]
}

// Roots returns the sorted IDs of nodes without a parent.
func (m *ValidatedModel) Roots() []string {
	var roots []string
	for _, n := range m.Nodes {
		if n.ParentID == "" {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

// Group returns the filter group with the given ID.
func (m *ValidatedModel) Group(id string) (*FilterGroup, bool) {
	g, ok := m.groups[id]
	return g, ok
}

// Validate performs semantic validation on a snapshot and returns an
// immutable ValidatedModel, or the fatal errors that block generation.
//
// Validation runs in stages: node identity, parent acyclicity, then flag and
// mapping consistency. Each stage collects every violation it finds before
// reporting, but a failing stage stops the pipeline so later stages never
// run against a structurally broken node set.
func Validate(snap Snapshot) (*ValidatedModel, Errors) {
	if errs := validateIdentity(snap.Nodes); len(errs) > 0 {
		return nil, errs
	}

	byID := make(map[string]*HierarchyNode, len(snap.Nodes))
	nodes := make([]HierarchyNode, len(snap.Nodes))
	copy(nodes, snap.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	if errs := validateParentForest(nodes, byID); len(errs) > 0 {
		return nil, errs
	}

	if errs := validateConsistency(nodes); len(errs) > 0 {
		return nil, errs
	}

	children := make(map[string][]string)
	for _, n := range nodes {
		if n.ParentID != "" {
			children[n.ParentID] = append(children[n.ParentID], n.ID)
		}
	}
	for id := range children {
		sort.Strings(children[id])
	}

	groups := make([]FilterGroup, len(snap.Groups))
	copy(groups, snap.Groups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	groupsByID := make(map[string]*FilterGroup, len(groups))
	for i := range groups {
		groupsByID[groups[i].ID] = &groups[i]
	}

	return &ValidatedModel{
		Project:  snap.Project,
		Nodes:    nodes,
		Groups:   groups,
		Variance: snap.Variance,
		byID:     byID,
		children: children,
		groups:   groupsByID,
	}, nil
}

// validateIdentity checks unique node IDs and resolvable parent references.
func validateIdentity(nodes []HierarchyNode) Errors {
	var errs Errors
	seen := make(map[string]bool, len(nodes))
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}

	for _, n := range nodes {
		if seen[n.ID] {
			errs = append(errs, ModelError{Kind: ErrDuplicateID, NodeID: n.ID})
			continue
		}
		seen[n.ID] = true

		if n.ParentID != "" && !ids[n.ParentID] {
			errs = append(errs, ModelError{
				Kind:   ErrUnknownParent,
				NodeID: n.ID,
				Detail: fmt.Sprintf("parent %q does not exist", n.ParentID),
			})
		}
	}
	return errs
}

// validateParentForest detects cycles in the parent chain using DFS with
// white/grey/black coloring. Every distinct cycle is reported.
func validateParentForest(nodes []HierarchyNode, byID map[string]*HierarchyNode) Errors {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current chain
		black = 2 // fully explored
	)
	color := make(map[string]int, len(nodes))
	var errs Errors

	for _, start := range nodes {
		if color[start.ID] != white {
			continue
		}
		// Walk the parent chain; it is a functional graph so each node has
		// at most one outgoing edge and iteration suffices.
		var chain []string
		id := start.ID
		for id != "" && color[id] == white {
			color[id] = grey
			chain = append(chain, id)
			n := byID[id]
			id = n.ParentID
		}
		if id != "" && color[id] == grey {
			// Found a cycle; slice the chain from the re-entry point.
			at := 0
			for i, cid := range chain {
				if cid == id {
					at = i
					break
				}
			}
			cycle := chain[at:]
			errs = append(errs, ModelError{
				Kind:   ErrParentCycle,
				NodeID: id,
				Detail: "cycle: " + strings.Join(append(cycle, id), " -> "),
			})
		}
		for _, cid := range chain {
			color[cid] = black
		}
	}
	return errs
}

// validateConsistency checks flag exclusivity, level depth, filter-group
// reference count, and PRIMARY mapping ambiguity per node.
func validateConsistency(nodes []HierarchyNode) Errors {
	var errs Errors
	for _, n := range nodes {
		if n.Flags.Include && n.Flags.Exclude {
			errs = append(errs, ModelError{Kind: ErrIncludeExcludeConflict, NodeID: n.ID})
		}
		if len(n.Levels) > MaxLevels {
			errs = append(errs, ModelError{
				Kind:   ErrTooManyLevels,
				NodeID: n.ID,
				Detail: fmt.Sprintf("%d levels, maximum is %d", len(n.Levels), MaxLevels),
			})
		}
		if n.Filter != nil && len(n.Filter.GroupRefs) > MaxFilterGroupRefs {
			errs = append(errs, ModelError{
				Kind:   ErrTooManyFilterGroups,
				NodeID: n.ID,
				Detail: fmt.Sprintf("%d group references, maximum is %d", len(n.Filter.GroupRefs), MaxFilterGroupRefs),
			})
		}

		primaries := make(map[string]int)
		for _, m := range n.Mappings {
			if m.Flags.Include && m.Flags.Exclude {
				errs = append(errs, ModelError{
					Kind:   ErrIncludeExcludeConflict,
					NodeID: n.ID,
					Detail: fmt.Sprintf("mapping %d on %s", m.Index, m.QualifiedTable()),
				})
			}
			if m.DimensionRole == RolePrimary {
				key := m.PrecedenceGroup + "\x00" + string(m.SystemType)
				primaries[key]++
				if primaries[key] == 2 {
					errs = append(errs, ModelError{
						Kind:   ErrAmbiguousPrimary,
						NodeID: n.ID,
						Detail: fmt.Sprintf("more than one PRIMARY mapping for group %q system %s", m.PrecedenceGroup, m.SystemType),
					})
				}
			}
		}
	}
	return errs
}
