package resolve

import (
	"fmt"
	"sort"

	"github.com/treeline-data/treeline/internal/model"
)

// EffectiveMapping is a source mapping in a node's aggregated view.
// InheritedFrom names the descendant it was pulled up from; empty means the
// mapping is declared directly on the node.
type EffectiveMapping struct {
	model.SourceMapping
	InheritedFrom string
}

// GroupedMappings is the authoritative nested grouping every later stage
// consumes: precedence group -> system type -> ordered mappings. Mappings in
// different precedence groups are never combined in one emitted artifact.
type GroupedMappings map[string]map[model.SystemType][]EffectiveMapping

// PrecedenceGroups returns the sorted group labels.
func (g GroupedMappings) PrecedenceGroups() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AggregatedMappings holds the effective mapping set per node.
type AggregatedMappings struct {
	ByNode      map[string]GroupedMappings
	Diagnostics []model.Diagnostic
}

// AggregateMappings computes the effective mappings of every node: its own
// mappings plus inheritable mappings pulled up from descendants, strictly
// child to parent. A mapping is inheritable when it has no precedence group
// of its own or is explicitly flagged with Transform. Inactive mappings are
// skipped with a diagnostic.
func AggregateMappings(vm *model.ValidatedModel) *AggregatedMappings {
	agg := &AggregatedMappings{ByNode: make(map[string]GroupedMappings, len(vm.Nodes))}

	// direct collects each node's usable mappings once; inherited sets are
	// assembled from descendants on demand.
	direct := make(map[string][]EffectiveMapping, len(vm.Nodes))
	for i := range vm.Nodes {
		n := &vm.Nodes[i]
		for _, m := range n.Mappings {
			if !m.Flags.Active {
				agg.Diagnostics = append(agg.Diagnostics, model.Diagnostic{
					Kind:   model.DiagInactiveMappingSkipped,
					NodeID: n.ID,
					Detail: fmt.Sprintf("mapping %d on %s is inactive", m.Index, m.QualifiedTable()),
				})
				continue
			}
			direct[n.ID] = append(direct[n.ID], EffectiveMapping{SourceMapping: m})
		}
	}

	// inheritable returns the mappings a node offers upward: its own
	// inheritable mappings plus everything its descendants offer. Memoized;
	// the parent graph is a validated forest so recursion terminates.
	memo := make(map[string][]EffectiveMapping)
	var inheritable func(id string) []EffectiveMapping
	inheritable = func(id string) []EffectiveMapping {
		if v, ok := memo[id]; ok {
			return v
		}
		var out []EffectiveMapping
		for _, m := range direct[id] {
			if m.PrecedenceGroup == "" || m.Flags.Transform {
				em := m
				if em.InheritedFrom == "" {
					em.InheritedFrom = id
				}
				out = append(out, em)
			}
		}
		for _, child := range vm.Children(id) {
			out = append(out, inheritable(child)...)
		}
		memo[id] = out
		return out
	}

	for i := range vm.Nodes {
		n := &vm.Nodes[i]
		effective := append([]EffectiveMapping{}, direct[n.ID]...)
		for _, child := range vm.Children(n.ID) {
			effective = append(effective, inheritable(child)...)
		}
		agg.ByNode[n.ID] = group(effective)
	}

	sort.SliceStable(agg.Diagnostics, func(i, j int) bool {
		if agg.Diagnostics[i].NodeID != agg.Diagnostics[j].NodeID {
			return agg.Diagnostics[i].NodeID < agg.Diagnostics[j].NodeID
		}
		return agg.Diagnostics[i].Detail < agg.Diagnostics[j].Detail
	})
	return agg
}

// group builds the nested precedence-group/system-type structure with
// deterministic ordering: mapping index first, then provenance.
func group(mappings []EffectiveMapping) GroupedMappings {
	g := make(GroupedMappings)
	for _, m := range mappings {
		bySystem, ok := g[m.PrecedenceGroup]
		if !ok {
			bySystem = make(map[model.SystemType][]EffectiveMapping)
			g[m.PrecedenceGroup] = bySystem
		}
		bySystem[m.SystemType] = append(bySystem[m.SystemType], m)
	}
	for _, bySystem := range g {
		for st := range bySystem {
			ms := bySystem[st]
			sort.SliceStable(ms, func(i, j int) bool {
				if ms[i].Index != ms[j].Index {
					return ms[i].Index < ms[j].Index
				}
				return ms[i].InheritedFrom < ms[j].InheritedFrom
			})
			bySystem[st] = ms
		}
	}
	return g
}
