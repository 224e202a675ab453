package resolve

import (
	"fmt"
	"sort"

	"github.com/treeline-data/treeline/internal/model"
)

// SystemJoin is one system type's row source in a fact plan, anchored on the
// PRIMARY-role mapping with SECONDARY/OPTIONAL mappings attached per their
// declared join types.
type SystemJoin struct {
	SystemType model.SystemType
	NodeID     string
	Anchor     EffectiveMapping
	Attached   []EffectiveMapping
}

// VarianceColumn is one derived column planned for the fact table.
type VarianceColumn struct {
	Name       string
	Minuend    model.SystemType
	Subtrahend model.SystemType
	Percent    bool
}

// GroupPlan is the join plan for one precedence group. Alternate-source
// scenarios (different precedence groups) each get their own plan and are
// never combined in one emitted artifact.
type GroupPlan struct {
	PrecedenceGroup string
	Base            SystemJoin
	Joins           []SystemJoin
	Variance        []VarianceColumn
}

// FactPlan is the multi-system join plan for a fact-table artifact.
type FactPlan struct {
	Groups      []GroupPlan
	Diagnostics []model.Diagnostic
}

// PlanFact builds the fact join plan from the aggregator's per-node grouped
// mappings. Only direct mappings anchor or attach; an inherited copy restates
// a mapping its originating descendant already contributes. For each
// precedence group, each system type present contributes one row source
// anchored on its PRIMARY mapping; the first system type in canonical order
// becomes the base relation and the rest join to it. Variance comparisons
// whose operands lack a PRIMARY anchor are omitted with a diagnostic, never
// silently.
func PlanFact(vm *model.ValidatedModel, agg *AggregatedMappings, cfg *model.VarianceConfig) *FactPlan {
	plan := &FactPlan{}

	type key struct {
		group  string
		system model.SystemType
	}
	anchors := make(map[key]*SystemJoin)
	attached := make(map[key][]EffectiveMapping)
	groupSet := make(map[string]bool)

	for i := range vm.Nodes {
		n := &vm.Nodes[i]
		grouped := agg.ByNode[n.ID]
		for _, pg := range grouped.PrecedenceGroups() {
			bySystem := grouped[pg]
			for _, st := range model.SystemTypes {
				for _, m := range bySystem[st] {
					if m.InheritedFrom != "" {
						continue
					}
					k := key{group: pg, system: st}
					groupSet[pg] = true
					switch m.DimensionRole {
					case model.RolePrimary:
						// Per-node ambiguity was rejected by the validator;
						// across nodes the first anchor in sorted node order
						// wins.
						if _, ok := anchors[k]; !ok {
							anchors[k] = &SystemJoin{
								SystemType: st,
								NodeID:     n.ID,
								Anchor:     m,
							}
						}
					case model.RoleSecondary, model.RoleOptional:
						attached[k] = append(attached[k], m)
					}
				}
			}
		}
	}

	groups := make([]string, 0, len(groupSet))
	for g := range groupSet {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		gp := GroupPlan{PrecedenceGroup: g}
		present := make(map[model.SystemType]bool)

		for _, st := range model.SystemTypes {
			k := key{group: g, system: st}
			anchor, ok := anchors[k]
			if !ok {
				continue
			}
			sj := *anchor
			sj.Attached = attached[k]
			present[st] = true
			if gp.Base.SystemType == "" {
				gp.Base = sj
			} else {
				gp.Joins = append(gp.Joins, sj)
			}
		}
		if gp.Base.SystemType == "" {
			// No PRIMARY anchor anywhere in the group: nothing to plan.
			plan.Diagnostics = append(plan.Diagnostics, model.Diagnostic{
				Kind:   model.DiagVarianceMissingPrimary,
				Detail: fmt.Sprintf("precedence group %q has no PRIMARY mapping", g),
			})
			continue
		}

		if cfg != nil && cfg.IncludeVariance {
			for _, cmp := range cfg.Comparisons {
				if !present[cmp.Minuend] {
					plan.Diagnostics = append(plan.Diagnostics, model.Diagnostic{
						Kind:   model.DiagVarianceMissingPrimary,
						Detail: fmt.Sprintf("comparison %q: minuend %s has no PRIMARY mapping in group %q", cmp.Name, cmp.Minuend, g),
					})
					continue
				}
				if !present[cmp.Subtrahend] {
					plan.Diagnostics = append(plan.Diagnostics, model.Diagnostic{
						Kind:   model.DiagVarianceMissingPrimary,
						Detail: fmt.Sprintf("comparison %q: subtrahend %s has no PRIMARY mapping in group %q", cmp.Name, cmp.Subtrahend, g),
					})
					continue
				}
				gp.Variance = append(gp.Variance, VarianceColumn{
					Name:       cmp.Name,
					Minuend:    cmp.Minuend,
					Subtrahend: cmp.Subtrahend,
				})
				if cmp.IncludePercent {
					gp.Variance = append(gp.Variance, VarianceColumn{
						Name:       cmp.Name + " %",
						Minuend:    cmp.Minuend,
						Subtrahend: cmp.Subtrahend,
						Percent:    true,
					})
				}
			}
		}

		plan.Groups = append(plan.Groups, gp)
	}

	return plan
}
