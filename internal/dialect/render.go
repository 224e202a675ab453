package dialect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/treeline-data/treeline/internal/model"
	"github.com/treeline-data/treeline/internal/resolve"
)

// dynamicKind selects how a dialect realizes the dynamic-table artifact.
type dynamicKind int

const (
	// dynNative: the engine keeps the table refreshed within a staleness bound.
	dynNative dynamicKind = iota
	// dynMaterializedView: materialized view plus an externally-scheduled refresh.
	dynMaterializedView
	// dynPlainView: plain view with a manual-refresh note.
	dynPlainView
)

// spec is the per-dialect configuration driving the shared renderer.
type spec struct {
	name     string
	quote    string // identifier quote start
	quoteEnd string // identifier quote end
	textType string
	numType  string
	boolType string

	// jsonType is the semi-structured column type; empty means the dialect
	// has none and nested shapes render as normalized child tables.
	jsonType string
	// jsonExpr wraps a JSON literal string into a column expression.
	jsonExpr func(literal string) string
	// replaceTable emits statements that create-or-replace a table from a query.
	replaceTable func(w *strings.Builder, name, body string)

	dynamic dynamicKind
}

// renderer renders one artifact for one dialect. It is constructed fresh per
// Render call and holds no state beyond the request and the output builder.
type renderer struct {
	spec
	req Request
	w   strings.Builder
}

func (r *renderer) render() (string, error) {
	switch r.req.Kind {
	case model.ArtifactInsert:
		r.renderInsert()
	case model.ArtifactView:
		r.renderViews()
	case model.ArtifactMapping:
		r.renderMapping()
	case model.ArtifactDynamicTable:
		r.renderDynamic()
	case model.ArtifactFactTable:
		r.renderFact()
	default:
		return "", fmt.Errorf("%w: %s does not implement %s", ErrUnsupportedArtifact, r.name, r.req.Kind)
	}
	return r.w.String(), nil
}

// ---------- identifier and literal helpers ----------

func (r *renderer) q(id string) string {
	escaped := strings.ReplaceAll(id, r.quoteEnd, r.quoteEnd+r.quoteEnd)
	return r.quote + escaped + r.quoteEnd
}

func (r *renderer) qualified(m model.SourceMapping) string {
	parts := []string{}
	if m.Database != "" {
		parts = append(parts, r.q(m.Database))
	}
	if m.Schema != "" {
		parts = append(parts, r.q(m.Schema))
	}
	parts = append(parts, r.q(m.Table))
	return strings.Join(parts, ".")
}

func sqlString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// sqlLiteral renders a filter value: numbers stay bare, everything else is a
// quoted string.
func sqlLiteral(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	return sqlString(v)
}

func formatConstant(c float64) string {
	return strconv.FormatFloat(c, 'g', -1, 64)
}

// sanitize converts a free-form label into an identifier fragment.
func sanitize(s string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(s) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// objectName builds a project-scoped object name, e.g. PROJ_HIERARCHY_VW.
func (r *renderer) objectName(suffix string) string {
	return sanitize(r.req.Project) + "_" + suffix
}

// groupSuffix returns the name suffix for a precedence group ("" for the
// default group).
func groupSuffix(group string) string {
	if group == "" {
		return ""
	}
	return "_" + sanitize(group)
}

var systemAliases = map[model.SystemType]string{
	model.SystemActuals:   "act",
	model.SystemBudget:    "bud",
	model.SystemForecast:  "fct",
	model.SystemPriorYear: "pyr",
	model.SystemCustom:    "cst",
}

// ---------- condition trees ----------

// renderCondition renders a normalized condition tree. Parentheses follow the
// tree shape, so all dialects agree on precedence.
func (r *renderer) renderCondition(t *resolve.ConditionTree, alias string) string {
	if t == nil {
		return ""
	}
	if t.Raw != "" {
		return "(" + t.Raw + ")"
	}
	if t.Cond != nil {
		return r.renderLeaf(t.Cond, alias)
	}
	left := r.renderCondition(t.Left, alias)
	right := r.renderCondition(t.Right, alias)
	return "(" + left + " " + string(t.Logic) + " " + right + ")"
}

func (r *renderer) renderLeaf(c *model.FilterCondition, alias string) string {
	col := r.q(c.Column)
	if alias != "" {
		col = alias + "." + col
	}
	op := strings.ToUpper(strings.TrimSpace(c.Operator))
	if op == "IN" {
		items := strings.Split(c.Value, ",")
		for i := range items {
			items[i] = sqlLiteral(strings.TrimSpace(items[i]))
		}
		return col + " IN (" + strings.Join(items, ", ") + ")"
	}
	return col + " " + c.Operator + " " + sqlLiteral(c.Value)
}

// ---------- JSON literals (deterministic key order) ----------

func levelsJSON(levels []model.Level) string {
	items := make([]string, len(levels))
	for i, l := range levels {
		items[i] = fmt.Sprintf(`{"label":%s,"sort_order":%d}`, jsonString(l.Label), l.SortOrder)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func flagsJSON(f model.Flags) string {
	pairs := []string{
		fmt.Sprintf(`"include":%t`, f.Include),
		fmt.Sprintf(`"exclude":%t`, f.Exclude),
		fmt.Sprintf(`"is_calculation":%t`, f.IsCalculation),
		fmt.Sprintf(`"sign_change":%t`, f.SignChange),
		fmt.Sprintf(`"is_leaf":%t`, f.IsLeaf),
		fmt.Sprintf(`"active":%t`, f.Active),
	}
	keys := make([]string, 0, len(f.Custom))
	for k := range f.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf(`%s:%t`, jsonString(k), f.Custom[k]))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func joinKeysJSON(keys []model.JoinKey) string {
	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = fmt.Sprintf(`{"source":%s,"target":%s,"operator":%s}`,
			jsonString(k.SourceColumn), jsonString(k.TargetColumn), jsonString(k.Operator))
	}
	return "[" + strings.Join(items, ",") + "]"
}

func jsonString(s string) string {
	b, _ := jsonMarshalString(s)
	return b
}

func jsonMarshalString(s string) (string, error) {
	// encoding/json escaping without the import noise elsewhere.
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteByte('"')
	return b.String(), nil
}

// ---------- select body (shared by VIEW and DYNAMIC_TABLE) ----------

// maxLevelCount returns the widest level path in the project so every UNION
// branch selects the same column list.
func (r *renderer) maxLevelCount() int {
	max := 0
	for _, n := range r.req.Model.Nodes {
		if len(n.Levels) > max {
			max = len(n.Levels)
		}
	}
	return max
}

// mappedBranches renders the UNION ALL branches of the MAPPED CTE for one
// precedence group: one branch per direct, active mapping of every
// non-excluded node, in node order.
func (r *renderer) mappedBranches(group string, levels int) []string {
	var branches []string
	for i := range r.req.Model.Nodes {
		n := &r.req.Model.Nodes[i]
		if n.Flags.Exclude {
			continue
		}
		for _, m := range n.Mappings {
			if !m.Flags.Active || m.Flags.Exclude || m.PrecedenceGroup != group {
				continue
			}
			branches = append(branches, r.mappedBranch(n, m, levels))
		}
	}
	return branches
}

func (r *renderer) mappedBranch(n *model.HierarchyNode, m model.SourceMapping, levels int) string {
	var b strings.Builder
	b.WriteString("    SELECT ")
	b.WriteString(sqlString(n.ID) + " AS NODE_ID, ")
	b.WriteString(sqlString(n.Name) + " AS NODE_NAME")
	for i := 0; i < levels; i++ {
		if i < len(n.Levels) {
			b.WriteString(", " + sqlString(n.Levels[i].Label))
		} else {
			b.WriteString(", NULL")
		}
		b.WriteString(fmt.Sprintf(" AS LEVEL_%d", i+1))
	}

	value := "m." + r.q(m.Column)
	if n.Flags.SignChange {
		value = "-1 * " + value
	}
	if n.Pivot != nil && n.Pivot.Aggregate != "" {
		value = strings.ToUpper(n.Pivot.Aggregate) + "(" + value + ")"
	}
	b.WriteString(", " + value + " AS VALUE")
	b.WriteString("\n    FROM " + r.qualified(m) + " AS m")

	var preds []string
	if tree := r.req.Filters[n.ID]; tree != nil {
		preds = append(preds, r.renderCondition(tree, "m"))
	}
	if m.UID != "" {
		preds = append(preds, "m."+r.q("UID")+" = "+sqlString(m.UID))
	}
	if len(preds) > 0 {
		b.WriteString("\n    WHERE " + strings.Join(preds, " AND "))
	}
	if n.Pivot != nil && len(n.Pivot.Columns) > 0 {
		cols := make([]string, len(n.Pivot.Columns))
		for i, c := range n.Pivot.Columns {
			cols[i] = "m." + r.q(c)
		}
		b.WriteString("\n    GROUP BY " + strings.Join(cols, ", "))
	}
	return b.String()
}

// formulaCTE renders the scalar CTE of one formula group. Evaluation order
// guarantees every referenced F_* CTE is already defined.
func (r *renderer) formulaCTE(fg resolve.FormulaGroup) string {
	return "  " + cteName(fg.NodeID) + " AS (\n    SELECT " + r.formulaExpr(fg) + " AS VALUE\n  )"
}

func cteName(nodeID string) string {
	return "F_" + sanitize(nodeID)
}

// formulaExpr compiles one formula group into a scalar SQL expression.
// Division is always NULLIF-guarded.
func (r *renderer) formulaExpr(fg resolve.FormulaGroup) string {
	if fg.Operation == model.OpCount {
		ids := make([]string, 0, len(fg.Operands))
		for _, op := range fg.Operands {
			if op.NodeID != "" && op.ParameterRef == "" && op.Constant == nil {
				ids = append(ids, sqlString(op.NodeID))
			}
		}
		return "(SELECT COUNT(*) FROM MAPPED WHERE NODE_ID IN (" + strings.Join(ids, ", ") + "))"
	}

	exprs := make([]string, len(fg.Operands))
	for i, op := range fg.Operands {
		exprs[i] = r.operandExpr(op)
	}

	switch fg.Operation {
	case model.OpAdd, model.OpSum:
		return strings.Join(exprs, " + ")
	case model.OpSubtract:
		return strings.Join(exprs, " - ")
	case model.OpMultiply:
		return strings.Join(exprs, " * ")
	case model.OpDivide:
		out := exprs[0]
		for _, e := range exprs[1:] {
			out += " / NULLIF(" + e + ", 0)"
		}
		return out
	case model.OpAverage:
		return "(" + strings.Join(exprs, " + ") + ") / " + strconv.Itoa(len(exprs))
	case model.OpMin:
		return "LEAST(" + strings.Join(exprs, ", ") + ")"
	case model.OpMax:
		return "GREATEST(" + strings.Join(exprs, ", ") + ")"
	default:
		return strings.Join(exprs, " + ")
	}
}

func (r *renderer) operandExpr(op resolve.Operand) string {
	if op.Constant != nil {
		return formatConstant(*op.Constant)
	}
	if op.ParameterRef != "" {
		return "(SELECT VALUE FROM " + cteName(op.ParameterRef) + ")"
	}
	if r.req.Order != nil && r.req.Order.Index(op.NodeID) >= 0 {
		return "(SELECT VALUE FROM " + cteName(op.NodeID) + ")"
	}
	return "(SELECT SUM(VALUE) FROM MAPPED WHERE NODE_ID = " + sqlString(op.NodeID) + ")"
}

// selectBody builds the full WITH ... SELECT for one precedence group:
// mapped rows unioned with one row per formula group, computed columns
// emitted in evaluation order so there are no forward references.
func (r *renderer) selectBody(group string) string {
	levels := r.maxLevelCount()
	branches := r.mappedBranches(group, levels)

	var b strings.Builder
	b.WriteString("WITH MAPPED AS (\n")
	if len(branches) == 0 {
		// Degenerate but well-formed: an empty row source.
		b.WriteString("    SELECT NULL AS NODE_ID, NULL AS NODE_NAME")
		for i := 0; i < levels; i++ {
			b.WriteString(fmt.Sprintf(", NULL AS LEVEL_%d", i+1))
		}
		b.WriteString(", NULL AS VALUE WHERE 1 = 0\n")
	} else {
		b.WriteString(strings.Join(branches, "\n    UNION ALL\n"))
		b.WriteString("\n")
	}
	b.WriteString(")")

	if r.req.Order != nil {
		for _, fg := range r.req.Order.Groups {
			b.WriteString(",\n")
			b.WriteString(r.formulaCTE(fg))
		}
	}

	cols := "NODE_ID, NODE_NAME"
	for i := 0; i < levels; i++ {
		cols += fmt.Sprintf(", LEVEL_%d", i+1)
	}
	cols += ", VALUE"

	b.WriteString("\nSELECT " + cols + " FROM MAPPED")

	if r.req.Order != nil {
		for _, fg := range r.req.Order.Groups {
			n, ok := r.req.Model.Node(fg.NodeID)
			if !ok || n.Flags.Exclude {
				continue
			}
			b.WriteString("\nUNION ALL\nSELECT ")
			b.WriteString(sqlString(n.ID) + ", " + sqlString(n.Name))
			for i := 0; i < levels; i++ {
				if i < len(n.Levels) {
					b.WriteString(", " + sqlString(n.Levels[i].Label))
				} else {
					b.WriteString(", NULL")
				}
			}
			b.WriteString(", (SELECT VALUE FROM " + cteName(n.ID) + ")")
			b.WriteString(" FROM " + cteName(n.ID))
		}
	}
	return b.String()
}

// precedenceGroups returns the sorted precedence groups that have at least
// one renderable mapping; the default group "" is always first.
func (r *renderer) precedenceGroups() []string {
	set := make(map[string]bool)
	for i := range r.req.Model.Nodes {
		n := &r.req.Model.Nodes[i]
		for _, m := range n.Mappings {
			if m.Flags.Active && !m.Flags.Exclude {
				set[m.PrecedenceGroup] = true
			}
		}
	}
	if len(set) == 0 {
		return []string{""}
	}
	groups := make([]string, 0, len(set))
	for g := range set {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
