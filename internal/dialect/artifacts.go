package dialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/treeline-data/treeline/internal/model"
	"github.com/treeline-data/treeline/internal/resolve"
)

// ---------- INSERT ----------

func (r *renderer) renderInsert() {
	if r.jsonType != "" {
		r.renderInsertJSON()
	} else {
		r.renderInsertNormalized()
	}
}

func (r *renderer) renderInsertJSON() {
	table := r.objectName("HIERARCHY")
	fmt.Fprintf(&r.w, "CREATE TABLE IF NOT EXISTS %s (\n", r.q(table))
	fmt.Fprintf(&r.w, "    ID %s NOT NULL,\n", r.textType)
	fmt.Fprintf(&r.w, "    PARENT_ID %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    NAME %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    DESCRIPTION %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    LEVELS %s,\n", r.jsonType)
	fmt.Fprintf(&r.w, "    FLAGS %s\n", r.jsonType)
	r.w.WriteString(");\n\n")

	fmt.Fprintf(&r.w, "INSERT INTO %s (ID, PARENT_ID, NAME, DESCRIPTION, LEVELS, FLAGS)\n", r.q(table))
	for i := range r.req.Model.Nodes {
		n := &r.req.Model.Nodes[i]
		if i > 0 {
			r.w.WriteString("UNION ALL\n")
		}
		parent := "NULL"
		if n.ParentID != "" {
			parent = sqlString(n.ParentID)
		}
		fmt.Fprintf(&r.w, "SELECT %s, %s, %s, %s, %s, %s\n",
			sqlString(n.ID), parent, sqlString(n.Name), sqlString(n.Description),
			r.jsonExpr(levelsJSON(n.Levels)), r.jsonExpr(flagsJSON(n.Flags)))
	}
	r.w.WriteString(";\n")
}

// renderInsertNormalized renders nested level/flag shapes as child tables
// for dialects without a semi-structured column type.
func (r *renderer) renderInsertNormalized() {
	table := r.objectName("HIERARCHY")
	levelTable := r.objectName("HIERARCHY_LEVEL")
	flagTable := r.objectName("HIERARCHY_FLAG")

	fmt.Fprintf(&r.w, "CREATE TABLE IF NOT EXISTS %s (\n", r.q(table))
	fmt.Fprintf(&r.w, "    ID %s NOT NULL,\n", r.textType)
	fmt.Fprintf(&r.w, "    PARENT_ID %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    NAME %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    DESCRIPTION %s\n", r.textType)
	r.w.WriteString(");\n\n")

	fmt.Fprintf(&r.w, "CREATE TABLE IF NOT EXISTS %s (\n", r.q(levelTable))
	fmt.Fprintf(&r.w, "    NODE_ID %s NOT NULL,\n", r.textType)
	fmt.Fprintf(&r.w, "    POSITION %s NOT NULL,\n", r.numType)
	fmt.Fprintf(&r.w, "    LABEL %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    SORT_ORDER %s\n", r.numType)
	r.w.WriteString(");\n\n")

	fmt.Fprintf(&r.w, "CREATE TABLE IF NOT EXISTS %s (\n", r.q(flagTable))
	fmt.Fprintf(&r.w, "    NODE_ID %s NOT NULL,\n", r.textType)
	fmt.Fprintf(&r.w, "    FLAG %s NOT NULL,\n", r.textType)
	fmt.Fprintf(&r.w, "    ENABLED %s\n", r.boolType)
	r.w.WriteString(");\n\n")

	var rows, levelRows, flagRows []string
	for i := range r.req.Model.Nodes {
		n := &r.req.Model.Nodes[i]
		parent := "NULL"
		if n.ParentID != "" {
			parent = sqlString(n.ParentID)
		}
		rows = append(rows, fmt.Sprintf("(%s, %s, %s, %s)",
			sqlString(n.ID), parent, sqlString(n.Name), sqlString(n.Description)))
		for pos, l := range n.Levels {
			levelRows = append(levelRows, fmt.Sprintf("(%s, %d, %s, %d)",
				sqlString(n.ID), pos+1, sqlString(l.Label), l.SortOrder))
		}
		for _, f := range flagRowsFor(n.Flags) {
			flagRows = append(flagRows, fmt.Sprintf("(%s, %s, %s)", sqlString(n.ID), sqlString(f.name), boolLiteral(f.value)))
		}
	}

	r.multiRowInsert(r.q(table), "ID, PARENT_ID, NAME, DESCRIPTION", rows)
	r.multiRowInsert(r.q(levelTable), "NODE_ID, POSITION, LABEL, SORT_ORDER", levelRows)
	r.multiRowInsert(r.q(flagTable), "NODE_ID, FLAG, ENABLED", flagRows)
}

type flagRow struct {
	name  string
	value bool
}

func flagRowsFor(f model.Flags) []flagRow {
	rows := []flagRow{
		{"include", f.Include},
		{"exclude", f.Exclude},
		{"is_calculation", f.IsCalculation},
		{"sign_change", f.SignChange},
		{"is_leaf", f.IsLeaf},
		{"active", f.Active},
	}
	custom := make([]string, 0, len(f.Custom))
	for k := range f.Custom {
		custom = append(custom, k)
	}
	sort.Strings(custom)
	for _, k := range custom {
		rows = append(rows, flagRow{k, f.Custom[k]})
	}
	return rows
}

func boolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (r *renderer) multiRowInsert(table, columns string, rows []string) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(&r.w, "INSERT INTO %s (%s) VALUES\n", table, columns)
	r.w.WriteString("    " + strings.Join(rows, ",\n    "))
	r.w.WriteString(";\n\n")
}

// ---------- VIEW ----------

func (r *renderer) renderViews() {
	groups := r.precedenceGroups()
	for i, g := range groups {
		if i > 0 {
			r.w.WriteString("\n")
		}
		name := r.q(r.objectName("HIERARCHY_VW" + groupSuffix(g)))
		fmt.Fprintf(&r.w, "CREATE OR REPLACE VIEW %s AS\n", name)
		r.w.WriteString(r.selectBody(g))
		r.w.WriteString(";\n")
	}
}

// ---------- MAPPING ----------

func (r *renderer) renderMapping() {
	table := r.objectName("HIERARCHY_MAPPING")
	fmt.Fprintf(&r.w, "CREATE TABLE IF NOT EXISTS %s (\n", r.q(table))
	fmt.Fprintf(&r.w, "    NODE_ID %s NOT NULL,\n", r.textType)
	fmt.Fprintf(&r.w, "    IDX %s NOT NULL,\n", r.numType)
	fmt.Fprintf(&r.w, "    SOURCE_DATABASE %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    SOURCE_SCHEMA %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    SOURCE_TABLE %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    SOURCE_COLUMN %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    UID %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    JOIN_TYPE %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    SYSTEM_TYPE %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    DIMENSION_ROLE %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    PRECEDENCE_GROUP %s,\n", r.textType)
	fmt.Fprintf(&r.w, "    INHERITED_FROM %s", r.textType)
	if r.jsonType != "" {
		fmt.Fprintf(&r.w, ",\n    JOIN_KEYS %s\n", r.jsonType)
	} else {
		r.w.WriteString("\n")
	}
	r.w.WriteString(");\n\n")

	if r.jsonType == "" {
		keyTable := r.objectName("HIERARCHY_MAPPING_KEY")
		fmt.Fprintf(&r.w, "CREATE TABLE IF NOT EXISTS %s (\n", r.q(keyTable))
		fmt.Fprintf(&r.w, "    NODE_ID %s NOT NULL,\n", r.textType)
		fmt.Fprintf(&r.w, "    IDX %s NOT NULL,\n", r.numType)
		fmt.Fprintf(&r.w, "    SOURCE_COLUMN %s,\n", r.textType)
		fmt.Fprintf(&r.w, "    TARGET_COLUMN %s,\n", r.textType)
		fmt.Fprintf(&r.w, "    OPERATOR %s\n", r.textType)
		r.w.WriteString(");\n\n")
	}

	var selects, keyRows []string
	for i := range r.req.Model.Nodes {
		n := &r.req.Model.Nodes[i]
		grouped := r.req.Mappings.ByNode[n.ID]
		for _, pg := range grouped.PrecedenceGroups() {
			bySystem := grouped[pg]
			for _, st := range model.SystemTypes {
				for _, m := range bySystem[st] {
					if m.Flags.Exclude {
						// Views skip excluded mappings; the mapping table does too.
						continue
					}
					selects = append(selects, r.mappingRow(n.ID, m))
					for _, k := range m.JoinKeys {
						keyRows = append(keyRows, fmt.Sprintf("(%s, %d, %s, %s, %s)",
							sqlString(n.ID), m.Index, sqlString(k.SourceColumn), sqlString(k.TargetColumn), sqlString(k.Operator)))
					}
				}
			}
		}
	}

	if len(selects) > 0 {
		cols := "NODE_ID, IDX, SOURCE_DATABASE, SOURCE_SCHEMA, SOURCE_TABLE, SOURCE_COLUMN, UID, JOIN_TYPE, SYSTEM_TYPE, DIMENSION_ROLE, PRECEDENCE_GROUP, INHERITED_FROM"
		if r.jsonType != "" {
			cols += ", JOIN_KEYS"
			fmt.Fprintf(&r.w, "INSERT INTO %s (%s)\n", r.q(table), cols)
			r.w.WriteString(strings.Join(selects, "\nUNION ALL\n"))
			r.w.WriteString(";\n")
		} else {
			fmt.Fprintf(&r.w, "INSERT INTO %s (%s) VALUES\n", r.q(table), cols)
			r.w.WriteString("    " + strings.Join(selects, ",\n    "))
			r.w.WriteString(";\n\n")
			r.multiRowInsert(r.q(r.objectName("HIERARCHY_MAPPING_KEY")), "NODE_ID, IDX, SOURCE_COLUMN, TARGET_COLUMN, OPERATOR", keyRows)
		}
	}
}

func (r *renderer) mappingRow(nodeID string, m resolve.EffectiveMapping) string {
	inherited := "NULL"
	if m.InheritedFrom != "" {
		inherited = sqlString(m.InheritedFrom)
	}
	uid := "NULL"
	if m.UID != "" {
		uid = sqlString(m.UID)
	}
	fields := []string{
		sqlString(nodeID),
		fmt.Sprintf("%d", m.Index),
		sqlString(m.Database),
		sqlString(m.Schema),
		sqlString(m.Table),
		sqlString(m.Column),
		uid,
		sqlString(string(m.JoinType)),
		sqlString(string(m.SystemType)),
		sqlString(string(m.DimensionRole)),
		sqlString(m.PrecedenceGroup),
		inherited,
	}
	if r.jsonType != "" {
		fields = append(fields, r.jsonExpr(joinKeysJSON(m.JoinKeys)))
		return "SELECT " + strings.Join(fields, ", ")
	}
	return "(" + strings.Join(fields, ", ") + ")"
}

// ---------- DYNAMIC_TABLE ----------

func (r *renderer) renderDynamic() {
	if r.req.Header != "" {
		r.w.WriteString(r.req.Header + "\n")
	}
	groups := r.precedenceGroups()
	for i, g := range groups {
		if i > 0 {
			r.w.WriteString("\n")
		}
		name := r.q(r.objectName("HIERARCHY_DT" + groupSuffix(g)))
		body := r.selectBody(g)
		switch r.dynamic {
		case dynNative:
			lag := r.req.RefreshLag
			if lag == "" {
				lag = "1 hour"
			}
			fmt.Fprintf(&r.w, "CREATE OR REPLACE DYNAMIC TABLE %s\n", name)
			fmt.Fprintf(&r.w, "    TARGET_LAG = %s\n", sqlString(lag))
			r.w.WriteString("    WAREHOUSE = COMPUTE_WH\nAS\n")
			r.w.WriteString(body)
			r.w.WriteString(";\n")
		case dynMaterializedView:
			fmt.Fprintf(&r.w, "DROP MATERIALIZED VIEW IF EXISTS %s;\n", name)
			fmt.Fprintf(&r.w, "CREATE MATERIALIZED VIEW %s AS\n", name)
			r.w.WriteString(body)
			r.w.WriteString(";\n\n")
			r.w.WriteString("-- Schedule the following statement externally to refresh:\n")
			fmt.Fprintf(&r.w, "-- REFRESH MATERIALIZED VIEW %s;\n", name)
		case dynPlainView:
			fmt.Fprintf(&r.w, "CREATE OR REPLACE VIEW %s AS\n", name)
			r.w.WriteString(body)
			r.w.WriteString(";\n")
			r.w.WriteString("-- No continuous refresh is available on this engine; the view\n")
			r.w.WriteString("-- computes on read. Re-run this script after model changes.\n")
		}
	}
}

// ---------- FACT_TABLE ----------

func (r *renderer) renderFact() {
	if r.req.Fact == nil || len(r.req.Fact.Groups) == 0 {
		r.w.WriteString("-- No fact plan: no PRIMARY mappings were found.\n")
		return
	}
	for i, gp := range r.req.Fact.Groups {
		if i > 0 {
			r.w.WriteString("\n")
		}
		name := r.q(r.objectName("FACT" + groupSuffix(gp.PrecedenceGroup)))
		r.replaceTable(&r.w, name, r.factBody(gp))
	}
}

func (r *renderer) factBody(gp resolve.GroupPlan) string {
	baseAlias := systemAliases[gp.Base.SystemType]

	var cols []string
	for _, dim := range factDimensions(gp) {
		cols = append(cols, baseAlias+"."+r.q(dim)+" AS "+r.q(dim))
	}
	cols = append(cols, r.valueColumn(baseAlias, gp.Base))
	for _, j := range gp.Joins {
		cols = append(cols, r.valueColumn(systemAliases[j.SystemType], j))
	}
	for _, v := range gp.Variance {
		cols = append(cols, r.varianceColumn(gp, v))
	}

	var b strings.Builder
	b.WriteString("SELECT\n    ")
	b.WriteString(strings.Join(cols, ",\n    "))
	b.WriteString("\nFROM " + r.qualified(gp.Base.Anchor.SourceMapping) + " AS " + baseAlias)

	for _, j := range gp.Joins {
		alias := systemAliases[j.SystemType]
		b.WriteString("\n" + joinKeyword(j.Anchor.JoinType) + " " + r.qualified(j.Anchor.SourceMapping) + " AS " + alias)
		b.WriteString(" ON " + r.joinOn(alias, baseAlias, j.Anchor.JoinKeys))
	}

	for _, j := range append([]resolve.SystemJoin{gp.Base}, gp.Joins...) {
		anchorAlias := systemAliases[j.SystemType]
		for k, att := range j.Attached {
			alias := fmt.Sprintf("%s_x%d", anchorAlias, k+1)
			b.WriteString("\n" + joinKeyword(att.JoinType) + " " + r.qualified(att.SourceMapping) + " AS " + alias)
			b.WriteString(" ON " + r.joinOn(alias, anchorAlias, att.JoinKeys))
		}
	}
	return b.String()
}

// factDimensions collects the base-relation columns the joined systems key
// on, in first-seen order.
func factDimensions(gp resolve.GroupPlan) []string {
	seen := make(map[string]bool)
	var dims []string
	add := func(col string) {
		if col != "" && !seen[col] {
			seen[col] = true
			dims = append(dims, col)
		}
	}
	for _, j := range gp.Joins {
		for _, k := range j.Anchor.JoinKeys {
			add(k.TargetColumn)
		}
	}
	if len(dims) == 0 {
		for _, k := range gp.Base.Anchor.JoinKeys {
			add(k.SourceColumn)
		}
	}
	return dims
}

func (r *renderer) valueColumn(alias string, j resolve.SystemJoin) string {
	return alias + "." + r.q(j.Anchor.Column) + " AS " + r.q(string(j.SystemType)+"_VALUE")
}

// varianceColumn renders `minuend - subtrahend`, with the percent variant
// NULLIF-guarded so a zero subtrahend yields NULL instead of a division
// error.
func (r *renderer) varianceColumn(gp resolve.GroupPlan, v resolve.VarianceColumn) string {
	minuend := r.factValueExpr(gp, v.Minuend)
	subtrahend := r.factValueExpr(gp, v.Subtrahend)
	diff := minuend + " - " + subtrahend
	if v.Percent {
		return "(" + diff + ") / NULLIF(" + subtrahend + ", 0) AS " + r.q(v.Name)
	}
	return diff + " AS " + r.q(v.Name)
}

// factValueExpr returns the value expression of a system type within one
// fact group.
func (r *renderer) factValueExpr(gp resolve.GroupPlan, st model.SystemType) string {
	if gp.Base.SystemType == st {
		return systemAliases[st] + "." + r.q(gp.Base.Anchor.Column)
	}
	for _, j := range gp.Joins {
		if j.SystemType == st {
			return systemAliases[st] + "." + r.q(j.Anchor.Column)
		}
	}
	return "NULL"
}

func (r *renderer) joinOn(alias, baseAlias string, keys []model.JoinKey) string {
	if len(keys) == 0 {
		return "1 = 1"
	}
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = alias + "." + r.q(k.SourceColumn) + " " + k.Operator + " " + baseAlias + "." + r.q(k.TargetColumn)
	}
	return strings.Join(conds, " AND ")
}

func joinKeyword(jt model.JoinType) string {
	switch jt {
	case model.JoinInner:
		return "INNER JOIN"
	case model.JoinRight:
		return "RIGHT JOIN"
	case model.JoinFull:
		return "FULL JOIN"
	default:
		return "LEFT JOIN"
	}
}
