package dialect

import (
	"fmt"
	"strings"
)

// MySQL is the refresh-job family: no semi-structured column type and no
// materialized views. Nested level/flag shapes render as normalized child
// tables and the dynamic-table artifact degrades to a plain view with a
// manual-refresh note.
type MySQL struct{}

func init() {
	Register(&MySQL{})
}

// Name returns the dialect name.
func (m *MySQL) Name() string { return "mysql" }

// Render renders one artifact kind for MySQL.
func (m *MySQL) Render(req Request) (string, error) {
	r := &renderer{
		spec: spec{
			name:     "mysql",
			quote:    "`",
			quoteEnd: "`",
			textType: "VARCHAR(255)",
			numType:  "INT",
			boolType: "BOOLEAN",
			jsonType: "",
			jsonExpr: nil,
			replaceTable: func(w *strings.Builder, name, body string) {
				fmt.Fprintf(w, "DROP TABLE IF EXISTS %s;\n", name)
				fmt.Fprintf(w, "CREATE TABLE %s AS\n%s;\n", name, body)
			},
			dynamic: dynPlainView,
		},
		req: req,
	}
	return r.render()
}
