package dialect

import (
	"fmt"
	"strings"
)

// Postgres is the strictly relational family with native JSONB columns but
// no continuous-refresh primitive: the dynamic-table artifact degrades to a
// materialized view plus an externally-scheduled refresh statement.
type Postgres struct{}

func init() {
	Register(&Postgres{})
}

// Name returns the dialect name.
func (p *Postgres) Name() string { return "postgres" }

// Render renders one artifact kind for PostgreSQL.
func (p *Postgres) Render(req Request) (string, error) {
	r := &renderer{
		spec: spec{
			name:     "postgres",
			quote:    `"`,
			quoteEnd: `"`,
			textType: "TEXT",
			numType:  "NUMERIC",
			boolType: "BOOLEAN",
			jsonType: "JSONB",
			jsonExpr: func(literal string) string {
				return sqlString(literal) + "::jsonb"
			},
			replaceTable: func(w *strings.Builder, name, body string) {
				fmt.Fprintf(w, "DROP TABLE IF EXISTS %s;\n", name)
				fmt.Fprintf(w, "CREATE TABLE %s AS\n%s;\n", name, body)
			},
			dynamic: dynMaterializedView,
		},
		req: req,
	}
	return r.render()
}
