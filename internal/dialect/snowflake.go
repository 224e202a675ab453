package dialect

import (
	"fmt"
	"strings"
)

// Snowflake is the semi-structured-column family: VARIANT columns for nested
// shapes and native dynamic tables with a declared staleness bound.
type Snowflake struct{}

func init() {
	Register(&Snowflake{})
}

// Name returns the dialect name.
func (s *Snowflake) Name() string { return "snowflake" }

// Render renders one artifact kind for Snowflake.
func (s *Snowflake) Render(req Request) (string, error) {
	r := &renderer{
		spec: spec{
			name:     "snowflake",
			quote:    `"`,
			quoteEnd: `"`,
			textType: "VARCHAR",
			numType:  "NUMBER",
			boolType: "BOOLEAN",
			jsonType: "VARIANT",
			jsonExpr: func(literal string) string {
				return "PARSE_JSON(" + sqlString(literal) + ")"
			},
			replaceTable: func(w *strings.Builder, name, body string) {
				fmt.Fprintf(w, "CREATE OR REPLACE TABLE %s AS\n%s;\n", name, body)
			},
			dynamic: dynNative,
		},
		req: req,
	}
	return r.render()
}
