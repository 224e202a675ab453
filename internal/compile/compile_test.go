package compile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-data/treeline/internal/dialect"
	"github.com/treeline-data/treeline/internal/model"
)

func demoSnapshot() model.Snapshot {
	return model.Snapshot{
		Project: "demo",
		Nodes: []model.HierarchyNode{
			{
				ID: "REVENUE", Name: "Revenue",
				Flags: model.Flags{Active: true},
				Mappings: []model.SourceMapping{{
					Index: 1, Schema: "src", Table: "fact_actuals", Column: "AMOUNT",
					SystemType: model.SystemActuals, DimensionRole: model.RolePrimary,
					JoinKeys: []model.JoinKey{{SourceColumn: "ACCOUNT_ID", TargetColumn: "ACCOUNT_ID", Operator: "="}},
					Flags:    model.MappingFlags{Active: true},
				}},
			},
			{
				ID: "DOUBLE_REVENUE", Name: "Double Revenue",
				Flags: model.Flags{Active: true, IsCalculation: true},
				Formula: &model.Formula{
					Operation: model.OpMultiply,
					Rules: []model.FormulaRule{
						{NodeID: "REVENUE", Precedence: 1},
						{Constant: floatPtr(2), Precedence: 2},
					},
				},
			},
		},
	}
}

func floatPtr(f float64) *float64 { return &f }

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestCompileAllExpandsEveryKindInOrder(t *testing.T) {
	c := New(nil)
	result, err := c.Compile(demoSnapshot(), Options{
		Dialect:   "snowflake",
		Artifacts: []model.ArtifactKind{model.ArtifactAll},
		Now:       fixedClock,
	})
	require.NoError(t, err)
	require.True(t, result.Ok())

	require.Len(t, result.Artifacts, len(model.ArtifactKinds))
	for i, a := range result.Artifacts {
		assert.Equal(t, model.ArtifactKinds[i], a.Kind)
		assert.Equal(t, "snowflake", a.Dialect)
		assert.Equal(t, result.Fingerprint, a.Fingerprint)
		assert.NotEmpty(t, a.Text)
	}
	assert.Len(t, result.Fingerprint, 64)
}

func TestCompileIsByteIdentical(t *testing.T) {
	c := New(nil)
	opts := Options{
		Dialect:   "postgres",
		Artifacts: []model.ArtifactKind{model.ArtifactAll},
		Now:       fixedClock,
	}

	first, err := c.Compile(demoSnapshot(), opts)
	require.NoError(t, err)
	second, err := c.Compile(demoSnapshot(), opts)
	require.NoError(t, err)

	require.Len(t, second.Artifacts, len(first.Artifacts))
	for i := range first.Artifacts {
		assert.Equal(t, first.Artifacts[i].Text, second.Artifacts[i].Text)
	}
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestCompileHeaderOnlyOnDynamicTable(t *testing.T) {
	c := New(nil)
	result, err := c.Compile(demoSnapshot(), Options{
		Dialect:   "snowflake",
		Artifacts: []model.ArtifactKind{model.ArtifactAll},
		Now:       fixedClock,
	})
	require.NoError(t, err)

	header := "-- Project: demo | Generated: 2026-01-02T03:04:05Z"
	for _, a := range result.Artifacts {
		if a.Kind == model.ArtifactDynamicTable {
			assert.Contains(t, a.Text, header)
		} else {
			assert.NotContains(t, a.Text, "Generated:")
		}
	}
}

func TestCompileFatalErrorsYieldNoArtifacts(t *testing.T) {
	snap := demoSnapshot()
	snap.Nodes[1].ParentID = "nope"

	c := New(nil)
	result, err := c.Compile(snap, Options{
		Dialect:   "snowflake",
		Artifacts: []model.ArtifactKind{model.ArtifactView},
	})
	require.NoError(t, err)

	assert.False(t, result.Ok())
	assert.Empty(t, result.Artifacts)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, model.ErrUnknownParent, result.Errors[0].Kind)
}

func TestCompileCircularFormulaStopsPipeline(t *testing.T) {
	snap := demoSnapshot()
	snap.Nodes[0].Formula = &model.Formula{
		Operation: model.OpAdd,
		Rules:     []model.FormulaRule{{NodeID: "DOUBLE_REVENUE"}},
	}

	c := New(nil)
	result, err := c.Compile(snap, Options{
		Dialect:   "snowflake",
		Artifacts: []model.ArtifactKind{model.ArtifactView},
	})
	require.NoError(t, err)

	assert.False(t, result.Ok())
	assert.Empty(t, result.Artifacts)
	assert.Equal(t, model.ErrCircularFormula, result.Errors[0].Kind)
}

func TestCompileSelfReferencingFormula(t *testing.T) {
	snap := demoSnapshot()
	snap.Nodes[1].Formula.Rules = []model.FormulaRule{{NodeID: "DOUBLE_REVENUE"}}

	c := New(nil)
	result, err := c.Compile(snap, Options{
		Dialect:   "snowflake",
		Artifacts: []model.ArtifactKind{model.ArtifactView},
	})
	require.NoError(t, err)

	assert.False(t, result.Ok())
	assert.Empty(t, result.Artifacts)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, model.ErrCircularFormula, result.Errors[0].Kind)
	assert.Contains(t, result.Errors[0].Detail, "DOUBLE_REVENUE -> DOUBLE_REVENUE")
}

func TestCompileUnknownDialect(t *testing.T) {
	c := New(nil)
	_, err := c.Compile(demoSnapshot(), Options{
		Dialect:   "oracle",
		Artifacts: []model.ArtifactKind{model.ArtifactView},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dialect")
}

func TestCompileNoArtifactsRequested(t *testing.T) {
	c := New(nil)
	_, err := c.Compile(demoSnapshot(), Options{Dialect: "snowflake"})
	require.Error(t, err)
}

func TestCompileDeduplicatesKinds(t *testing.T) {
	c := New(nil)
	result, err := c.Compile(demoSnapshot(), Options{
		Dialect:   "snowflake",
		Artifacts: []model.ArtifactKind{model.ArtifactView, model.ArtifactView, model.ArtifactInsert},
	})
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 2)
	assert.Equal(t, model.ArtifactInsert, result.Artifacts[0].Kind)
	assert.Equal(t, model.ArtifactView, result.Artifacts[1].Kind)
}

// viewOnlyBackend refuses everything except VIEW, to exercise the degrade
// path for unsupported artifact kinds.
type viewOnlyBackend struct{}

func (viewOnlyBackend) Name() string { return "viewonly" }

func (viewOnlyBackend) Render(req dialect.Request) (string, error) {
	if req.Kind != model.ArtifactView {
		return "", dialect.ErrUnsupportedArtifact
	}
	return "SELECT 1", nil
}

func TestCompileUnsupportedKindBecomesDiagnostic(t *testing.T) {
	dialect.Register(viewOnlyBackend{})

	c := New(nil)
	result, err := c.Compile(demoSnapshot(), Options{
		Dialect:   "viewonly",
		Artifacts: []model.ArtifactKind{model.ArtifactView, model.ArtifactInsert},
	})
	require.NoError(t, err)
	require.True(t, result.Ok())

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, model.ArtifactView, result.Artifacts[0].Kind)

	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, model.DiagUnsupportedArtifact, result.Diagnostics[0].Kind)
	assert.Contains(t, result.Diagnostics[0].Detail, "INSERT")
}

func TestFingerprintChangesWithModel(t *testing.T) {
	vm1, errs := model.Validate(demoSnapshot())
	require.Empty(t, errs)

	changed := demoSnapshot()
	changed.Nodes[0].Name = "Net Revenue"
	vm2, errs := model.Validate(changed)
	require.Empty(t, errs)

	f1, err := Fingerprint(vm1)
	require.NoError(t, err)
	f2, err := Fingerprint(vm2)
	require.NoError(t, err)

	assert.NotEqual(t, f1, f2)
	assert.Len(t, f1, 64)
}
