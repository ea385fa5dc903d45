package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsorch/opsorch-multiquery/schema"
)

func testEnvs() []schema.Environment {
	return []schema.Environment{
		{ID: "fra", Name: "Frankfurt", IsActive: true, IsDefault: true},
		{ID: "iad", Name: "Ashburn", IsActive: false},
		{ID: "phx", Name: "Phoenix", IsActive: true},
		{ID: "lhr", Name: "London", IsActive: true},
	}
}

func ids(envs []schema.Environment) []string {
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.ID)
	}
	return out
}

func TestListPreservesInsertionOrder(t *testing.T) {
	reg, err := NewRegistry(testEnvs())
	require.NoError(t, err)

	snap := reg.Snapshot()
	assert.Equal(t, []string{"fra", "iad", "phx", "lhr"}, ids(snap.ListEnvironments()))
	assert.Equal(t, []string{"fra", "phx", "lhr"}, ids(snap.ListActive()))
}

func TestResolveReportsMissingInRequestOrder(t *testing.T) {
	reg, err := NewRegistry(testEnvs())
	require.NoError(t, err)

	matched, missing := reg.Snapshot().Resolve([]string{"lhr", "zzz", "fra", "lhr", "aaa", "zzz"})
	assert.Equal(t, []string{"fra", "lhr"}, ids(matched), "matched follow registry order")
	assert.Equal(t, []string{"zzz", "aaa"}, missing)
}

func TestResolveIncludesInactiveWhenNamed(t *testing.T) {
	reg, err := NewRegistry(testEnvs())
	require.NoError(t, err)

	matched, missing := reg.Snapshot().Resolve([]string{"iad"})
	assert.Empty(t, missing)
	assert.Equal(t, []string{"iad"}, ids(matched))
}

func TestGetDefault(t *testing.T) {
	reg, err := NewRegistry(testEnvs())
	require.NoError(t, err)

	env, ok := reg.Snapshot().GetDefault()
	require.True(t, ok)
	assert.Equal(t, "fra", env.ID)

	empty, err := NewRegistry(nil)
	require.NoError(t, err)
	_, ok = empty.Snapshot().GetDefault()
	assert.False(t, ok)
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	err := Validate([]schema.Environment{
		{ID: "a", IsDefault: true},
		{ID: ""},
		{ID: "a"},
		{ID: "b", IsDefault: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
	assert.Contains(t, err.Error(), `duplicate id "a"`)
	assert.Contains(t, err.Error(), "at most one default")
}

func TestReplaceKeepsOldContentOnError(t *testing.T) {
	reg, err := NewRegistry(testEnvs())
	require.NoError(t, err)

	err = reg.Replace([]schema.Environment{{ID: "x"}, {ID: "x"}})
	require.Error(t, err)
	assert.Equal(t, 4, reg.Snapshot().Len())
}

func TestSnapshotIsolatedFromReplace(t *testing.T) {
	reg, err := NewRegistry(testEnvs())
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.NoError(t, reg.Replace([]schema.Environment{{ID: "only", IsActive: true}}))

	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, []string{"only"}, ids(reg.Snapshot().ListEnvironments()))
}

func TestSnapshotListIsACopy(t *testing.T) {
	reg, err := NewRegistry(testEnvs())
	require.NoError(t, err)

	snap := reg.Snapshot()
	list := snap.ListEnvironments()
	list[0].Name = "mutated"

	env, ok := snap.Get("fra")
	require.True(t, ok)
	assert.Equal(t, "Frankfurt", env.Name)
}
