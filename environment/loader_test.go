package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsorch/opsorch-multiquery/schema"
)

func TestParseYAMLList(t *testing.T) {
	doc := `
- id: fra
  name: Frankfurt
  region: eu-frankfurt-1
  compartmentId: ocid1.compartment.oc1..fra
  namespace: secops
  isDefault: true
- id: iad
  name: Ashburn
  region: us-ashburn-1
  authType: instance_principal
  isActive: false
`
	envs, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, envs, 2)

	assert.Equal(t, schema.Environment{
		ID:             "fra",
		Name:           "Frankfurt",
		Region:         "eu-frankfurt-1",
		AuthDescriptor: schema.AuthDescriptor{Type: schema.AuthConfigFile, Profile: "DEFAULT"},
		TenantScope:    schema.TenantScope{CompartmentID: "ocid1.compartment.oc1..fra", Namespace: "secops"},
		IsDefault:      true,
		IsActive:       true,
	}, envs[0])
	assert.Equal(t, schema.AuthInstancePrincipal, envs[1].AuthDescriptor.Type)
	assert.Empty(t, envs[1].AuthDescriptor.Profile)
	assert.False(t, envs[1].IsActive)
}

func TestParseJSONObject(t *testing.T) {
	doc := `{"environments": [{"id": "a", "name": "A", "configProfile": "PROD"}, {"id": "b", "name": "B"}]}`
	envs, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, "PROD", envs[0].AuthDescriptor.Profile)
	assert.Equal(t, "b", envs[1].ID)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`[{"id": "a"}, {"id": "a"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestParseRejectsScalarDocument(t *testing.T) {
	_, err := Parse([]byte(`"nope"`))
	assert.Error(t, err)
	_, err = Parse([]byte(``))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "environments.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: one\n  name: One\n"), 0o600))

	envs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "one", envs[0].ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFallsBackToEnvironmentVariables(t *testing.T) {
	t.Setenv("LOGAN_COMPARTMENT_ID", "ocid1.compartment.oc1..x")
	t.Setenv("LOGAN_NAMESPACE", "")
	t.Setenv("LOGAN_REGION", "eu-frankfurt-1")

	envs, err := Load("")
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "default", envs[0].ID)
	assert.Equal(t, "default", envs[0].TenantScope.Namespace)
	assert.Equal(t, "eu-frankfurt-1", envs[0].Region)
	assert.Equal(t, "ocid1.compartment.oc1..x", envs[0].TenantScope.CompartmentID)
	assert.True(t, envs[0].IsDefault)
}
