package schema

// AuthType names how an executor authenticates against one environment.
// The orchestrator never interprets it; adapters do.
type AuthType string

const (
	AuthConfigFile        AuthType = "config_file"
	AuthInstancePrincipal AuthType = "instance_principal"
	AuthResourcePrincipal AuthType = "resource_principal"
	AuthToken             AuthType = "token"
)

// AuthDescriptor is an opaque, pre-resolved credential reference carried to the executor.
//
// Example:
//
//	{"type": "config_file", "profile": "FRANKFURT"}
type AuthDescriptor struct {
	Type     AuthType `json:"type,omitempty" yaml:"type,omitempty"`
	Profile  string   `json:"profile,omitempty" yaml:"profile,omitempty"`   // config file profile name
	TokenRef string   `json:"tokenRef,omitempty" yaml:"tokenRef,omitempty"` // delegated token reference
}

// TenantScope narrows queries inside an environment (compartment/namespace or equivalent).
type TenantScope struct {
	CompartmentID string `json:"compartmentId,omitempty" yaml:"compartmentId,omitempty"`
	Namespace     string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// Environment is one independently addressable log-analytics backend.
type Environment struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Region         string         `json:"region,omitempty"`
	AuthDescriptor AuthDescriptor `json:"authDescriptor"`
	TenantScope    TenantScope    `json:"tenantScope"`
	IsDefault      bool           `json:"isDefault"`
	IsActive       bool           `json:"isActive"`
}

// DisplayName returns Name, falling back to ID.
func (e Environment) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}
