package environment

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsorch/opsorch-multiquery/schema"
)

// fileEnvironment is the on-disk shape of one environment. JSON documents parse too,
// since JSON is a subset of YAML.
type fileEnvironment struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Region        string `yaml:"region"`
	AuthType      string `yaml:"authType"`
	ConfigProfile string `yaml:"configProfile"`
	TokenRef      string `yaml:"tokenRef"`
	CompartmentID string `yaml:"compartmentId"`
	Namespace     string `yaml:"namespace"`
	IsDefault     bool   `yaml:"isDefault"`
	IsActive      *bool  `yaml:"isActive"`
}

type fileDocument struct {
	Environments []fileEnvironment `yaml:"environments"`
}

// LoadFile reads environments from a YAML or JSON file. The document is either a list of
// environments or an object with an "environments" list.
func LoadFile(path string) ([]schema.Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read environments file %s: %w", path, err)
	}
	envs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse environments file %s: %w", path, err)
	}
	return envs, nil
}

// Parse decodes an environments document and validates it.
func Parse(data []byte) ([]schema.Environment, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty environments document")
	}

	var raw []fileEnvironment
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		if err := root.Content[0].Decode(&raw); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var doc fileDocument
		if err := root.Content[0].Decode(&doc); err != nil {
			return nil, err
		}
		raw = doc.Environments
	default:
		return nil, fmt.Errorf("environments document must be a list or an object with an environments list")
	}

	envs := make([]schema.Environment, 0, len(raw))
	for _, fe := range raw {
		envs = append(envs, fe.toEnvironment())
	}
	if err := Validate(envs); err != nil {
		return nil, err
	}
	return envs, nil
}

func (fe fileEnvironment) toEnvironment() schema.Environment {
	authType := schema.AuthType(strings.TrimSpace(fe.AuthType))
	if authType == "" {
		authType = schema.AuthConfigFile
	}
	profile := fe.ConfigProfile
	if authType == schema.AuthConfigFile && profile == "" {
		profile = "DEFAULT"
	}
	active := true
	if fe.IsActive != nil {
		active = *fe.IsActive
	}
	return schema.Environment{
		ID:     strings.TrimSpace(fe.ID),
		Name:   fe.Name,
		Region: fe.Region,
		AuthDescriptor: schema.AuthDescriptor{
			Type:     authType,
			Profile:  profile,
			TokenRef: fe.TokenRef,
		},
		TenantScope: schema.TenantScope{
			CompartmentID: fe.CompartmentID,
			Namespace:     fe.Namespace,
		},
		IsDefault: fe.IsDefault,
		IsActive:  active,
	}
}

// FromEnv builds the single default environment from LOGAN_COMPARTMENT_ID, LOGAN_NAMESPACE
// and LOGAN_REGION. It is used when no environments file is configured.
func FromEnv() schema.Environment {
	namespace := strings.TrimSpace(os.Getenv("LOGAN_NAMESPACE"))
	if namespace == "" {
		namespace = "default"
	}
	region := strings.TrimSpace(os.Getenv("LOGAN_REGION"))
	if region == "" {
		region = "us-ashburn-1"
	}
	return schema.Environment{
		ID:     "default",
		Name:   "Default Environment",
		Region: region,
		AuthDescriptor: schema.AuthDescriptor{
			Type:    schema.AuthConfigFile,
			Profile: "DEFAULT",
		},
		TenantScope: schema.TenantScope{
			CompartmentID: strings.TrimSpace(os.Getenv("LOGAN_COMPARTMENT_ID")),
			Namespace:     namespace,
		},
		IsDefault: true,
		IsActive:  true,
	}
}

// Load returns environments from path, or the FromEnv default when path is empty.
func Load(path string) ([]schema.Environment, error) {
	if strings.TrimSpace(path) == "" {
		return []schema.Environment{FromEnv()}, nil
	}
	return LoadFile(path)
}
