package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meshtest/harness/pkg/harness"
)

// ComponentManifest describes one component declaration in a scenario
// manifest file (SPEC_FULL.md §3 "Scenario manifest"). The §4.2 step DSL
// remains the normative way to describe steps — a manifest only declares
// the components a scenario wires up, since YAML can't express closures or
// handlers.
type ComponentManifest struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // "http", "grpc", "ws", "tcp", "mq", "postgres"
	Mode     string `yaml:"mode"` // "client", "server"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Path     string `yaml:"path"`
	TLS      bool   `yaml:"tls"`
	TargetHost string `yaml:"targetHost"` // proxy mode only
	TargetPort int    `yaml:"targetPort"`
}

// ScenarioManifest is the top-level YAML document shape.
type ScenarioManifest struct {
	Name       string              `yaml:"name"`
	Components []ComponentManifest `yaml:"components"`
}

// LoadScenarioFile parses a YAML scenario manifest from path.
func LoadScenarioFile(path string) (*ScenarioManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	var manifest ScenarioManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, &LoadError{Source: path, Err: fmt.Errorf("invalid YAML: %w", err)}
	}
	if manifest.Name == "" {
		return nil, NewValidationError("manifest", "name", ErrMissingRequiredField)
	}
	return &manifest, nil
}

// Address converts a ComponentManifest's address fields into a
// harness.Address.
func (m ComponentManifest) Address() harness.Address {
	return harness.Address{Host: m.Host, Port: m.Port, Path: m.Path, TLS: m.TLS}
}

// TargetAddress returns the proxy target address if one was declared, or
// nil for mock-mode components.
func (m ComponentManifest) TargetAddress() *harness.Address {
	if m.TargetHost == "" {
		return nil
	}
	return &harness.Address{Host: m.TargetHost, Port: m.TargetPort}
}
