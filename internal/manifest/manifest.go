// Package manifest parses the YAML resources the `kos apply` CLI command
// submits to the syscall dispatcher.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kaedeos/kos/pkg/types"
)

// Resource is a generic KOS manifest document: one Service or one Job.
type Resource struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

// Metadata names the resource being declared.
type Metadata struct {
	Name string `yaml:"name"`
}

// Spec holds the union of Service and Job fields; only the fields relevant
// to Kind are read by ToService/ToJob.
type Spec struct {
	ExecStart        string            `yaml:"execStart"`
	Type             string            `yaml:"type"`
	RestartPolicy    string            `yaml:"restartPolicy"`
	WorkingDirectory string            `yaml:"workingDirectory"`
	Environment      map[string]string `yaml:"environment"`
	Dependencies     []string          `yaml:"dependencies"`
	Conflicts        []string          `yaml:"conflicts"`
	WatchdogSeconds  int               `yaml:"watchdogSeconds"`

	Command     string `yaml:"command"`
	Schedule    string `yaml:"schedule"`
	Enabled     *bool  `yaml:"enabled"`
	User        string `yaml:"user"`
	Description string `yaml:"description"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var r Resource
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	if r.Metadata.Name == "" {
		return nil, fmt.Errorf("manifest: %s: metadata.name is required", path)
	}
	return &r, nil
}

// ToService converts a Kind: Service resource into a types.Service.
func (r *Resource) ToService() (types.Service, error) {
	if r.Kind != "Service" {
		return types.Service{}, fmt.Errorf("manifest: expected kind Service, got %s", r.Kind)
	}
	return types.Service{
		Name:             r.Metadata.Name,
		ExecStart:        r.Spec.ExecStart,
		Type:             types.ServiceType(r.Spec.Type),
		Restart:          types.RestartPolicy(r.Spec.RestartPolicy),
		WorkingDirectory: r.Spec.WorkingDirectory,
		Environment:      r.Spec.Environment,
		Dependencies:     r.Spec.Dependencies,
		Conflicts:        r.Spec.Conflicts,
	}, nil
}

// ToJob converts a Kind: Job resource into a types.Job.
func (r *Resource) ToJob() (types.Job, error) {
	if r.Kind != "Job" {
		return types.Job{}, fmt.Errorf("manifest: expected kind Job, got %s", r.Kind)
	}
	enabled := true
	if r.Spec.Enabled != nil {
		enabled = *r.Spec.Enabled
	}
	return types.Job{
		Name:             r.Metadata.Name,
		Command:          r.Spec.Command,
		Schedule:         r.Spec.Schedule,
		Enabled:          enabled,
		WorkingDirectory: r.Spec.WorkingDirectory,
		Environment:      r.Spec.Environment,
		User:             r.Spec.User,
		Description:      r.Spec.Description,
	}, nil
}
