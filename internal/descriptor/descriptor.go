// Package descriptor defines the container descriptor record that flows from
// the Master (which produces it, out of scope here — assumed already parsed
// from the application schema) down to each Broker (which treats it as
// read-only). It also defines the naming-service status enumeration and the
// wire serialization used on the configuration node.
package descriptor

import "fmt"

// ContainerType is the Web/Business/Data discriminator from spec §3.
type ContainerType string

const (
	TypeWeb      ContainerType = "Web"
	TypeBusiness ContainerType = "Business"
	TypeData     ContainerType = "Data"
)

func (t ContainerType) Valid() bool {
	switch t {
	case TypeWeb, TypeBusiness, TypeData:
		return true
	default:
		return false
	}
}

// Status is one of the four values a service advertises to its dependents
// through its naming node.
type Status string

const (
	StatusNotInitialized Status = "NOT_INITIALIZED"
	StatusInitialized    Status = "INITIALIZED"
	StatusNotRunning     Status = "NOT_RUNNING"
	StatusUpdated        Status = "UPDATED"
)

// Resource is a single process specification: an executable, its arguments,
// and whether it is the group's long-running main process.
type Resource struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
	IsMain  bool     `yaml:"isMain,omitempty"`
}

// ProcessGroup is an ordered triple of resources executed at startup or
// shutdown: pre-main resources in order, a single main resource, then
// post-main resources in order.
type ProcessGroup struct {
	PreMain  []Resource `yaml:"preMain,omitempty"`
	Main     Resource   `yaml:"main"`
	PostMain []Resource `yaml:"postMain,omitempty"`
}

// ProcessSpec bundles the start and stop groups for a container.
type ProcessSpec struct {
	Start ProcessGroup `yaml:"start"`
	Stop  ProcessGroup `yaml:"stop"`
}

// TaskPhase identifies when a task runs relative to the process groups.
type TaskPhase string

const (
	TaskPreStart TaskPhase = "preStart"
	TaskPostStop TaskPhase = "postStop"
)

// Task is a named, parameterized non-process action. Parameter values may
// reference "${VAR}" against the process environment; expansion happens in
// internal/tasks.
type Task struct {
	Name   string            `yaml:"name"`
	Phase  TaskPhase         `yaml:"phase"`
	Params map[string]string `yaml:"params,omitempty"`
}

// ContainerEnvironment is the container's own environment contribution:
// host/port plus free-form entries, later merged with each dependency's
// environment by internal/env.
type ContainerEnvironment struct {
	Host    string            `yaml:"host"`
	Port    int               `yaml:"port"`
	Entries map[string]string `yaml:"entries,omitempty"`
}

// Container is the immutable-from-the-Broker's-viewpoint record describing
// one container: its identity, its dependency edges (forward and, once the
// analyzer has run, reverse), its process groups, its tasks, and its
// environment.
type Container struct {
	ServiceName     string               `yaml:"serviceName"`
	Type            ContainerType        `yaml:"type"`
	Requires        []string             `yaml:"requires,omitempty"`
	IsRequiredFrom  []string             `yaml:"isRequiredFrom,omitempty"`
	Process         ProcessSpec          `yaml:"process"`
	Tasks           []Task               `yaml:"tasks,omitempty"`
	Environment     ContainerEnvironment `yaml:"environment"`
}

// Validate checks the structural invariants of §3 that do not require
// knowledge of the rest of the application (name present, known type, main
// resource present). Cross-descriptor invariants — no duplicate names, no
// cycles — are the dependency analyzer's job (internal/dependency).
func (c *Container) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("descriptor: serviceName is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("descriptor %s: invalid type %q", c.ServiceName, c.Type)
	}
	if c.Process.Start.Main.Name == "" {
		return fmt.Errorf("descriptor %s: start group requires a main resource", c.ServiceName)
	}
	return nil
}
