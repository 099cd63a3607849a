// Package env builds the environment a container's processes run with: its
// own declared entries plus, for every dependency, a namespaced
// <SERVICE>_HOST / <SERVICE>_PORT pair and that dependency's own custom
// entries prefixed the same way (spec §4.6). The merge is pure and
// produces an immutable map; nothing here touches the coordination store.
package env

import (
	"fmt"
	"sort"
	"strings"

	"github.com/denlap007/fidelio/internal/descriptor"
)

// Dependency is the subset of a dependency's descriptor the environment
// handler needs: its own declared environment.
type Dependency struct {
	ServiceName string
	Environment descriptor.ContainerEnvironment
}

// Build merges own's own environment entries with a namespaced view of
// every dependency's environment, keyed by the dependency's service name
// upper-cased (spec §4.6: "FOO_HOST / FOO_PORT for a dependency named
// foo").
func Build(own descriptor.ContainerEnvironment, deps []Dependency) map[string]string {
	out := make(map[string]string, len(own.Entries)+2*len(deps))

	for k, v := range own.Entries {
		out[k] = v
	}
	if own.Host != "" {
		out["HOST"] = own.Host
	}
	if own.Port != 0 {
		out["PORT"] = fmt.Sprintf("%d", own.Port)
	}

	// Sort dependency names so generated keys are assigned deterministically
	// when two dependencies coincidentally produce the same env key.
	sorted := make([]Dependency, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ServiceName < sorted[j].ServiceName })

	for _, dep := range sorted {
		prefix := strings.ToUpper(dep.ServiceName)
		if dep.Environment.Host != "" {
			out[prefix+"_HOST"] = dep.Environment.Host
		}
		if dep.Environment.Port != 0 {
			out[prefix+"_PORT"] = fmt.Sprintf("%d", dep.Environment.Port)
		}
		for k, v := range dep.Environment.Entries {
			out[prefix+"_"+strings.ToUpper(k)] = v
		}
	}

	return out
}

// ToSlice renders env as a "KEY=VALUE" slice suitable for exec.Cmd.Env,
// sorted for deterministic process inspection.
func ToSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
