// Package dependency implements Master-side dependency-graph analysis over
// container descriptors: circular-dependency detection, duplicate-name
// detection, and reverse-dependency ("isRequiredFrom") computation. The
// shutdown coordinator (internal/shutdown) consumes the reverse-dependency
// lists this package populates.
package dependency

import "github.com/denlap007/fidelio/internal/descriptor"

// color is the DFS node coloring used by cycle detection: unvisited (white),
// on the current recursion stack (gray), or fully explored (black).
type color int

const (
	white color = iota
	gray
	black
)

// Result is the outcome of analyzing a set of container descriptors.
type Result struct {
	Circular  bool
	Duplicate bool
}

// OK reports whether the descriptors passed analysis clean: no duplicate
// service names and no cycle in the requires graph. The Master refuses to
// launch unless OK() is true (spec §4.3).
func (r Result) OK() bool {
	return !r.Circular && !r.Duplicate
}

// Analyze runs duplicate-name detection, cycle detection, and
// reverse-dependency computation over descs, mutating each descriptor's
// IsRequiredFrom in place.
//
// Iteration order for cycle detection follows descs' input order, matching
// spec §4.3's tie-break: the algorithm reports the existence of a cycle, not
// a specific witness.
func Analyze(descs []*descriptor.Container) Result {
	byName := make(map[string]*descriptor.Container, len(descs))
	duplicate := false
	for _, d := range descs {
		if _, exists := byName[d.ServiceName]; exists {
			duplicate = true
			continue
		}
		byName[d.ServiceName] = d
	}

	circular := detectCycle(descs, byName)
	computeReverseDeps(descs, byName)

	return Result{Circular: circular, Duplicate: duplicate}
}

// detectCycle runs a white/gray/black DFS over the requires graph. A back
// edge to a gray node indicates a cycle.
func detectCycle(descs []*descriptor.Container, byName map[string]*descriptor.Container) bool {
	colors := make(map[string]color, len(descs))
	for _, d := range descs {
		colors[d.ServiceName] = white
	}

	var visit func(name string) bool
	visit = func(name string) bool {
		switch colors[name] {
		case black:
			return false
		case gray:
			return true
		}
		colors[name] = gray

		d, ok := byName[name]
		if ok {
			for _, dep := range d.Requires {
				if _, known := byName[dep]; !known {
					// A requires edge to an unknown service name is skipped;
					// it is neither followed nor reported.
					continue
				}
				if visit(dep) {
					return true
				}
			}
		}
		colors[name] = black
		return false
	}

	for _, d := range descs {
		if colors[d.ServiceName] == white {
			if visit(d.ServiceName) {
				return true
			}
		}
	}
	return false
}

// computeReverseDeps populates each descriptor's IsRequiredFrom as the exact
// setwise reverse of Requires: c.IsRequiredFrom = { s : c.ServiceName in
// s.Requires }.
func computeReverseDeps(descs []*descriptor.Container, byName map[string]*descriptor.Container) {
	reverse := make(map[string]map[string]struct{}, len(descs))
	for _, d := range descs {
		reverse[d.ServiceName] = make(map[string]struct{})
	}
	for _, d := range descs {
		for _, dep := range d.Requires {
			if set, ok := reverse[dep]; ok {
				set[d.ServiceName] = struct{}{}
			}
		}
	}
	for _, d := range descs {
		set := reverse[d.ServiceName]
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		d.IsRequiredFrom = names
	}
}
