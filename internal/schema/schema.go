// Package schema is the narrow on-disk adapter the CLI uses to obtain
// container descriptors. Spec §1 places "schema parsing and XML/JSON
// (de)serialization of the application description" out of scope,
// assuming typed descriptors are produced on demand; this package is the
// minimal concrete producer the standalone CLI needs so `fidelio start`
// has something to hand to internal/master without reaching back into an
// external schema compiler. Beyond YAML decoding it runs
// internal/descriptor.Validate on each entry; the cross-descriptor graph
// checks are internal/dependency.Analyze's.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/denlap007/fidelio/internal/descriptor"
)

// file is the on-disk shape: a flat list of container descriptors, using
// the exact wire fields of internal/descriptor.Container.
type file struct {
	Containers []*descriptor.Container `yaml:"containers"`
}

// LoadFile reads and decodes an application descriptor file from path.
func LoadFile(path string) ([]*descriptor.Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an application descriptor document from data.
func Parse(data []byte) ([]*descriptor.Container, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	for _, d := range f.Containers {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	return f.Containers, nil
}
