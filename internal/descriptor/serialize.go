package descriptor

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal serializes a Container to the wire format stored on its
// configuration node (spec §6: "a structured serialization... any
// self-describing format... is acceptable provided it preserves the typed
// fields of §3"). We use YAML, consistent with the rest of the repo's
// configuration.
func Marshal(c *Container) ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal %s: %w", c.ServiceName, err)
	}
	return data, nil
}

// Unmarshal deserializes a Container from its wire format.
func Unmarshal(data []byte) (*Container, error) {
	var c Container
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("descriptor: unmarshal: %w", err)
	}
	return &c, nil
}

// NamingPayload is the two-field record stored on a naming node: the path of
// the owning container node, and the advertised status.
type NamingPayload struct {
	ContainerPath string `yaml:"containerPath"`
	Status        Status `yaml:"status"`
}

// MarshalNamingPayload serializes a naming-node payload.
func MarshalNamingPayload(p NamingPayload) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal naming payload: %w", err)
	}
	return data, nil
}

// UnmarshalNamingPayload deserializes a naming-node payload.
func UnmarshalNamingPayload(data []byte) (NamingPayload, error) {
	var p NamingPayload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return NamingPayload{}, fmt.Errorf("descriptor: unmarshal naming payload: %w", err)
	}
	return p, nil
}
