// Package naming implements the naming service: pure path and codec logic
// mapping service names to naming-store paths, serializing/deserializing
// naming-node payloads, and bulk-resolving a dependency list to its paths
// (spec §4.2). It holds no state of its own — the Broker-side state lives in
// internal/servicemgr.
package naming

import (
	"fmt"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/store"
)

// Service resolves service names to naming-store paths under a fixed root
// and (de)serializes the payload stored there.
type Service struct {
	root string
}

// New returns a naming service rooted at nsRoot (e.g. "/fidelio/naming").
func New(nsRoot string) *Service {
	return &Service{root: nsRoot}
}

// Path returns the naming-store path for serviceName: <nsRoot>/<serviceName>.
func (s *Service) Path(serviceName string) string {
	return fmt.Sprintf("%s/%s", s.root, serviceName)
}

// ResolveAll bulk-resolves a list of service names to their naming-store
// paths, used when a Broker queries all of its dependencies at once (spec
// §4.9 step 7).
func (s *Service) ResolveAll(serviceNames []string) map[string]string {
	out := make(map[string]string, len(serviceNames))
	for _, name := range serviceNames {
		out[name] = s.Path(name)
	}
	return out
}

// Encode serializes a naming-node payload.
func (s *Service) Encode(containerPath string, status descriptor.Status) ([]byte, error) {
	return descriptor.MarshalNamingPayload(descriptor.NamingPayload{
		ContainerPath: containerPath,
		Status:        status,
	})
}

// Decode deserializes a naming-node payload.
func (s *Service) Decode(data []byte) (descriptor.NamingPayload, error) {
	return descriptor.UnmarshalNamingPayload(data)
}

// Register creates the ephemeral naming node for serviceName advertising
// containerPath and the given initial status (spec §4.9 step 6).
func (s *Service) Register(st store.Store, serviceName, containerPath string, status descriptor.Status) (string, store.Result) {
	payload, err := s.Encode(containerPath, status)
	if err != nil {
		return "", store.Other
	}
	return st.Create(s.Path(serviceName), payload, store.Ephemeral)
}

// UpdateStatus overwrites the naming node's status, preserving its
// containerPath, advancing it per the monotonic status progression of spec
// §3's invariants (NOT_INITIALIZED -> INITIALIZED -> NOT_RUNNING, etc. is
// enforced by callers; this method performs the unconditional write).
func (s *Service) UpdateStatus(st store.Store, serviceName, containerPath string, status descriptor.Status) store.Result {
	payload, err := s.Encode(containerPath, status)
	if err != nil {
		return store.Other
	}
	_, res := st.SetData(s.Path(serviceName), payload, -1)
	return res
}
