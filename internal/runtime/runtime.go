// Package runtime defines the narrow interface Fidelio uses to talk to an
// external container engine (spec §6: "container runtime access is out of
// scope beyond this interface"). internal/master calls only these five
// methods; nothing elsewhere in the repository imports a concrete
// container engine client directly.
package runtime

import "context"

// ContainerSpec is everything the Master passes when asking the runtime
// to create a container: the image to run and the environment variables
// carrying the node paths the in-container Broker reads at boot (spec
// §4.12).
type ContainerSpec struct {
	Name  string
	Image string
	Env   map[string]string
}

// ContainerInfo is the runtime's view of a container's current state.
type ContainerInfo struct {
	Name    string
	Image   string
	Running bool
}

// Client is the external container-runtime collaborator.
type Client interface {
	CreateContainer(ctx context.Context, spec ContainerSpec) error
	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	ListContainers(ctx context.Context) ([]ContainerInfo, error)
}
