// Package master implements the Master tier (spec §4.12): given a set of
// already-parsed container descriptors, it runs the dependency analyzer,
// writes one persistent conf node per descriptor, and launches one
// container per descriptor through a runtime.Client, injecting the node
// paths the in-container Broker reads at boot. Container nodes are not
// created here (each Broker creates its own when it claims it), no parent
// nodes are created, and the coordination-store hosts are not injected.
package master

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/denlap007/fidelio/internal/dependency"
	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/runtime"
	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/pkg/logging"
)

const subsystem = "Master"

// Layout names the coordination-store roots the Master and every Broker
// agree on (spec §6).
type Layout struct {
	ConfRoot       string
	ContainersRoot string
	NamingRoot     string
	ShutdownPath   string
}

// DefaultLayout returns the conventional root paths used when none are
// supplied explicitly.
func DefaultLayout() Layout {
	return Layout{
		ConfRoot:       "/fidelio/conf",
		ContainersRoot: "/fidelio/containers",
		NamingRoot:     "/fidelio/naming",
		ShutdownPath:   "/fidelio/shutdown",
	}
}

// Master owns one application's worth of containers.
type Master struct {
	st      store.Store
	runtime runtime.Client
	layout  Layout
	image   func(d *descriptor.Container) string
	hosts   []string
}

// Config configures a Master.
type Config struct {
	Store   store.Store
	Runtime runtime.Client
	Layout  Layout
	Hosts   []string
	// Image resolves a container's OCI image name; defaults to the
	// descriptor's own service name when nil (suitable for the fake
	// runtime and local demos).
	Image func(d *descriptor.Container) string
}

// New returns a Master.
func New(cfg Config) *Master {
	image := cfg.Image
	if image == nil {
		image = func(d *descriptor.Container) string { return d.ServiceName }
	}
	layout := cfg.Layout
	if layout == (Layout{}) {
		layout = DefaultLayout()
	}
	return &Master{st: cfg.Store, runtime: cfg.Runtime, layout: layout, image: image, hosts: cfg.Hosts}
}

func (m *Master) confPath(d *descriptor.Container) string {
	return fmt.Sprintf("%s/%s", m.layout.ConfRoot, d.ServiceName)
}

func (m *Master) containerPath(d *descriptor.Container) string {
	return fmt.Sprintf("%s/%s/%s", m.layout.ContainersRoot, d.Type, d.ServiceName)
}

// Launch analyzes descs for duplicate names and cycles, lays out the
// coordination-store tree, and launches one container per descriptor.
// It refuses to launch anything if the analyzer reports either invariant
// violation (spec §4.3, Testable Properties #2/#3).
func (m *Master) Launch(ctx context.Context, descs []*descriptor.Container) error {
	result := dependency.Analyze(descs)
	if !result.OK() {
		return &InvalidSchemaError{Duplicate: result.Duplicate, Circular: result.Circular}
	}

	if err := m.st.Connect(ctx, m.hosts, 0); err != nil {
		return fmt.Errorf("master: connect: %w", err)
	}

	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("master: invalid descriptor: %w", err)
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLaunches)
	for _, d := range descs {
		d := d
		g.Go(func() error { return m.createNodes(d) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLaunches)
	for _, d := range descs {
		d := d
		g.Go(func() error { return m.launchContainer(gctx, d) })
	}
	return g.Wait()
}

// maxConcurrentLaunches bounds how many containers the Master creates or
// starts against the runtime at once, matching spec §4.12's "bounded
// concurrent fan-out" so a large application doesn't open one goroutine
// (and one coordination-store round trip, one runtime call) per container
// all at once.
const maxConcurrentLaunches = 8

func (m *Master) createNodes(d *descriptor.Container) error {
	data, err := descriptor.Marshal(d)
	if err != nil {
		return fmt.Errorf("master: marshal %s: %w", d.ServiceName, err)
	}

	path := m.confPath(d)
	_, res := m.st.Create(path, data, store.Persistent)
	if res != store.OK && res != store.NodeExists {
		return fmt.Errorf("master: create conf node %s: %s", path, res)
	}
	if res == store.NodeExists {
		if _, res := m.st.SetData(path, data, -1); res != store.OK {
			return fmt.Errorf("master: update conf node %s: %s", path, res)
		}
	}

	logging.Info(subsystem, "conf node ready for %s at %s", d.ServiceName, path)
	return nil
}

// launchContainer asks the runtime to create and start one container,
// injecting the environment variables its in-container Broker reads at
// boot: its conf and container node paths, the naming root and the
// shutdown path. The coordination-store hosts are not among them.
func (m *Master) launchContainer(ctx context.Context, d *descriptor.Container) error {
	env := map[string]string{
		"FIDELIO_CONF_PATH":      m.confPath(d),
		"FIDELIO_CONTAINER_PATH": m.containerPath(d),
		"FIDELIO_NS_ROOT":        m.layout.NamingRoot,
		"FIDELIO_SHUTDOWN_PATH":  m.layout.ShutdownPath,
	}

	spec := runtime.ContainerSpec{Name: d.ServiceName, Image: m.image(d), Env: env}
	if err := m.runtime.CreateContainer(ctx, spec); err != nil {
		return fmt.Errorf("master: create container %s: %w", d.ServiceName, err)
	}
	if err := m.runtime.StartContainer(ctx, d.ServiceName); err != nil {
		return fmt.Errorf("master: start container %s: %w", d.ServiceName, err)
	}

	logging.Info(subsystem, "launched container %s (%s)", d.ServiceName, spec.Image)
	return nil
}

// Shutdown creates the shutdown node, triggering every Broker's shutdown
// watch.
func (m *Master) Shutdown(ctx context.Context) error {
	_, res := m.st.Create(m.layout.ShutdownPath, []byte("shutdown"), store.Persistent)
	if res != store.OK && res != store.NodeExists {
		return fmt.Errorf("master: create shutdown node: %s", res)
	}
	return nil
}

// Stop stops every container the runtime currently knows about, used by
// the `stop`/`restart` CLI subcommands; it does not remove them.
func (m *Master) Stop(ctx context.Context) error {
	containers, err := m.runtime.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("master: list containers: %w", err)
	}
	for _, c := range containers {
		if err := m.runtime.StopContainer(ctx, c.Name); err != nil {
			logging.Warn(subsystem, "failed to stop %s: %v", c.Name, err)
		}
	}
	return nil
}
