// Package fake is an in-memory runtime.Client used by internal/master's
// own tests and by the CLI's start/stop/restart commands in every mode, so
// the Master's wiring logic
// is exercised without a real container engine (spec §4.13).
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/denlap007/fidelio/internal/runtime"
)

// Client is an in-memory runtime.Client.
type Client struct {
	mu         sync.Mutex
	containers map[string]runtime.ContainerInfo
	specs      map[string]runtime.ContainerSpec
}

// New returns an empty fake runtime client.
func New() *Client {
	return &Client{
		containers: make(map[string]runtime.ContainerInfo),
		specs:      make(map[string]runtime.ContainerSpec),
	}
}

// CreateContainer implements runtime.Client.
func (c *Client) CreateContainer(ctx context.Context, spec runtime.ContainerSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.containers[spec.Name]; exists {
		return fmt.Errorf("fake runtime: container %s already exists", spec.Name)
	}
	c.specs[spec.Name] = spec
	c.containers[spec.Name] = runtime.ContainerInfo{Name: spec.Name, Image: spec.Image, Running: false}
	return nil
}

// StartContainer implements runtime.Client.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.containers[name]
	if !ok {
		return fmt.Errorf("fake runtime: container %s not found", name)
	}
	info.Running = true
	c.containers[name] = info
	return nil
}

// StopContainer implements runtime.Client.
func (c *Client) StopContainer(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.containers[name]
	if !ok {
		return fmt.Errorf("fake runtime: container %s not found", name)
	}
	info.Running = false
	c.containers[name] = info
	return nil
}

// RemoveContainer implements runtime.Client.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.containers, name)
	delete(c.specs, name)
	return nil
}

// ListContainers implements runtime.Client.
func (c *Client) ListContainers(ctx context.Context) ([]runtime.ContainerInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]runtime.ContainerInfo, 0, len(c.containers))
	for _, info := range c.containers {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ runtime.Client = (*Client)(nil)
