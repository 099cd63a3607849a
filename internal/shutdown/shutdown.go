// Package shutdown implements the shutdown coordinator of spec §4.11:
// triggered once by a shutdownEvent, it waits for every reverse dependent
// to vanish from the naming tree, runs the container's stop group, runs
// any postStop tasks, deletes the persistent conf node, and closes the
// coordination-store session — whose ephemeral naming node then
// disappears as a side effect, cascading the same wait to this
// container's own dependents.
package shutdown

import (
	"context"
	"sync"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/naming"
	"github.com/denlap007/fidelio/internal/process"
	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/tasks"
	"github.com/denlap007/fidelio/pkg/logging"
)

const subsystem = "Shutdown"

// Coordinator runs one container's shutdown sequence exactly once.
type Coordinator struct {
	st         store.Store
	naming     *naming.Service
	processMgr *process.Manager
	taskExec   *tasks.Executor
	allTasks   []descriptor.Task
	env        map[string]string
	confPath   string

	once sync.Once
	done chan struct{}
}

// New returns a Coordinator for one container. The set of service names
// that depend on this container (spec §3's IsRequiredFrom, computed by
// internal/dependency at Master time and carried on the descriptor) is
// passed to Run, not to New.
func New(st store.Store, nsvc *naming.Service, processMgr *process.Manager, taskExec *tasks.Executor, allTasks []descriptor.Task, env map[string]string, confPath string) *Coordinator {
	return &Coordinator{
		st:         st,
		naming:     nsvc,
		processMgr: processMgr,
		taskExec:   taskExec,
		allTasks:   allTasks,
		env:        env,
		confPath:   confPath,
		done:       make(chan struct{}),
	}
}

// Run executes the shutdown sequence. It is safe to call more than once;
// only the first call does any work, matching spec §4.11's "shutdown is
// idempotent" invariant.
func (c *Coordinator) Run(ctx context.Context, isRequiredFrom []string) error {
	var runErr error
	c.once.Do(func() {
		runErr = c.run(ctx, isRequiredFrom)
		close(c.done)
	})
	return runErr
}

// Done reports whether Run has completed (closed exactly once).
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) run(ctx context.Context, isRequiredFrom []string) error {
	logging.Info(subsystem, "shutdown starting, waiting for %d dependent(s) to vanish", len(isRequiredFrom))
	if err := c.waitForDependentsGone(ctx, isRequiredFrom); err != nil {
		return err
	}

	logging.Info(subsystem, "all dependents gone, running stop group")
	if err := c.processMgr.StopGroup(ctx); err != nil {
		logging.Warn(subsystem, "stop group reported an error, continuing shutdown: %v", err)
	}

	if c.taskExec != nil {
		c.taskExec.RunPhase(ctx, c.allTasks, descriptor.TaskPostStop, c.env)
	}

	logging.Info(subsystem, "deleting conf node %s", c.confPath)
	if res := c.st.Delete(c.confPath, -1); res != store.OK && res != store.NoNode {
		logging.Warn(subsystem, "failed to delete conf node %s: %s", c.confPath, res)
	}

	logging.Info(subsystem, "closing coordination-store session")
	if err := c.st.Close(); err != nil {
		logging.Warn(subsystem, "session close returned an error: %v", err)
	}
	return nil
}

// waitForDependentsGone blocks until every dependent's naming node has
// disappeared, re-arming its watch on every NodeDataChanged (spec §9's
// decision: any Delete is treated as gone regardless of a subsequent
// Create racing in).
func (c *Coordinator) waitForDependentsGone(ctx context.Context, isRequiredFrom []string) error {
	if len(isRequiredFrom) == 0 {
		return nil
	}

	gone := make(chan string, len(isRequiredFrom))
	pending := make(map[string]bool, len(isRequiredFrom))

	var mu sync.Mutex
	sent := make(map[string]bool, len(isRequiredFrom))
	sendOnce := func(serviceName string) {
		mu.Lock()
		already := sent[serviceName]
		sent[serviceName] = true
		mu.Unlock()
		if !already {
			gone <- serviceName
		}
	}

	var armWatch func(serviceName string)
	armWatch = func(serviceName string) {
		path := c.naming.Path(serviceName)
		exists, _, res := c.st.Exists(path, func(ev store.Event) {
			if ev.Kind == store.NodeDeleted {
				sendOnce(serviceName)
				return
			}
			// Re-arm on any other event (e.g. NodeCreated racing a prior
			// delete, or a data change); only an observed delete counts.
			armWatch(serviceName)
		})
		if res != store.OK || !exists {
			sendOnce(serviceName)
		}
	}

	for _, name := range isRequiredFrom {
		pending[name] = true
		armWatch(name)
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case name := <-gone:
			delete(pending, name)
		}
	}
	return nil
}
