// Package broker implements the Broker orchestrator protocol of spec §4.9
// and the session-recovery path of §4.10: one Broker runs inside each
// application container, claiming its container node, publishing its
// descriptor and naming-node status, watching its dependencies, and
// driving the lifecycle state machine (internal/lifecycle) that starts
// and stops its process group.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/env"
	"github.com/denlap007/fidelio/internal/events"
	"github.com/denlap007/fidelio/internal/lifecycle"
	"github.com/denlap007/fidelio/internal/naming"
	"github.com/denlap007/fidelio/internal/process"
	"github.com/denlap007/fidelio/internal/servicemgr"
	"github.com/denlap007/fidelio/internal/shutdown"
	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/tasks"
	"github.com/denlap007/fidelio/pkg/logging"
)

const subsystem = "Broker"

// MainMonitorInterval is the polling period the main-process monitor uses
// to detect an unexpected exit (spec §4.9 step 9).
const MainMonitorInterval = 500 * time.Millisecond

// Config is everything a Broker needs to know before it connects — the
// node paths the Master already created for it (spec §4.12).
type Config struct {
	Hosts          []string
	SessionTimeout time.Duration
	ShutdownPath   string
	ConfPath       string
	ContainerPath  string
	ServiceName    string
	NamingRoot     string
}

// Broker runs the full lifecycle of one application container.
type Broker struct {
	cfg    Config
	nsvc   *naming.Service
	ctxH   *Context
	events chan lifecycleEvt

	self       *descriptor.Container
	svcMgr     *servicemgr.Manager
	machine    *lifecycle.Machine
	processMgr *process.Manager
	taskExec   *tasks.Executor
	shutdownC  *shutdown.Coordinator
	env        map[string]string
	rec        *events.Recorder

	finished chan struct{}
}

type lifecycleEvt struct {
	ev    lifecycle.Event
	cause error
}

// New returns a Broker bound to st, identified as id (the ephemeral
// container/naming node payload used for checkAndCreate ownership
// comparisons across reconnects).
func New(cfg Config, st store.Store, id string) *Broker {
	return &Broker{
		cfg:      cfg,
		nsvc:     naming.New(cfg.NamingRoot),
		ctxH:     NewContext(context.Background(), st, id),
		events:   make(chan lifecycleEvt, 64),
		rec:      events.NewRecorder(256),
		finished: make(chan struct{}),
	}
}

// Events returns the most recent lifecycle events recorded for this
// container, newest last.
func (b *Broker) Events() []events.Event {
	return b.rec.Recent()
}

// Run executes the full protocol: connect, claim, fetch configuration,
// register, query dependencies, then drives the lifecycle machine until
// it reaches DONE, ERROR, or ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	st := b.ctxH.Store

	if err := st.Connect(ctx, b.cfg.Hosts, b.cfg.SessionTimeout); err != nil {
		return &FatalError{Op: "connect", Err: err}
	}
	st.Register(b.onSessionEvent)

	if err := b.armShutdownWatch(); err != nil {
		return &FatalError{Op: "arm shutdown watch", Err: err}
	}

	if err := b.claimContainerNode(); err != nil {
		return &FatalError{Op: "claim container node", Err: err}
	}

	desc, err := b.waitForConfiguration()
	if err != nil {
		return &FatalError{Op: "wait for configuration", Err: err}
	}
	b.processDescriptor(desc)

	if err := b.registerAsService(); err != nil {
		return &FatalError{Op: "register as service", Err: err}
	}

	b.machine = lifecycle.New(b, func() bool { return b.svcMgr.AllInitializedAndProcessed() })

	go b.eventLoop(ctx)
	b.events <- lifecycleEvt{ev: lifecycle.EventBoot}
	b.events <- lifecycleEvt{ev: lifecycle.EventContainerInit}

	b.queryDependencies()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.finished:
		return nil
	}
}

// armShutdownWatch implements spec §4.9 step 2.
func (b *Broker) armShutdownWatch() error {
	exists, _, res := b.ctxH.Store.Exists(b.cfg.ShutdownPath, b.onShutdownNodeEvent)
	if res != store.OK {
		return fmt.Errorf("exists(%s): %s", b.cfg.ShutdownPath, res)
	}
	if exists {
		b.events <- lifecycleEvt{ev: lifecycle.EventShutdown}
	}
	return nil
}

func (b *Broker) onShutdownNodeEvent(ev store.Event) {
	if ev.Kind == store.NodeCreated {
		b.events <- lifecycleEvt{ev: lifecycle.EventShutdown}
		return
	}
	b.armShutdownWatch()
}

// claimContainerNode implements spec §4.9 step 3.
func (b *Broker) claimContainerNode() error {
	res := b.ctxH.Store.CheckAndCreate(b.cfg.ContainerPath, []byte(b.ctxH.ID), store.Ephemeral, []byte(b.ctxH.ID))
	if res != store.OK {
		return store.ClassifyMutation("checkAndCreate", b.cfg.ContainerPath, res)
	}
	b.rec.Emit(b.cfg.ServiceName, events.ReasonContainerClaimed, "claimed container node %s", b.cfg.ContainerPath)
	return nil
}

// waitForConfiguration implements spec §4.9 step 4.
func (b *Broker) waitForConfiguration() (*descriptor.Container, error) {
	for {
		exists, _, res := b.ctxH.Store.Exists(b.cfg.ConfPath, nil)
		if res != store.OK {
			return nil, store.ClassifyRead("exists", b.cfg.ConfPath, res)
		}
		if exists {
			break
		}

		notify := make(chan struct{}, 1)
		_, _, res = b.ctxH.Store.Exists(b.cfg.ConfPath, func(ev store.Event) {
			if ev.Kind == store.NodeCreated {
				notify <- struct{}{}
			}
		})
		if res != store.OK {
			return nil, store.ClassifyRead("exists", b.cfg.ConfPath, res)
		}
		select {
		case <-notify:
			continue
		case <-b.ctxH.Ctx().Done():
			return nil, b.ctxH.Ctx().Err()
		}
	}

	data, _, res := b.ctxH.Store.GetData(b.cfg.ConfPath, nil)
	if res != store.OK {
		return nil, store.ClassifyRead("getData", b.cfg.ConfPath, res)
	}
	desc, err := descriptor.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal conf node: %w", err)
	}
	return desc, nil
}

// processDescriptor implements spec §4.9 step 5.
func (b *Broker) processDescriptor(desc *descriptor.Container) {
	b.self = desc
	b.svcMgr = servicemgr.New(b.nsvc.ResolveAll(desc.Requires))

	if out, err := descriptor.Marshal(desc); err == nil {
		b.ctxH.Store.SetData(b.cfg.ContainerPath, out, -1)
	} else {
		logging.Warn(subsystem, "failed to re-serialize descriptor for container node: %v", err)
	}
}

// registerAsService implements spec §4.9 step 6.
func (b *Broker) registerAsService() error {
	_, res := b.nsvc.Register(b.ctxH.Store, b.self.ServiceName, b.cfg.ContainerPath, descriptor.StatusNotInitialized)
	if res != store.OK && res != store.NodeExists {
		return store.ClassifyMutation("register naming node", b.nsvc.Path(b.self.ServiceName), res)
	}
	b.rec.Emit(b.self.ServiceName, events.ReasonConfigReceived, "registered as service, %d dependenc(ies)", len(b.self.Requires))
	return nil
}

// queryDependencies implements spec §4.9 step 7, for every dependency.
func (b *Broker) queryDependencies() {
	for _, nsPath := range b.nsvc.ResolveAll(b.self.Requires) {
		b.queryDependency(nsPath)
	}
	if !b.svcMgr.HasServices() {
		b.events <- lifecycleEvt{ev: lifecycle.EventServiceNone}
	}
}

func (b *Broker) queryDependency(nsPath string) {
	exists, _, res := b.ctxH.Store.Exists(nsPath, func(ev store.Event) { b.onDepNamingEvent(nsPath, ev) })
	if res != store.OK {
		logging.Warn(subsystem, "exists(%s): %s", nsPath, res)
		return
	}
	if !exists {
		return // watch waits for NodeCreated
	}
	b.fetchDependency(nsPath)
}

func (b *Broker) fetchDependency(nsPath string) {
	data, _, res := b.ctxH.Store.GetData(nsPath, func(ev store.Event) { b.onDepNamingEvent(nsPath, ev) })
	if res != store.OK {
		logging.Warn(subsystem, "getData(%s): %s", nsPath, res)
		return
	}
	payload, err := b.nsvc.Decode(data)
	if err != nil {
		logging.Warn(subsystem, "decode naming payload %s: %v", nsPath, err)
		return
	}
	b.svcMgr.SetSrvStatus(nsPath, payload.Status)
	b.svcMgr.SetSrvZkConPath(nsPath, payload.ContainerPath)
	if payload.Status == descriptor.StatusInitialized {
		// spec §8 boundary: a dependency already INITIALIZED at query time
		// needs no watch-fire to be considered ready.
		b.rec.Emit(b.self.ServiceName, events.ReasonDependencyReady, "dependency at %s already initialized", nsPath)
	}

	confData, _, res := b.ctxH.Store.GetData(payload.ContainerPath, func(ev store.Event) { b.onDepContainerEvent(nsPath, payload.ContainerPath, ev) })
	if res == store.OK {
		if depDesc, err := descriptor.Unmarshal(confData); err == nil {
			b.svcMgr.SetSrvDescriptor(nsPath, depDesc)
		}
	}

	b.svcMgr.SetConfProcessed(nsPath)
	b.events <- lifecycleEvt{ev: lifecycle.EventServiceAdded}
}

// onDepNamingEvent implements spec §4.9 step 10.
func (b *Broker) onDepNamingEvent(nsPath string, ev store.Event) {
	switch ev.Kind {
	case store.NodeDeleted:
		b.svcMgr.ResetSrvNode(nsPath)
		b.rec.Emit(b.self.ServiceName, events.ReasonDependencyLost, "dependency at %s vanished", nsPath)
		b.events <- lifecycleEvt{ev: lifecycle.EventServiceDeleted}
		b.queryDependency(nsPath) // re-arm the naming watch in case it reappears
	case store.NodeCreated:
		b.fetchDependency(nsPath)
	case store.NodeDataChanged:
		data, _, res := b.ctxH.Store.GetData(nsPath, func(e store.Event) { b.onDepNamingEvent(nsPath, e) })
		if res != store.OK {
			return
		}
		payload, err := b.nsvc.Decode(data)
		if err != nil {
			return
		}
		b.svcMgr.SetSrvStatus(nsPath, payload.Status)
		switch payload.Status {
		case descriptor.StatusInitialized:
			b.rec.Emit(b.self.ServiceName, events.ReasonDependencyReady, "dependency at %s reached initialized", nsPath)
			b.events <- lifecycleEvt{ev: lifecycle.EventServiceInitialized}
		case descriptor.StatusNotRunning:
			b.events <- lifecycleEvt{ev: lifecycle.EventServiceNotRunning}
		case descriptor.StatusNotInitialized:
			b.events <- lifecycleEvt{ev: lifecycle.EventServiceNotInitialized}
		case descriptor.StatusUpdated:
			b.events <- lifecycleEvt{ev: lifecycle.EventServiceUpdated}
		}
	}
}

func (b *Broker) onDepContainerEvent(nsPath, containerPath string, ev store.Event) {
	if ev.Kind != store.NodeDataChanged {
		return
	}
	data, _, res := b.ctxH.Store.GetData(containerPath, func(e store.Event) { b.onDepContainerEvent(nsPath, containerPath, e) })
	if res != store.OK {
		return
	}
	if depDesc, err := descriptor.Unmarshal(data); err == nil {
		b.svcMgr.SetSrvDescriptor(nsPath, depDesc)
	}
}

func (b *Broker) onSessionEvent(ev store.Event) {
	if ev.Type == store.SessionExpired {
		go b.recoverSession()
	}
}

func (b *Broker) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-b.events:
			if err := b.machine.Dispatch(evt.ev, evt.cause); err != nil {
				logging.Warn(subsystem, "dispatch %s failed: %v", evt.ev, err)
			}
			if b.machine.State() == lifecycle.StateDone {
				close(b.finished)
				return
			}
		}
	}
}

var _ lifecycle.Actions = (*Broker)(nil)

// OnEnterInit implements lifecycle.Actions.
func (b *Broker) OnEnterInit() {}

// OnEnterWaitingDeps implements lifecycle.Actions.
func (b *Broker) OnEnterWaitingDeps() {}

// OnEnterStarting implements lifecycle.Actions; runs spec §4.9 step 8.
func (b *Broker) OnEnterStarting() {
	go b.startGroup()
}

func (b *Broker) startGroup() {
	deps := make([]env.Dependency, 0)
	for _, entry := range b.svcMgr.All() {
		if entry.Descriptor != nil {
			deps = append(deps, env.Dependency{ServiceName: entry.ServiceName, Environment: entry.Descriptor.Environment})
		}
	}
	b.env = env.Build(b.self.Environment, deps)
	b.taskExec = tasks.NewExecutor(tasks.RunnerFunc(b.runTask))
	b.processMgr = process.NewManager(b.self.Process, b.self.Environment.Host, b.self.Environment.Port, b.env, nil)
	b.shutdownC = shutdown.New(b.ctxH.Store, b.nsvc, b.processMgr, b.taskExec, b.self.Tasks, b.env, b.cfg.ConfPath)

	b.taskExec.RunPhase(b.ctxH.Ctx(), b.self.Tasks, descriptor.TaskPreStart, b.env)

	if err := b.processMgr.StartGroup(b.ctxH.Ctx()); err != nil {
		logging.Warn(subsystem, "start group failed for %s: %v", b.self.ServiceName, err)
		status := descriptor.StatusNotRunning
		if b.processMgr.MainState() == process.StateRunning || b.processMgr.MainState() == process.StateReady {
			status = descriptor.StatusNotInitialized
		}
		b.rec.Emit(b.self.ServiceName, events.ReasonStartGroupFailed, "start group failed, reporting %s: %v", status, err)
		b.nsvc.UpdateStatus(b.ctxH.Store, b.self.ServiceName, b.cfg.ContainerPath, status)
		return
	}

	b.rec.Emit(b.self.ServiceName, events.ReasonContainerRunning, "start group complete, main resource ready")
	b.nsvc.UpdateStatus(b.ctxH.Store, b.self.ServiceName, b.cfg.ContainerPath, descriptor.StatusInitialized)
	go b.mainMonitor()
	b.events <- lifecycleEvt{ev: lifecycle.EventProcessManagerReady}
}

// runTask is the placeholder task runner; concrete task kinds (schema
// migrations, webhook notifications, etc.) are registered by the
// application, not by Fidelio itself.
func (b *Broker) runTask(ctx context.Context, name string, params map[string]string) error {
	logging.Debug(subsystem, "task %s invoked with %d param(s)", name, len(params))
	return nil
}

// mainMonitor implements spec §4.9 step 9.
func (b *Broker) mainMonitor() {
	ticker := time.NewTicker(MainMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctxH.Ctx().Done():
			return
		case <-b.ctxH.ShutdownLatch():
			return
		case <-ticker.C:
			state := b.processMgr.MainState()
			if state == process.StateExited || state == process.StateFailed {
				if !b.ctxH.IsShuttingDown() {
					b.nsvc.UpdateStatus(b.ctxH.Store, b.self.ServiceName, b.cfg.ContainerPath, descriptor.StatusNotRunning)
				}
				return
			}
		}
	}
}

// OnEnterRunning implements lifecycle.Actions.
func (b *Broker) OnEnterRunning() {}

// OnEnterShuttingDown implements lifecycle.Actions; runs spec §4.11.
// b.ctxH.Shutdown() only latches the shutdown signal (waking mainMonitor);
// it deliberately leaves the context live so the coordinator below can
// still wait on it and run the stop group. The context itself is
// cancelled only once the coordinator has finished, in OnEnterDone.
func (b *Broker) OnEnterShuttingDown() {
	b.ctxH.Shutdown()
	if b.self != nil {
		b.rec.Emit(b.self.ServiceName, events.ReasonShutdownRequested, "shutdown requested, waiting for %d dependent(s)", len(b.self.IsRequiredFrom))
	}
	go func() {
		var isRequiredFrom []string
		if b.self != nil {
			isRequiredFrom = b.self.IsRequiredFrom
		}
		if b.shutdownC == nil {
			b.shutdownC = shutdown.New(b.ctxH.Store, b.nsvc, process.NewManager(descriptor.ProcessSpec{Start: descriptor.ProcessGroup{Main: descriptor.Resource{Name: "unstarted"}}}, "", 0, nil, nil), nil, nil, nil, b.cfg.ConfPath)
		}
		if err := b.shutdownC.Run(b.ctxH.Ctx(), isRequiredFrom); err != nil {
			logging.Warn(subsystem, "shutdown coordinator: %v", err)
		}
		b.events <- lifecycleEvt{ev: lifecycle.EventStopGroupDone}
	}()
}

// OnEnterError implements lifecycle.Actions.
func (b *Broker) OnEnterError(cause error) {
	logging.Error(subsystem, cause, "container %s entered ERROR", b.cfg.ServiceName)
}

// OnEnterDone implements lifecycle.Actions; runs spec §4.11 step 6 ("stop
// the executor") by cancelling the Broker's context now that the shutdown
// coordinator has finished with it.
func (b *Broker) OnEnterDone() {
	logging.Info(subsystem, "container %s shutdown complete", b.cfg.ServiceName)
	b.rec.Emit(b.cfg.ServiceName, events.ReasonShutdownComplete, "shutdown complete")
	b.ctxH.Cancel()
}

// recoverSession implements spec §4.10.
func (b *Broker) recoverSession() {
	logging.Warn(subsystem, "session expired, recovering")
	b.rec.Emit(b.cfg.ServiceName, events.ReasonSessionExpired, "coordination-store session expired")
	st := b.ctxH.Store
	if err := st.Connect(b.ctxH.Ctx(), b.cfg.Hosts, b.cfg.SessionTimeout); err != nil {
		fatal := &FatalError{Op: "session recovery reconnect", Err: err}
		logging.Error(subsystem, fatal, "session recovery: reconnect failed")
		b.events <- lifecycleEvt{ev: lifecycle.EventError, cause: fatal}
		return
	}
	st.Register(b.onSessionEvent)

	if err := b.armShutdownWatch(); err != nil {
		logging.Warn(subsystem, "session recovery: failed to re-arm shutdown watch: %v", err)
	}

	if b.self == nil {
		// Expired before processDescriptor ran: there's no naming node or
		// dependency set to re-publish yet. waitForConfiguration's own
		// Exists/GetData calls against the freshly reconnected store pick
		// up the rest of boot from here.
		logging.Info(subsystem, "session recovered before configuration was processed, nothing else to republish")
		return
	}

	// Republish the status implied by in-memory state: NOT_RUNNING once the
	// main resource has exited or failed, INITIALIZED once the lifecycle
	// machine has reached RUNNING, NOT_INITIALIZED otherwise.
	status := descriptor.StatusNotInitialized
	if b.machine != nil && b.machine.State() == lifecycle.StateRunning {
		status = descriptor.StatusInitialized
	}
	if b.processMgr != nil {
		if ms := b.processMgr.MainState(); ms == process.StateExited || ms == process.StateFailed {
			status = descriptor.StatusNotRunning
		}
	}
	if _, res := b.nsvc.Register(st, b.self.ServiceName, b.cfg.ContainerPath, status); res != store.OK && res != store.NodeExists {
		logging.Warn(subsystem, "session recovery: failed to re-create naming node: %s", res)
	}

	for _, nsPath := range b.nsvc.ResolveAll(b.self.Requires) {
		b.queryDependency(nsPath)
	}
	b.rec.Emit(b.self.ServiceName, events.ReasonSessionRecovered, "session recovered, naming node and watches re-armed")
}
