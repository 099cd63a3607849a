package broker_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlap007/fidelio/internal/broker"
	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/store/memstore"
)

// fakeListener stands in for the container's real main process: the
// Broker execs /bin/sleep as its main resource, but readiness is judged
// purely by a successful TCP dial, so a plain net.Listener on the
// advertised port is enough to satisfy the probe deterministically.
func fakeListener(t *testing.T) (host string, port int, closeFn func()) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	addr := l.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, func() { l.Close() }
}

func seedConfNode(t *testing.T, st *memstore.Store, confPath string, d *descriptor.Container) {
	t.Helper()
	data, err := descriptor.Marshal(d)
	require.NoError(t, err)
	_, res := st.Create(confPath, data, store.Persistent)
	require.Equal(t, store.OK, res)
}

func TestBrokerBootsToRunningWithNoDependencies(t *testing.T) {
	st := memstore.New()
	host, port, closeFn := fakeListener(t)
	defer closeFn()

	desc := &descriptor.Container{
		ServiceName: "cache",
		Type:        descriptor.TypeData,
		Process: descriptor.ProcessSpec{
			Start: descriptor.ProcessGroup{Main: descriptor.Resource{Name: "main", Path: "/bin/sleep", Args: []string{"30"}}},
		},
		Environment: descriptor.ContainerEnvironment{Host: host, Port: port},
	}
	seedConfNode(t, st, "/fidelio/conf/cache", desc)

	cfg := broker.Config{
		SessionTimeout: time.Second,
		ShutdownPath:   "/fidelio/shutdown",
		ConfPath:       "/fidelio/conf/cache",
		ContainerPath:  "/fidelio/containers/Data/cache",
		ServiceName:    "cache",
		NamingRoot:     "/fidelio/naming",
	}
	b := broker.New(cfg, st, "broker-cache-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		data, _, res := st.GetData("/fidelio/naming/cache", nil)
		if res != store.OK {
			return false
		}
		payload, err := descriptor.UnmarshalNamingPayload(data)
		return err == nil && payload.Status == descriptor.StatusInitialized
	}, 3*time.Second, 10*time.Millisecond, "naming node must reach INITIALIZED")

	st.Create("/fidelio/shutdown", []byte("now"), store.Persistent)

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("broker did not shut down after shutdown node appeared")
	}

	_, _, res := st.GetData("/fidelio/containers/Data/cache", nil)
	assert.Equal(t, store.Other, res, "session closed, container node gone with it")
}

func TestBrokerWaitsForDependencyBeforeStarting(t *testing.T) {
	st := memstore.New()
	host, port, closeFn := fakeListener(t)
	defer closeFn()

	depDesc := &descriptor.Container{
		ServiceName: "db",
		Type:        descriptor.TypeData,
		Process:     descriptor.ProcessSpec{Start: descriptor.ProcessGroup{Main: descriptor.Resource{Name: "main", Path: "/bin/sleep", Args: []string{"1"}}}},
	}
	depData, err := descriptor.Marshal(depDesc)
	require.NoError(t, err)
	st.Connect(context.Background(), nil, time.Second)
	_, res := st.Create("/fidelio/containers/Data/db", depData, store.Ephemeral)
	require.Equal(t, store.OK, res)

	desc := &descriptor.Container{
		ServiceName: "webapp",
		Type:        descriptor.TypeWeb,
		Requires:    []string{"db"},
		Process: descriptor.ProcessSpec{
			Start: descriptor.ProcessGroup{Main: descriptor.Resource{Name: "main", Path: "/bin/sleep", Args: []string{"30"}}},
		},
		Environment: descriptor.ContainerEnvironment{Host: host, Port: port},
	}
	seedConfNode(t, st, "/fidelio/conf/webapp", desc)

	cfg := broker.Config{
		SessionTimeout: time.Second,
		ShutdownPath:   "/fidelio/shutdown",
		ConfPath:       "/fidelio/conf/webapp",
		ContainerPath:  "/fidelio/containers/Web/webapp",
		ServiceName:    "webapp",
		NamingRoot:     "/fidelio/naming",
	}
	b := broker.New(cfg, st, "broker-webapp-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		data, _, res := st.GetData("/fidelio/naming/webapp", nil)
		if res != store.OK {
			return false
		}
		payload, err := descriptor.UnmarshalNamingPayload(data)
		return err == nil && payload.Status == descriptor.StatusNotInitialized
	}, time.Second, 10*time.Millisecond, "webapp registers NOT_INITIALIZED while waiting on db")

	_, res = st.Create("/fidelio/naming/db", mustEncodeNaming(t, "/fidelio/containers/Data/db", descriptor.StatusInitialized), store.Ephemeral)
	require.Equal(t, store.OK, res)

	require.Eventually(t, func() bool {
		data, _, res := st.GetData("/fidelio/naming/webapp", nil)
		if res != store.OK {
			return false
		}
		payload, err := descriptor.UnmarshalNamingPayload(data)
		return err == nil && payload.Status == descriptor.StatusInitialized
	}, 3*time.Second, 10*time.Millisecond, "webapp must reach INITIALIZED once db advertises INITIALIZED")

	cancel()
	<-runErr
}

func mustEncodeNaming(t *testing.T, containerPath string, status descriptor.Status) []byte {
	t.Helper()
	data, err := descriptor.MarshalNamingPayload(descriptor.NamingPayload{ContainerPath: containerPath, Status: status})
	require.NoError(t, err)
	return data
}

// TestBrokerShutdownWaitsForDependentBeforeTearingDown exercises spec §8
// end-to-end scenario 1's teardown half: a container with a live reverse
// dependent must not close its session (and so delete its own naming/
// container nodes) until that dependent's naming node is gone. This would
// catch a shutdown path that cancels the Broker's context before handing it
// to the shutdown coordinator, since waitForDependentsGone would then
// return immediately on a pre-cancelled context instead of actually
// waiting.
func TestBrokerShutdownWaitsForDependentBeforeTearingDown(t *testing.T) {
	st := memstore.New()
	host, port, closeFn := fakeListener(t)
	defer closeFn()

	desc := &descriptor.Container{
		ServiceName:    "db",
		Type:           descriptor.TypeData,
		IsRequiredFrom: []string{"webapp"},
		Process: descriptor.ProcessSpec{
			Start: descriptor.ProcessGroup{Main: descriptor.Resource{Name: "main", Path: "/bin/sleep", Args: []string{"30"}}},
		},
		Environment: descriptor.ContainerEnvironment{Host: host, Port: port},
	}
	seedConfNode(t, st, "/fidelio/conf/db", desc)

	cfg := broker.Config{
		SessionTimeout: time.Second,
		ShutdownPath:   "/fidelio/shutdown",
		ConfPath:       "/fidelio/conf/db",
		ContainerPath:  "/fidelio/containers/Data/db",
		ServiceName:    "db",
		NamingRoot:     "/fidelio/naming",
	}
	b := broker.New(cfg, st, "broker-db-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		data, _, res := st.GetData("/fidelio/naming/db", nil)
		if res != store.OK {
			return false
		}
		payload, err := descriptor.UnmarshalNamingPayload(data)
		return err == nil && payload.Status == descriptor.StatusInitialized
	}, 3*time.Second, 10*time.Millisecond, "naming node must reach INITIALIZED")

	// Simulate webapp, the reverse dependent, still being up.
	require.NoError(t, st.Connect(context.Background(), nil, time.Second))
	_, res := st.Create("/fidelio/naming/webapp", []byte("dependent"), store.Ephemeral)
	require.Equal(t, store.OK, res)

	st.Create("/fidelio/shutdown", []byte("now"), store.Persistent)

	select {
	case err := <-runErr:
		t.Fatalf("broker shut down before its dependent vanished, got err=%v", err)
	case <-time.After(300 * time.Millisecond):
	}

	_, _, res = st.GetData("/fidelio/containers/Data/db", nil)
	assert.Equal(t, store.OK, res, "container node must survive while a dependent is still up")

	st.Delete("/fidelio/naming/webapp", -1)

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("broker did not shut down after its dependent vanished")
	}

	_, _, res = st.GetData("/fidelio/containers/Data/db", nil)
	assert.Equal(t, store.Other, res, "session closed, container node gone with it")
}
