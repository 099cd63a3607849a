package shutdown_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/naming"
	"github.com/denlap007/fidelio/internal/process"
	"github.com/denlap007/fidelio/internal/shutdown"
	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/store/memstore"
	"github.com/denlap007/fidelio/internal/tasks"
)

func connectedStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.Connect(context.Background(), nil, time.Second))
	return s
}

func TestRunWaitsForDependentsBeforeStoppingGroup(t *testing.T) {
	st := connectedStore(t)
	nsvc := naming.New("/fidelio/naming")
	st.Create("/fidelio/naming/webapp", []byte("dependent"), store.Ephemeral)

	st.Create("/fidelio/conf/db", []byte("conf"), store.Persistent)

	spec := descriptor.ProcessSpec{
		Stop: descriptor.ProcessGroup{Main: descriptor.Resource{Name: "main"}},
	}
	spec.Start.Main = descriptor.Resource{Name: "main", Path: "/bin/true"}
	pm := process.NewManager(spec, "127.0.0.1", 0, nil, nil)

	c := shutdown.New(st, nsvc, pm, tasks.NewExecutor(tasks.RunnerFunc(func(ctx context.Context, name string, params map[string]string) error { return nil })), nil, nil, "/fidelio/conf/db")

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background(), []string{"webapp"}) }()

	select {
	case <-runDone:
		t.Fatal("shutdown must not complete while a dependent still exists")
	case <-time.After(100 * time.Millisecond):
	}

	st.Delete("/fidelio/naming/webapp", -1)

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown did not complete after dependent vanished")
	}

	_, _, res := st.GetData("/fidelio/conf/db", nil)
	assert.Equal(t, store.Other, res, "session is closed after shutdown completes")
}

func TestRunWithNoDependentsProceedsImmediately(t *testing.T) {
	st := connectedStore(t)
	nsvc := naming.New("/fidelio/naming")
	st.Create("/fidelio/conf/cache", []byte("conf"), store.Persistent)

	spec := descriptor.ProcessSpec{}
	spec.Start.Main = descriptor.Resource{Name: "main", Path: "/bin/true"}
	pm := process.NewManager(spec, "127.0.0.1", 0, nil, nil)

	c := shutdown.New(st, nsvc, pm, nil, nil, nil, "/fidelio/conf/cache")

	err := c.Run(context.Background(), nil)
	require.NoError(t, err)

	_, _, res := st.GetData("/fidelio/conf/cache", nil)
	assert.Equal(t, store.Other, res)
}

func TestRunIsIdempotent(t *testing.T) {
	st := connectedStore(t)
	nsvc := naming.New("/fidelio/naming")
	st.Create("/fidelio/conf/cache", []byte("conf"), store.Persistent)

	spec := descriptor.ProcessSpec{}
	spec.Start.Main = descriptor.Resource{Name: "main", Path: "/bin/true"}
	pm := process.NewManager(spec, "127.0.0.1", 0, nil, nil)

	c := shutdown.New(st, nsvc, pm, nil, nil, nil, "/fidelio/conf/cache")

	require.NoError(t, c.Run(context.Background(), nil))
	require.NoError(t, c.Run(context.Background(), nil), "second call must be a no-op, not re-delete/re-close")
}
