package master_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/master"
	"github.com/denlap007/fidelio/internal/runtime/fake"
	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/store/memstore"
)

func webContainer(name string, requires ...string) *descriptor.Container {
	return &descriptor.Container{
		ServiceName: name,
		Type:        descriptor.TypeWeb,
		Requires:    requires,
		Process: descriptor.ProcessSpec{
			Start: descriptor.ProcessGroup{
				Main: descriptor.Resource{Name: "main", Path: "/bin/true", IsMain: true},
			},
		},
	}
}

func TestLaunchCreatesConfNodesAndStartsContainers(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	rt := fake.New()
	m := master.New(master.Config{Store: st, Runtime: rt})

	descs := []*descriptor.Container{
		webContainer("db"),
		webContainer("webapp", "db"),
	}

	require.NoError(t, m.Launch(ctx, descs))

	data, _, res := st.GetData("/fidelio/conf/db", nil)
	require.Equal(t, store.OK, res)
	got, err := descriptor.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "db", got.ServiceName)

	list, err := rt.ListContainers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, c := range list {
		assert.True(t, c.Running, "container %s should be started", c.Name)
	}
}

func TestLaunchRefusesOnDuplicateServiceName(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	rt := fake.New()
	m := master.New(master.Config{Store: st, Runtime: rt})

	descs := []*descriptor.Container{
		webContainer("db"),
		webContainer("db"),
	}

	err := m.Launch(ctx, descs)
	require.Error(t, err)

	list, _ := rt.ListContainers(ctx)
	assert.Empty(t, list, "no containers should be launched when analysis fails")
}

func TestLaunchRefusesOnCircularDependency(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	rt := fake.New()
	m := master.New(master.Config{Store: st, Runtime: rt})

	descs := []*descriptor.Container{
		webContainer("a", "b"),
		webContainer("b", "a"),
	}

	err := m.Launch(ctx, descs)
	require.Error(t, err)

	list, _ := rt.ListContainers(ctx)
	assert.Empty(t, list)
}

func TestShutdownCreatesShutdownNode(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.Connect(ctx, nil, 0))
	rt := fake.New()
	m := master.New(master.Config{Store: st, Runtime: rt})

	require.NoError(t, m.Shutdown(ctx))
	exists, _, res := st.Exists("/fidelio/shutdown", nil)
	require.Equal(t, store.OK, res)
	assert.True(t, exists)
}

func TestStopStopsEveryKnownContainer(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	rt := fake.New()
	m := master.New(master.Config{Store: st, Runtime: rt})

	require.NoError(t, m.Launch(ctx, []*descriptor.Container{webContainer("cache")}))
	require.NoError(t, m.Stop(ctx))

	list, err := rt.ListContainers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Running)
}
