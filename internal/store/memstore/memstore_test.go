package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/store/memstore"
)

func connected(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.Connect(context.Background(), nil, time.Second))
	return s
}

func TestCreateExistsGetData(t *testing.T) {
	s := connected(t)

	_, res := s.Create("/conf/web1", []byte("payload"), store.Persistent)
	require.Equal(t, store.OK, res)

	exists, _, res := s.Exists("/conf/web1", nil)
	require.Equal(t, store.OK, res)
	assert.True(t, exists)

	data, _, res := s.GetData("/conf/web1", nil)
	require.Equal(t, store.OK, res)
	assert.Equal(t, "payload", string(data))
}

func TestCreateDuplicateIsNodeExists(t *testing.T) {
	s := connected(t)
	s.Create("/conf/web1", []byte("a"), store.Persistent)

	_, res := s.Create("/conf/web1", []byte("b"), store.Persistent)
	assert.Equal(t, store.NodeExists, res)
}

func TestCheckAndCreateIdempotence(t *testing.T) {
	s := connected(t)
	owner := []byte("broker-id-1")

	res := s.CheckAndCreate("/containers/Web/web1", owner, store.Ephemeral, owner)
	require.Equal(t, store.OK, res)

	// Same owner retrying after a perceived ConnectionLoss: no-op.
	res = s.CheckAndCreate("/containers/Web/web1", owner, store.Ephemeral, owner)
	assert.Equal(t, store.OK, res)

	// A foreign owner refuses.
	res = s.CheckAndCreate("/containers/Web/web1", owner, store.Ephemeral, []byte("broker-id-2"))
	assert.Equal(t, store.NodeExists, res)
}

func TestExistsWatchFiresOnCreate(t *testing.T) {
	s := connected(t)
	fired := make(chan store.Event, 1)

	exists, _, res := s.Exists("/conf/web1", func(ev store.Event) { fired <- ev })
	require.Equal(t, store.OK, res)
	require.False(t, exists)

	s.Create("/conf/web1", []byte("x"), store.Persistent)

	select {
	case ev := <-fired:
		assert.Equal(t, store.NodeCreated, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}
}

func TestWatchesAreOneShot(t *testing.T) {
	s := connected(t)
	s.Create("/naming/dep", []byte("v0"), store.Persistent)

	fired := make(chan store.Event, 4)
	_, _, _ = s.GetData("/naming/dep", func(ev store.Event) { fired <- ev })

	s.SetData("/naming/dep", []byte("v1"), -1)
	s.SetData("/naming/dep", []byte("v2"), -1)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watch did not fire once")
	}
	select {
	case ev := <-fired:
		t.Fatalf("watch fired a second time without being re-armed: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseDeletesEphemeralNodes(t *testing.T) {
	s := connected(t)
	s.Create("/conf/web1", []byte("persistent"), store.Persistent)
	s.Create("/naming/web1", []byte("ephemeral"), store.Ephemeral)

	fired := make(chan store.Event, 1)
	s.Exists("/naming/web1", func(ev store.Event) { fired <- ev })

	require.NoError(t, s.Close())

	select {
	case ev := <-fired:
		assert.Equal(t, store.NodeDeleted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("ephemeral delete watch did not fire")
	}

	exists, _, res := s.Exists("/conf/web1", nil)
	// The store itself is disconnected after Close, but the persistent node's
	// existence (had we reconnected a fresh session) would be unaffected;
	// here we only assert the call surfaces the disconnected state cleanly.
	assert.Equal(t, store.Other, res)
	assert.False(t, exists)
}

func TestExpireSessionNotifiesRegisteredWatchers(t *testing.T) {
	s := connected(t)
	s.Create("/naming/web1", []byte("x"), store.Ephemeral)

	sessionEvents := make(chan store.Event, 1)
	s.Register(func(ev store.Event) { sessionEvents <- ev })

	deleted := make(chan store.Event, 1)
	s.GetData("/naming/web1", func(ev store.Event) { deleted <- ev })

	s.ExpireSession()

	select {
	case ev := <-sessionEvents:
		assert.Equal(t, store.SessionExpired, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("session watcher was not notified")
	}
	select {
	case ev := <-deleted:
		assert.Equal(t, store.NodeDeleted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("ephemeral node watch did not fire on expiry")
	}
}
