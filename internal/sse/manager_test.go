package sse

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/metrics"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.EventChan:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case e := <-c.EventChan:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_UserFiltering(t *testing.T) {
	m := NewManager(slog.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	alice, err := m.Connect("alice")
	require.NoError(t, err)
	bob, err := m.Connect("bob")
	require.NoError(t, err)

	m.Emit(NewUnreadCountEvent("alice", 2))
	e := receive(t, alice)
	assert.Equal(t, EventUnreadCount, e.Type)
	assert.Equal(t, UnreadCountEventData{UnreadCount: 2}, e.Data)
	assertNothing(t, bob)

	m.Emit(NewFanMailCreatedEvent(domain.FanMailMessage{ID: "msg-1"}))
	assert.Equal(t, EventFanMailCreated, receive(t, alice).Type)
	assert.Equal(t, EventFanMailCreated, receive(t, bob).Type)

	m.EmitToUser("bob", NewCatalogRefreshedEvent(&domain.Catalog{Version: "2"}))
	assert.Equal(t, EventCatalogRefreshed, receive(t, bob).Type)
	assertNothing(t, alice)
}

func TestManager_ClientGauge(t *testing.T) {
	reg := metrics.New()
	m := NewManager(slog.Default(), reg)

	c, err := m.Connect("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ClientCount())

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())

	_, ok := <-c.Done
	assert.False(t, ok)
}

func TestManager_ShutdownDrainsAndDropsLateEvents(t *testing.T) {
	m := NewManager(slog.Default(), nil)
	c, err := m.Connect("alice")
	require.NoError(t, err)

	// Not started: the event waits in the queue until Shutdown drains it.
	m.Emit(NewReadToggledEvent("alice", "z1", "i1", true))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	e, ok := <-c.EventChan
	require.True(t, ok)
	assert.Equal(t, EventReadToggled, e.Type)

	_, ok = <-c.EventChan
	assert.False(t, ok, "channel closed after shutdown")

	m.Emit(NewHeartbeatEvent())
	assert.NoError(t, m.Shutdown(ctx))
}
