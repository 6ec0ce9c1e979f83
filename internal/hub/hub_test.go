package hub

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/presence"
)

func connect(t *testing.T, h *Hub, reg *presence.Registry, user int64, id string, buf int, onClose func()) *Client {
	t.Helper()
	c := NewClient(id, user, buf, onClose)
	h.Register(c)
	reg.Connect(context.Background(), user, id)
	return c
}

func recv(t *testing.T, c *Client) domain.Event {
	t.Helper()
	select {
	case b := <-c.Send():
		var ev domain.Event
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return domain.Event{}
}

func TestPushFansOutToEveryConnection(t *testing.T) {
	reg := presence.NewRegistry(nil, nil)
	h := New(reg, nil)
	a1 := connect(t, h, reg, 1, "a1", 4, nil)
	a2 := connect(t, h, reg, 1, "a2", 4, nil)
	b := connect(t, h, reg, 2, "b", 4, nil)

	ev := domain.Event{Type: domain.EventUserOnline, Payload: domain.PresencePayload{UserID: 3}}
	n := h.Push(context.Background(), ev, 1, 2, 1)
	assert.Equal(t, 3, n)

	for _, c := range []*Client{a1, a2, b} {
		assert.Equal(t, domain.EventUserOnline, recv(t, c).Type)
	}
}

func TestPushToOfflineUserIsDropped(t *testing.T) {
	reg := presence.NewRegistry(nil, nil)
	h := New(reg, nil)
	assert.Equal(t, 0, h.Push(context.Background(), domain.Event{Type: domain.EventMessageReceived}, 42))
}

func TestSlowConnectionIsDroppedAndClosedOnce(t *testing.T) {
	reg := presence.NewRegistry(nil, nil)
	h := New(reg, nil)

	var closes atomic.Int32
	slow := connect(t, h, reg, 1, "slow", 1, func() { closes.Add(1) })
	fast := connect(t, h, reg, 1, "fast", 8, nil)

	ctx := context.Background()
	ev := domain.Event{Type: domain.EventTypingStarted}
	assert.Equal(t, 2, h.Push(ctx, ev, 1))
	assert.Equal(t, 1, h.Push(ctx, ev, 1), "slow buffer is full")

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow client was not closed")
	}
	slow.Close()
	assert.EqualValues(t, 1, closes.Load())

	assert.Equal(t, 1, h.Push(ctx, ev, 1), "closed client no longer receives")
	assert.Len(t, fast.Send(), 3)
}

func TestPushToSingleConnection(t *testing.T) {
	reg := presence.NewRegistry(nil, nil)
	h := New(reg, nil)
	c := connect(t, h, reg, 5, "c", 2, nil)

	assert.True(t, h.PushTo("c", domain.Event{Type: domain.EventError}))
	assert.False(t, h.PushTo("missing", domain.Event{Type: domain.EventError}))
	assert.Equal(t, domain.EventError, recv(t, c).Type)

	h.Unregister("c")
	assert.False(t, h.PushTo("c", domain.Event{Type: domain.EventError}))
}
