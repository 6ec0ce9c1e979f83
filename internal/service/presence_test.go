package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

func TestPresenceEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.befriend(t, 1, 2)
	h.befriend(t, 3, 2)

	bob := h.connect(t, 2, "bob")
	evs := drain(t, bob)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventOnlineFriendsSnapshot, evs[0].Type)
	var snap domain.SnapshotPayload
	decodePayload(t, evs[0], &snap)
	assert.Empty(t, snap.UserIDs)

	alice := h.connect(t, 1, "alice-1")
	evs = drain(t, alice)
	require.Len(t, evs, 1)
	decodePayload(t, evs[0], &snap)
	assert.Equal(t, []int64{2}, snap.UserIDs)

	evs = drain(t, bob)
	require.Equal(t, []domain.EventType{domain.EventUserOnline}, eventTypes(evs))
	var p domain.PresencePayload
	decodePayload(t, evs[0], &p)
	assert.EqualValues(t, 1, p.UserID)

	// a second connection is not a transition
	second := h.connect(t, 1, "alice-2")
	assert.Len(t, drain(t, second), 1)
	assert.Empty(t, drain(t, bob))

	h.svc.OnDisconnect(ctx, 1, "alice-1")
	assert.Empty(t, drain(t, bob))
	h.svc.OnDisconnect(ctx, 1, "alice-2")
	h.svc.OnDisconnect(ctx, 1, "alice-2")
	assert.Equal(t, []domain.EventType{domain.EventUserOffline}, eventTypes(drain(t, bob)))

	online, err := h.svc.OnlineContacts(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, online)
}
