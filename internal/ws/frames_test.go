package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/crypto"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/hub"
	"github.com/fathima-sithara/messaging-core/internal/presence"
	"github.com/fathima-sithara/messaging-core/internal/repository"
	"github.com/fathima-sithara/messaging-core/internal/service"
)

type fixture struct {
	srv *Server
	svc *service.Service
	hub *hub.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sealer, err := crypto.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	reg := presence.NewRegistry(nil, zap.NewNop())
	h := hub.New(reg, zap.NewNop())
	svc := service.New(service.Deps{
		Store:    repository.NewMemoryStore(),
		Hub:      h,
		Presence: reg,
		Sealer:   sealer,
		Log:      zap.NewNop(),
	})
	srv := NewServer(svc, h, Options{RequestTimeout: time.Second, SendBuffer: 16, RatePerSecond: 10}, zap.NewNop())
	return &fixture{srv: srv, svc: svc, hub: h}
}

func (f *fixture) connect(t *testing.T, user int64, connID string) *hub.Client {
	t.Helper()
	c := hub.NewClient(connID, user, 16, nil)
	f.hub.Register(c)
	f.svc.OnConnect(context.Background(), user, connID)
	<-c.Send() // presence snapshot
	return c
}

func (f *fixture) frame(user int64, connID, typ string, payload any) {
	b, _ := json.Marshal(map[string]any{"type": typ, "ref": "r1", "payload": payload})
	f.srv.handleFrame(context.Background(), user, connID, b)
}

func next(t *testing.T, c *hub.Client) domain.Event {
	t.Helper()
	select {
	case b := <-c.Send():
		var ev domain.Event
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	default:
		t.Fatal("no event queued")
		return domain.Event{}
	}
}

func errorPayload(t *testing.T, ev domain.Event) domain.ErrorPayload {
	t.Helper()
	require.Equal(t, domain.EventError, ev.Type)
	b, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	var p domain.ErrorPayload
	require.NoError(t, json.Unmarshal(b, &p))
	return p
}

func TestSendFrameDeliversToBoth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Follow(context.Background(), 1, 2, true))
	alice := f.connect(t, 1, "alice")
	bob := f.connect(t, 2, "bob")
	<-alice.Send() // bob came online

	f.frame(1, "alice", TypeSend, map[string]any{"receiver_id": 2, "iv": "i", "ciphertext": "c", "auth_tag": "t"})

	ev := next(t, bob)
	assert.Equal(t, domain.EventMessageReceived, ev.Type)
	ev = next(t, alice)
	assert.Equal(t, domain.EventMessageReceived, ev.Type)

	f.frame(2, "bob", TypeTypingStart, map[string]any{"peer_id": 1})
	assert.Equal(t, domain.EventTypingStarted, next(t, alice).Type)

	f.frame(2, "bob", TypeMarkRead, map[string]any{"peer_id": 1})
	assert.Equal(t, domain.EventMessagesRead, next(t, alice).Type)

	f.frame(2, "bob", TypeReact, map[string]any{"message_id": 1, "emoji": "👍"})
	assert.Equal(t, domain.EventMessageReacted, next(t, alice).Type)
	assert.Equal(t, domain.EventMessageReacted, next(t, bob).Type)
}

func TestFrameErrorsGoToTheCallingConnectionOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, 1, "alice")
	other := f.connect(t, 1, "alice-phone")

	f.frame(1, "alice", TypeSend, map[string]any{"receiver_id": 2, "iv": "i", "ciphertext": "c", "auth_tag": "t"})
	p := errorPayload(t, next(t, alice))
	assert.Equal(t, "PERMISSION_DENIED", p.Code)
	assert.Equal(t, "r1", p.Ref)

	select {
	case <-other.Send():
		t.Fatal("error leaked to another connection")
	default:
	}
}

func TestMalformedFrames(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, 1, "alice")

	f.srv.handleFrame(context.Background(), 1, "alice", []byte("{not json"))
	assert.Equal(t, "INVALID_ARGUMENT", errorPayload(t, next(t, alice)).Code)

	f.frame(1, "alice", "dance", map[string]any{})
	assert.Equal(t, "INVALID_ARGUMENT", errorPayload(t, next(t, alice)).Code)

	f.frame(1, "alice", TypeEdit, nil)
	assert.Equal(t, "INVALID_ARGUMENT", errorPayload(t, next(t, alice)).Code)

	f.frame(1, "alice", TypeUnreact, map[string]any{"message_id": 99})
	assert.Equal(t, "NOT_FOUND", errorPayload(t, next(t, alice)).Code)

	// typing and mark_read both name the other side with peer_id
	f.frame(1, "alice", TypeTypingStart, map[string]any{"to_user_id": 2})
	assert.Equal(t, "INVALID_ARGUMENT", errorPayload(t, next(t, alice)).Code)
	f.frame(1, "alice", TypeMarkRead, map[string]any{"peer_id": 1})
	assert.Equal(t, "INVALID_ARGUMENT", errorPayload(t, next(t, alice)).Code)
}
