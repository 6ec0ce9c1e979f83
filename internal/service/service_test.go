package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/clock"
	"github.com/fathima-sithara/messaging-core/internal/crypto"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/hub"
	"github.com/fathima-sithara/messaging-core/internal/presence"
	"github.com/fathima-sithara/messaging-core/internal/repository"
)

var start = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type harness struct {
	svc   *Service
	store *repository.MemoryStore
	reg   *presence.Registry
	hub   *hub.Hub
	clk   *clock.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sealer, err := crypto.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	reg := presence.NewRegistry(nil, zap.NewNop())
	h := hub.New(reg, zap.NewNop())
	clk := clock.NewFake(start)
	svc := New(Deps{
		Store:    store,
		Hub:      h,
		Presence: reg,
		Sealer:   sealer,
		Clock:    clk,
		Log:      zap.NewNop(),
	})
	return &harness{svc: svc, store: store, reg: reg, hub: h, clk: clk}
}

func (h *harness) befriend(t *testing.T, a, b int64) {
	t.Helper()
	require.NoError(t, h.svc.Follow(context.Background(), a, b, true))
}

func (h *harness) connect(t *testing.T, user int64, connID string) *hub.Client {
	t.Helper()
	c := hub.NewClient(connID, user, 64, nil)
	h.hub.Register(c)
	h.svc.OnConnect(context.Background(), user, connID)
	return c
}

func (h *harness) send(t *testing.T, from, to int64, tag string) *domain.Message {
	t.Helper()
	m, err := h.svc.Send(context.Background(), SendCommand{
		SenderID:   from,
		ReceiverID: to,
		Envelope:   domain.Envelope{IV: "iv-" + tag, Ciphertext: "ct-" + tag, AuthTag: "tag-" + tag},
	})
	require.NoError(t, err)
	return m
}

func drain(t *testing.T, c *hub.Client) []domain.Event {
	t.Helper()
	var out []domain.Event
	for {
		select {
		case b := <-c.Send():
			var ev domain.Event
			require.NoError(t, json.Unmarshal(b, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []domain.Event) []domain.EventType {
	out := make([]domain.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func decodePayload(t *testing.T, ev domain.Event, v any) {
	t.Helper()
	b, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}
