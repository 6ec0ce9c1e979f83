package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/clock"
	"github.com/fathima-sithara/messaging-core/internal/crypto"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/repository"
)

// Dispatcher pushes events to live connections.
type Dispatcher interface {
	Push(ctx context.Context, ev domain.Event, targets ...int64) int
	PushTo(connID string, ev domain.Event) bool
}

type PresenceTracker interface {
	Connect(ctx context.Context, userID int64, connID string) bool
	Disconnect(ctx context.Context, userID int64, connID string) bool
	Touch(ctx context.Context, userID int64)
	IsOnline(userID int64) bool
	OnlineFriends(userID int64, candidates []int64) []int64
}

// EventPublisher hands committed events to a durable sink. It never fails the
// caller.
type EventPublisher interface {
	Publish(ctx context.Context, key string, ev domain.Event, targets ...int64)
}

type Deps struct {
	Store    repository.Store
	Hub      Dispatcher
	Presence PresenceTracker
	Events   EventPublisher
	Sealer   *crypto.Sealer
	Clock    clock.Clock
	Log      *zap.Logger
}

// Service is the messaging core. Both the REST and websocket adapters call
// into it; neither carries business rules of its own.
type Service struct {
	store    repository.Store
	hub      Dispatcher
	presence PresenceTracker
	events   EventPublisher
	sealer   *crypto.Sealer
	clock    clock.Clock
	log      *zap.Logger

	convLocks *keyedMutex[domain.Pair]
	userLocks *keyedMutex[int64]
	newID     func() string
}

func New(d Deps) *Service {
	s := &Service{
		store:     d.Store,
		hub:       d.Hub,
		presence:  d.Presence,
		events:    d.Events,
		sealer:    d.Sealer,
		clock:     d.Clock,
		log:       d.Log,
		convLocks: newKeyedMutex[domain.Pair](),
		userLocks: newKeyedMutex[int64](),
		newID:     uuid.NewString,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	return s
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, domain.Event, ...int64) {}

func conversationKey(p domain.Pair) string {
	return fmt.Sprintf("%d-%d", p.Low, p.High)
}

func (s *Service) event(t domain.EventType, payload any) domain.Event {
	return domain.Event{Type: t, Payload: payload, At: s.clock.Now()}
}

// commit pushes a committed conversation event to targets and forwards it to
// the durable sink. Callers hold the conversation lock so events for one
// conversation leave in commit order.
func (s *Service) commit(ctx context.Context, pair domain.Pair, ev domain.Event, targets ...int64) int {
	n := s.hub.Push(ctx, ev, targets...)
	s.events.Publish(ctx, conversationKey(pair), ev, targets...)
	return n
}
