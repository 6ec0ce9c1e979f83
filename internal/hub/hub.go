package hub

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/metrics"
)

// ConnectionResolver returns the live connection ids of a user.
type ConnectionResolver interface {
	Connections(userID int64) []string
}

// Hub delivers events to live connections. Delivery is best effort: an
// offline target or a full buffer drops the event for that connection only.
type Hub struct {
	resolver ConnectionResolver
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func New(resolver ConnectionResolver, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		resolver: resolver,
		log:      log,
		clients:  make(map[string]*Client),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	metrics.Connections.Inc()
}

func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	_, ok := h.clients[connID]
	delete(h.clients, connID)
	h.mu.Unlock()
	if ok {
		metrics.Connections.Dec()
	}
}

func (h *Hub) client(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}

// Push sends ev to every live connection of each target and returns how many
// connections accepted it. Targets are deduplicated.
func (h *Hub) Push(ctx context.Context, ev domain.Event, targets ...int64) int {
	if ctx.Err() != nil {
		return 0
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return 0
	}

	reached := 0
	seen := make(map[int64]struct{}, len(targets))
	for _, userID := range targets {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		conns := h.resolver.Connections(userID)
		if len(conns) == 0 {
			metrics.EventsDropped.WithLabelValues("offline").Inc()
			continue
		}
		for _, id := range conns {
			c := h.client(id)
			if c == nil {
				metrics.EventsDropped.WithLabelValues("unknown_connection").Inc()
				continue
			}
			if c.offer(payload) {
				reached++
				metrics.EventsPushed.WithLabelValues(string(ev.Type)).Inc()
				continue
			}
			metrics.EventsDropped.WithLabelValues("slow_consumer").Inc()
			h.log.Warn("dropping slow connection",
				zap.Int64("user_id", userID),
				zap.String("conn_id", id),
				zap.String("type", string(ev.Type)))
			// closing may re-enter the hub through disconnect handling
			go c.Close()
		}
	}
	return reached
}

// PushTo delivers ev to one connection only.
func (h *Hub) PushTo(connID string, ev domain.Event) bool {
	c := h.client(connID)
	if c == nil {
		return false
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return false
	}
	return c.offer(payload)
}
