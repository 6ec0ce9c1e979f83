package presence

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/metrics"
)

// Mirror receives presence transitions so other instances can observe them.
// Calls are best effort.
type Mirror interface {
	AddConnection(ctx context.Context, userID int64, connID string) error
	RemoveConnection(ctx context.Context, userID int64, connID string, offline bool) error
	Refresh(ctx context.Context, userID int64) error
}

type entry struct {
	mu    sync.Mutex
	conns map[string]struct{}
	// dead is set once the entry has been removed from the map; a Connect
	// that observes it must retry with a fresh entry.
	dead bool
}

// Registry maps a user to the set of their live connection ids. Each user has
// its own lock, so connects for different users never contend.
type Registry struct {
	users  sync.Map // int64 -> *entry
	mirror Mirror
	log    *zap.Logger
}

func NewRegistry(mirror Mirror, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{mirror: mirror, log: log}
}

// Connect adds connID to userID's set. It reports true when the user had no
// connection before, i.e. they just came online.
func (r *Registry) Connect(ctx context.Context, userID int64, connID string) bool {
	for {
		v, _ := r.users.LoadOrStore(userID, &entry{conns: make(map[string]struct{})})
		e := v.(*entry)

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		_, dup := e.conns[connID]
		wasOffline := len(e.conns) == 0
		e.conns[connID] = struct{}{}
		e.mu.Unlock()

		if dup {
			return false
		}
		if wasOffline {
			metrics.OnlineUsers.Inc()
		}
		if r.mirror != nil {
			if err := r.mirror.AddConnection(ctx, userID, connID); err != nil {
				r.log.Warn("presence mirror add failed", zap.Int64("user_id", userID), zap.Error(err))
			}
		}
		return wasOffline
	}
}

// Disconnect removes connID. It is idempotent and reports true only on the
// call that removed the user's last connection.
func (r *Registry) Disconnect(ctx context.Context, userID int64, connID string) bool {
	v, ok := r.users.Load(userID)
	if !ok {
		return false
	}
	e := v.(*entry)

	e.mu.Lock()
	if _, ok := e.conns[connID]; !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.conns, connID)
	offline := len(e.conns) == 0
	if offline {
		e.dead = true
		r.users.CompareAndDelete(userID, e)
	}
	e.mu.Unlock()

	if offline {
		metrics.OnlineUsers.Dec()
	}
	if r.mirror != nil {
		if err := r.mirror.RemoveConnection(ctx, userID, connID, offline); err != nil {
			r.log.Warn("presence mirror remove failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return offline
}

// Touch keeps a live user's mirrored state from expiring. Offline users are
// left alone so a late heartbeat cannot resurrect them.
func (r *Registry) Touch(ctx context.Context, userID int64) {
	if r.mirror == nil || !r.IsOnline(userID) {
		return
	}
	if err := r.mirror.Refresh(ctx, userID); err != nil {
		r.log.Warn("presence mirror refresh failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (r *Registry) IsOnline(userID int64) bool {
	v, ok := r.users.Load(userID)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.dead && len(e.conns) > 0
}

// Connections returns a snapshot of userID's connection ids.
func (r *Registry) Connections(userID int64) []string {
	v, ok := r.users.Load(userID)
	if !ok {
		return nil
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return nil
	}
	out := make([]string, 0, len(e.conns))
	for id := range e.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OnlineFriends filters userID's candidate contacts down to those currently
// online.
func (r *Registry) OnlineFriends(userID int64, candidates []int64) []int64 {
	out := []int64{}
	for _, id := range candidates {
		if id != userID && r.IsOnline(id) {
			out = append(out, id)
		}
	}
	return out
}
