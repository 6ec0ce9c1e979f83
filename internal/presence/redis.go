package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror publishes presence into Redis so other instances can see it.
// Keys:
//   - <prefix>:conn:<user>     set of connection ids
//   - <prefix>:presence:<user> {"status","last_seen"}
//
// Transitions are also published on <prefix>:presence.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type presenceState struct {
	UserID   int64  `json:"user_id"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewRedisMirror(client *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) connKey(userID int64) string {
	return fmt.Sprintf("%s:conn:%d", m.prefix, userID)
}

func (m *RedisMirror) presenceKey(userID int64) string {
	return fmt.Sprintf("%s:presence:%d", m.prefix, userID)
}

func (m *RedisMirror) Channel() string { return m.prefix + ":presence" }

func (m *RedisMirror) AddConnection(ctx context.Context, userID int64, connID string) error {
	state, _ := json.Marshal(presenceState{UserID: userID, Status: "online", LastSeen: time.Now().Unix()})
	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, m.connKey(userID), connID)
	pipe.Expire(ctx, m.connKey(userID), m.ttl)
	pipe.Set(ctx, m.presenceKey(userID), state, m.ttl)
	pipe.Publish(ctx, m.Channel(), state)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) RemoveConnection(ctx context.Context, userID int64, connID string, offline bool) error {
	if err := m.client.SRem(ctx, m.connKey(userID), connID).Err(); err != nil {
		return err
	}
	if !offline {
		return nil
	}
	state, _ := json.Marshal(presenceState{UserID: userID, Status: "offline", LastSeen: time.Now().Unix()})
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.presenceKey(userID), state, 0)
	pipe.Publish(ctx, m.Channel(), state)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh extends the TTL on userID's keys. Connections that stay up longer
// than the TTL call it on every heartbeat.
func (m *RedisMirror) Refresh(ctx context.Context, userID int64) error {
	pipe := m.client.TxPipeline()
	pipe.Expire(ctx, m.connKey(userID), m.ttl)
	pipe.Expire(ctx, m.presenceKey(userID), m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Status returns the last mirrored status for userID ("online", "offline")
// or "" when nothing is recorded.
func (m *RedisMirror) Status(ctx context.Context, userID int64) (string, error) {
	b, err := m.client.Get(ctx, m.presenceKey(userID)).Bytes()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var st presenceState
	if err := json.Unmarshal(b, &st); err != nil {
		return "", err
	}
	return st.Status, nil
}
