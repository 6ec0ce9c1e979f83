package presence

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestRedisMirror(t *testing.T) {
	if testing.Short() {
		t.Skip("redis integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	mirror := NewRedisMirror(client, "test", time.Minute)
	sub := client.Subscribe(ctx, mirror.Channel())
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	reg := NewRegistry(mirror, zap.NewNop())
	require.True(t, reg.Connect(ctx, 7, "c1"))
	reg.Connect(ctx, 7, "c2")

	status, err := mirror.Status(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "online", status)
	members, err := client.SMembers(ctx, "test:conn:7").Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, members)

	reg.Disconnect(ctx, 7, "c1")
	status, err = mirror.Status(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "online", status)

	require.True(t, reg.Disconnect(ctx, 7, "c2"))
	status, err = mirror.Status(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "offline", status)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"status":"online"`)

	none, err := mirror.Status(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)

	short := NewRedisMirror(client, "ttl", 2*time.Second)
	live := NewRegistry(short, zap.NewNop())
	require.True(t, live.Connect(ctx, 8, "c1"))
	require.NoError(t, client.Expire(ctx, "ttl:presence:8", 200*time.Millisecond).Err())
	require.NoError(t, client.Expire(ctx, "ttl:conn:8", 200*time.Millisecond).Err())
	live.Touch(ctx, 8)
	time.Sleep(400 * time.Millisecond)

	status, err = short.Status(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "online", status)
	ttl, err := client.PTTL(ctx, "ttl:conn:8").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Second)
}
