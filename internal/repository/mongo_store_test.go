package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/config"
)

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := NewMongoClient(ctx, config.MongoConfig{URI: uri, ConnectTimeoutSec: 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	var n atomic.Int64
	runStoreContract(t, func(t *testing.T) Store {
		cfg := config.MongoConfig{
			Database:         fmt.Sprintf("messaging_test_%d", n.Add(1)),
			OpTimeoutSeconds: 5,
			MaxRetries:       2,
		}
		s, err := NewMongoStore(ctx, client, cfg, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() {
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.db.Drop(cctx)
		})
		return s
	})
}
