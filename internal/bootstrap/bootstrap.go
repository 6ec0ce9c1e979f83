package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/api"
	"github.com/fathima-sithara/messaging-core/internal/auth"
	"github.com/fathima-sithara/messaging-core/internal/config"
	"github.com/fathima-sithara/messaging-core/internal/crypto"
	"github.com/fathima-sithara/messaging-core/internal/events"
	"github.com/fathima-sithara/messaging-core/internal/hub"
	"github.com/fathima-sithara/messaging-core/internal/kafka"
	"github.com/fathima-sithara/messaging-core/internal/metrics"
	"github.com/fathima-sithara/messaging-core/internal/middleware"
	"github.com/fathima-sithara/messaging-core/internal/presence"
	"github.com/fathima-sithara/messaging-core/internal/repository"
	"github.com/fathima-sithara/messaging-core/internal/service"
	"github.com/fathima-sithara/messaging-core/internal/utils"
	"github.com/fathima-sithara/messaging-core/internal/ws"
)

type AppContext struct {
	Config    *config.Config
	Logger    *zap.Logger
	Mongo     *mongo.Client
	Redis     *redis.Client
	Publisher *events.Publisher
	Service   *service.Service
	App       *fiber.App
}

type CleanupFn func(context.Context)

// Init builds every component from the config at path. The returned cleanup
// releases them in reverse order and is safe to call after a partial Init.
func Init(path string) (*AppContext, CleanupFn, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLogger(cfg.App.Development())
	if err != nil {
		return nil, nil, errors.Wrap(err, "build logger")
	}
	app := &AppContext{Config: cfg, Logger: logger}
	metrics.Init()

	var closers []func(context.Context)
	cleanup := func(ctx context.Context) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](ctx)
		}
		if err := logger.Sync(); err != nil {
			log.Printf("logger sync: %v", err)
		}
	}
	fail := func(err error) (*AppContext, CleanupFn, error) {
		cleanup(context.Background())
		return nil, nil, err
	}

	logger.Info("starting", zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env),
		zap.String("store", cfg.Store.Driver), zap.String("sink", cfg.Events.Sink))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, app, &closers)
	if err != nil {
		return fail(err)
	}

	sealer, err := crypto.NewSealer([]byte(cfg.Vault.MasterKey))
	if err != nil {
		return fail(errors.Wrap(err, "vault sealer"))
	}

	var mirror presence.Mirror
	var limiter fiber.Handler
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fail(errors.Wrap(err, "redis ping"))
		}
		app.Redis = rdb
		closers = append(closers, func(context.Context) { _ = rdb.Close() })

		mirror = presence.NewRedisMirror(rdb, cfg.Redis.Prefix, 4*cfg.PingInterval)
		limiter = middleware.NewRateLimiter(rdb, cfg.Redis.Prefix, cfg.Redis.RateLimit,
			time.Duration(cfg.Redis.RateWindowSecond)*time.Second, logger).Handler(middleware.ByIdentityOrIP)
	} else {
		lctx, lcancel := context.WithCancel(context.Background())
		closers = append(closers, func(context.Context) { lcancel() })
		limiter = middleware.NewLocalRateLimiter(lctx, cfg.Redis.RateLimit,
			time.Duration(cfg.Redis.RateWindowSecond)*time.Second, logger).Handler(middleware.ByIdentityOrIP)
	}

	sink, err := openSink(cfg)
	if err != nil {
		return fail(err)
	}
	if sink != nil {
		app.Publisher = events.NewPublisher(sink, events.BreakerSettings{
			MaxFailures: cfg.Events.BreakerMaxFailures,
			OpenTimeout: time.Duration(cfg.Events.BreakerTimeoutSec) * time.Second,
		}, time.Duration(cfg.Events.PublishTimeoutSec)*time.Second, logger)
		closers = append(closers, func(context.Context) { _ = app.Publisher.Close() })
	}

	registry := presence.NewRegistry(mirror, logger)
	dispatcher := hub.New(registry, logger)
	deps := service.Deps{
		Store:    store,
		Hub:      dispatcher,
		Presence: registry,
		Sealer:   sealer,
		Log:      logger,
	}
	if app.Publisher != nil {
		deps.Events = app.Publisher
	}
	app.Service = service.New(deps)

	if n, err := app.Service.SeedRatchetMaterial(ctx); err != nil {
		return fail(errors.Wrap(err, "seed ratchet material"))
	} else if n > 0 {
		logger.Info("ratchet material reconciled", zap.Int("entries", n))
	}

	jv, err := auth.NewJWTValidator(cfg.JWT.Algorithm, cfg.JWT.Secret, cfg.JWT.PublicKeyPath, cfg.JWT.Issuer)
	if err != nil {
		return fail(errors.Wrap(err, "jwt validator"))
	}
	realtime := ws.NewServer(app.Service, dispatcher, ws.Options{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		RequestTimeout: cfg.RequestTimeout,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendBuffer:     cfg.WS.SendBuffer,
		RatePerSecond:  cfg.WS.RatePerSecond,
	}, logger)

	app.App = api.NewServer(app.Service, api.Options{
		AppName:        cfg.App.Name,
		Validator:      jv,
		RateLimit:      limiter,
		Realtime:       realtime,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	return app, cleanup, nil
}

func openStore(ctx context.Context, app *AppContext, closers *[]func(context.Context)) (repository.Store, error) {
	cfg := app.Config
	if cfg.Store.Driver != "mongo" {
		return repository.NewMemoryStore(), nil
	}
	mc, err := repository.NewMongoClient(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	app.Mongo = mc
	*closers = append(*closers, func(ctx context.Context) { _ = mc.Disconnect(ctx) })
	return repository.NewMongoStore(ctx, mc, cfg.Mongo, app.Logger)
}

// openSink returns nil when no durable sink is configured.
func openSink(cfg *config.Config) (events.Sink, error) {
	switch cfg.Events.Sink {
	case "kafka":
		return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case "nats":
		s, err := events.NewNATSSink(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, errors.Wrap(err, "nats connect")
		}
		return s, nil
	}
	return nil, nil
}
