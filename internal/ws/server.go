package ws

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/messaging-core/internal/clock"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/hub"
	"github.com/fathima-sithara/messaging-core/internal/middleware"
	"github.com/fathima-sithara/messaging-core/internal/service"
)

type Options struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	RequestTimeout time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RatePerSecond  int
}

type Server struct {
	svc   *service.Service
	hub   *hub.Hub
	opts  Options
	clock clock.Clock
	log   *zap.Logger
}

func NewServer(svc *service.Service, h *hub.Hub, opts Options, log *zap.Logger) *Server {
	return &Server{svc: svc, hub: h, opts: opts, clock: clock.Real(), log: log}
}

// Upgrade only lets websocket upgrade requests through.
func (s *Server) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Handler must be mounted behind middleware.JWTAuth.
func (s *Server) Handler() fiber.Handler {
	return websocket.New(s.serve, websocket.Config{
		HandshakeTimeout: 10 * time.Second,
	})
}

func (s *Server) serve(ws *websocket.Conn) {
	id, ok := ws.Locals(middleware.IdentityLocal).(domain.Identity)
	if !ok {
		_ = ws.Close()
		return
	}

	c := &connection{
		srv:     s,
		ws:      ws,
		user:    id,
		limiter: rate.NewLimiter(rate.Limit(s.opts.RatePerSecond), s.opts.RatePerSecond*2),
	}
	c.client = hub.NewClient(uuid.NewString(), id.UserID, s.opts.SendBuffer, nil)
	s.hub.Register(c.client)
	s.log.Info("ws connected", zap.Int64("user_id", id.UserID), zap.String("conn_id", c.client.ID))

	s.svc.OnConnect(context.Background(), id.UserID, c.client.ID)

	// the conn is released when serve returns, so wait for the writer too
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	c.readPump()
	<-writerDone
}
