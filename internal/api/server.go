package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/metrics"
	"github.com/fathima-sithara/messaging-core/internal/middleware"
	"github.com/fathima-sithara/messaging-core/internal/service"
)

// Realtime is the websocket adapter mounted at /v1/ws.
type Realtime interface {
	Upgrade(c *fiber.Ctx) error
	Handler() fiber.Handler
}

type Options struct {
	AppName        string
	Validator      middleware.TokenValidator
	RateLimit      fiber.Handler
	Realtime       Realtime
	RequestTimeout time.Duration
}

type Server struct {
	svc  *service.Service
	opts Options
	log  *zap.Logger
}

func NewServer(svc *service.Service, opts Options, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		ErrorHandler:          errorHandler(log),
		DisableStartupMessage: true,
	})
	s := &Server{svc: svc, opts: opts, log: log}

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", metrics.Handler())

	v1 := app.Group("/v1")
	if opts.Realtime != nil {
		v1.Get("/ws", opts.Realtime.Upgrade, middleware.JWTAuth(opts.Validator, true), opts.Realtime.Handler())
	}

	v1.Use(middleware.JWTAuth(opts.Validator, false))
	if opts.RateLimit != nil {
		v1.Use(opts.RateLimit)
	}
	v1.Use(s.withTimeout)

	v1.Post("/messages", s.sendMessage)
	v1.Patch("/messages/:msg_id", s.editMessage)
	v1.Delete("/messages/:msg_id", s.deleteMessage)
	v1.Put("/messages/:msg_id/reaction", s.react)
	v1.Delete("/messages/:msg_id/reaction", s.unreact)

	v1.Get("/conversations/:peer_id/messages", s.listConversation)
	v1.Post("/conversations/:peer_id/read", s.markRead)
	v1.Get("/unread", s.unreadCounts)

	v1.Post("/chat-requests", s.sendChatRequest)
	v1.Get("/chat-requests", s.pendingChatRequests)
	v1.Post("/chat-requests/:requester_id/accept", s.acceptChatRequest)
	v1.Post("/chat-requests/:requester_id/decline", s.declineChatRequest)

	v1.Get("/keys/conversation/:peer_id", s.conversationKey)
	v1.Get("/keys/public/:user_id", s.publicKey)
	v1.Get("/keys/private/:user_id", s.privateKey)
	v1.Post("/keys/provision", s.provisionKeys)
	v1.Post("/keys/rotate", s.rotateKeys)

	v1.Get("/presence/online", s.onlineContacts)

	v1.Put("/admin/relationships", s.saveRelationship)

	return app
}

func (s *Server) withTimeout(c *fiber.Ctx) error {
	if s.opts.RequestTimeout <= 0 {
		return c.Next()
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), s.opts.RequestTimeout)
	defer cancel()
	c.SetUserContext(ctx)
	return c.Next()
}
