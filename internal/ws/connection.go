package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/hub"
)

type connection struct {
	srv     *Server
	ws      *websocket.Conn
	client  *hub.Client
	user    domain.Identity
	limiter *rate.Limiter

	closeOnce sync.Once
}

// close tears the connection down once, whichever pump notices first.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.client.Close()
		c.srv.hub.Unregister(c.client.ID)
		c.srv.svc.OnDisconnect(context.Background(), c.user.UserID, c.client.ID)
		_ = c.ws.Close()
		c.srv.log.Info("ws disconnected", zap.Int64("user_id", c.user.UserID), zap.String("conn_id", c.client.ID))
	})
}

func (c *connection) pongWait() time.Duration {
	return c.srv.opts.PingInterval * 2
}

func (c *connection) readPump() {
	defer c.close()

	c.ws.SetReadLimit(c.srv.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		c.srv.svc.Heartbeat(context.Background(), c.user.UserID)
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.log.Debug("ws read", zap.String("conn_id", c.client.ID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			c.srv.replyError(c.client.ID, "", apperrors.ErrRateLimited)
			continue
		}
		c.srv.handleFrame(context.Background(), c.user.UserID, c.client.ID, data)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(c.srv.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case b := <-c.client.Send():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-c.client.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.srv.opts.WriteDeadline)); err != nil {
				return
			}
		}
	}
}
