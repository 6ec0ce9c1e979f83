package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

// OnConnect registers a live connection. The new connection gets the list of
// online contacts; when the user just came online, their online contacts are
// told.
func (s *Service) OnConnect(ctx context.Context, userID int64, connID string) {
	cameOnline := s.presence.Connect(ctx, userID, connID)

	contacts, err := s.Contacts(ctx, userID)
	if err != nil {
		s.log.Warn("load contacts on connect", zap.Int64("user_id", userID), zap.Error(err))
		contacts = nil
	}
	online := s.presence.OnlineFriends(userID, contacts)
	s.hub.PushTo(connID, s.event(domain.EventOnlineFriendsSnapshot, domain.SnapshotPayload{UserIDs: online}))

	if cameOnline && len(online) > 0 {
		s.hub.Push(ctx, s.event(domain.EventUserOnline, domain.PresencePayload{UserID: userID}), online...)
	}
}

// OnDisconnect drops a connection. It is safe to call more than once for the
// same connection; contacts hear about it only when the last one goes.
func (s *Service) OnDisconnect(ctx context.Context, userID int64, connID string) {
	if !s.presence.Disconnect(ctx, userID, connID) {
		return
	}
	contacts, err := s.Contacts(ctx, userID)
	if err != nil {
		s.log.Warn("load contacts on disconnect", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	online := s.presence.OnlineFriends(userID, contacts)
	if len(online) > 0 {
		s.hub.Push(ctx, s.event(domain.EventUserOffline, domain.PresencePayload{UserID: userID}), online...)
	}
}

// Heartbeat is called when a connection proves it is alive.
func (s *Service) Heartbeat(ctx context.Context, userID int64) {
	s.presence.Touch(ctx, userID)
}

// OnlineContacts lists user's contacts that currently have a connection.
func (s *Service) OnlineContacts(ctx context.Context, userID int64) ([]int64, error) {
	contacts, err := s.Contacts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.presence.OnlineFriends(userID, contacts), nil
}
