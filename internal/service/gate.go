package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/repository"
)

// CanExchange reports whether a and b may message each other: they are
// friends in either direction or share an accepted chat request. It always
// reads the store.
func (s *Service) CanExchange(ctx context.Context, a, b int64) (bool, error) {
	if a == b {
		return false, nil
	}
	friends, err := s.store.AreFriends(ctx, a, b)
	if err != nil {
		return false, apperrors.Internal("check friendship", err)
	}
	if friends {
		return true, nil
	}
	accepted, err := s.store.HasAcceptedChatRequest(ctx, a, b)
	if err != nil {
		return false, apperrors.Internal("check chat request", err)
	}
	return accepted, nil
}

func (s *Service) requireExchange(ctx context.Context, a, b int64) error {
	ok, err := s.CanExchange(ctx, a, b)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotFriends
	}
	return nil
}

// Follow records a follow edge. The follow graph is owned elsewhere; this is
// the write path used to mirror it.
func (s *Service) Follow(ctx context.Context, follower, followed int64, accepted bool) error {
	if follower == followed {
		return apperrors.ErrSelfRelationship
	}
	err := s.store.SaveRelationship(ctx, domain.Relationship{
		FollowerID: follower,
		FollowedID: followed,
		IsAccepted: accepted,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		return apperrors.Internal("save relationship", err)
	}
	return nil
}

// SendChatRequest opens a pending request from sender to receiver. A request
// sent while the reverse one is still pending accepts that one instead.
func (s *Service) SendChatRequest(ctx context.Context, sender, receiver int64, initialMessage string) (*domain.ChatRequest, error) {
	if sender == receiver {
		return nil, apperrors.ErrSelfRequest
	}
	friends, err := s.store.AreFriends(ctx, sender, receiver)
	if err != nil {
		return nil, apperrors.Internal("check friendship", err)
	}
	if friends {
		return nil, apperrors.ErrAlreadyFriends
	}

	pair := domain.NewPair(sender, receiver)
	unlock := s.convLocks.Lock(pair)
	defer unlock()

	if existing, err := s.store.GetChatRequest(ctx, sender, receiver); err == nil {
		if existing.IsAccepted {
			return nil, apperrors.ErrRequestAccepted
		}
		return nil, apperrors.ErrDuplicateRequest
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal("load chat request", err)
	}

	reverse, err := s.store.GetChatRequest(ctx, receiver, sender)
	switch {
	case err == nil && reverse.IsAccepted:
		return nil, apperrors.ErrRequestAccepted
	case err == nil:
		return s.acceptLocked(ctx, pair, receiver, sender)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.Internal("load chat request", err)
	}

	req := &domain.ChatRequest{
		ID:             s.newID(),
		SenderID:       sender,
		ReceiverID:     receiver,
		InitialMessage: initialMessage,
		SentAt:         s.clock.Now(),
	}
	if err := s.store.CreateChatRequest(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrDuplicateRequest
		}
		return nil, apperrors.Internal("create chat request", err)
	}
	s.hub.Push(ctx, s.event(domain.EventChatRequestReceived, req), receiver)
	s.log.Info("chat request sent", zap.Int64("sender_id", sender), zap.Int64("receiver_id", receiver))
	return req, nil
}

// AcceptChatRequest accepts the pending request requester sent to acceptor.
func (s *Service) AcceptChatRequest(ctx context.Context, acceptor, requester int64) (*domain.ChatRequest, error) {
	pair := domain.NewPair(acceptor, requester)
	unlock := s.convLocks.Lock(pair)
	defer unlock()
	return s.acceptLocked(ctx, pair, requester, acceptor)
}

func (s *Service) acceptLocked(ctx context.Context, pair domain.Pair, requester, acceptor int64) (*domain.ChatRequest, error) {
	req, err := s.store.AcceptChatRequest(ctx, requester, acceptor, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrNoPendingRequest
		}
		return nil, apperrors.Internal("accept chat request", err)
	}
	s.commit(ctx, pair, s.event(domain.EventChatRequestAccepted, req), requester, acceptor)
	s.log.Info("chat request accepted", zap.Int64("sender_id", requester), zap.Int64("receiver_id", acceptor))
	return req, nil
}

// DeclineChatRequest discards the pending request requester sent to decliner.
func (s *Service) DeclineChatRequest(ctx context.Context, decliner, requester int64) error {
	unlock := s.convLocks.Lock(domain.NewPair(decliner, requester))
	defer unlock()

	ok, err := s.store.DeletePendingChatRequest(ctx, requester, decliner)
	if err != nil {
		return apperrors.Internal("decline chat request", err)
	}
	if !ok {
		return apperrors.ErrNoPendingRequest
	}
	return nil
}

// PendingChatRequests lists requests waiting on user's answer, oldest first.
func (s *Service) PendingChatRequests(ctx context.Context, user int64) ([]*domain.ChatRequest, error) {
	out, err := s.store.PendingChatRequestsFor(ctx, user)
	if err != nil {
		return nil, apperrors.Internal("list chat requests", err)
	}
	return out, nil
}

// Contacts is everyone user may exchange messages with.
func (s *Service) Contacts(ctx context.Context, user int64) ([]int64, error) {
	friends, err := s.store.FriendIDs(ctx, user)
	if err != nil {
		return nil, apperrors.Internal("list friends", err)
	}
	peers, err := s.store.AcceptedChatPeers(ctx, user)
	if err != nil {
		return nil, apperrors.Internal("list chat peers", err)
	}
	seen := make(map[int64]struct{}, len(friends)+len(peers))
	out := make([]int64, 0, len(friends)+len(peers))
	for _, id := range append(friends, peers...) {
		if _, ok := seen[id]; ok || id == user {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
