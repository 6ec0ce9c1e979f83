package service

import (
	"context"
	"errors"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/crypto"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/repository"
)

// GetOrCreateKey returns the symmetric key of the a/b conversation, creating
// it on first use. At most one key ever exists per unordered pair; concurrent
// first callers all get the key that was persisted.
func (s *Service) GetOrCreateKey(ctx context.Context, a, b int64) (string, error) {
	if a == b {
		return "", apperrors.ErrInvalidPair
	}
	k, err := s.ensureKey(ctx, domain.NewPair(a, b))
	if err != nil {
		return "", err
	}
	return k.KeyBase64, nil
}

func (s *Service) ensureKey(ctx context.Context, pair domain.Pair) (*domain.ConversationKey, error) {
	existing, err := s.store.GetConversationKey(ctx, pair)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal("load conversation key", err)
	}

	key, err := crypto.NewSymmetricKey()
	if err != nil {
		return nil, apperrors.Internal("generate conversation key", err)
	}
	stored, _, err := s.store.InsertConversationKeyIfAbsent(ctx, &domain.ConversationKey{
		Pair:      pair,
		KeyBase64: key,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, apperrors.Internal("store conversation key", err)
	}
	return stored, nil
}

// ConversationKey is the caller-facing key fetch: only users who may
// exchange messages get the key.
func (s *Service) ConversationKey(ctx context.Context, caller, peer int64) (*domain.ConversationKey, error) {
	if caller == peer {
		return nil, apperrors.ErrInvalidPair
	}
	if err := s.requireExchange(ctx, caller, peer); err != nil {
		return nil, err
	}
	return s.ensureKey(ctx, domain.NewPair(caller, peer))
}
