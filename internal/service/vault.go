package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/crypto"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/repository"
)

func (s *Service) activeEntry(ctx context.Context, user int64) (*domain.VaultEntry, error) {
	e, err := s.store.ActiveVaultEntry(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrVaultNotFound
		}
		return nil, apperrors.Internal("load vault entry", err)
	}
	return e, nil
}

// newEntry generates identity and ratchet keypairs for user and seals both
// private halves.
func (s *Service) newEntry(user int64) (*domain.VaultEntry, error) {
	id, err := crypto.GenerateIdentityKeyPair()
	if err != nil {
		return nil, apperrors.Internal("generate identity key", err)
	}
	sealed, err := s.sealer.Seal(crypto.BlobIdentityKey, id.PrivateKeyPEM)
	if err != nil {
		return nil, apperrors.Internal("seal identity key", err)
	}
	ratchet, err := crypto.GenerateRatchetKeyPair()
	if err != nil {
		return nil, apperrors.Internal("generate ratchet key", err)
	}
	sealedRatchet, err := s.sealer.Seal(crypto.BlobRatchetKey, []byte(ratchet.Private))
	if err != nil {
		return nil, apperrors.Internal("seal ratchet key", err)
	}
	return &domain.VaultEntry{
		ID:                    s.newID(),
		UserID:                user,
		EncryptedPrivateKey:   sealed,
		PublicKey:             id.Public,
		RatchetPrivateKeyBlob: sealedRatchet,
		RatchetPublicKey:      ratchet.Public,
		CreatedAt:             s.clock.Now(),
		IsActive:              true,
	}, nil
}

// Provision returns user's active vault entry, creating one on first call.
func (s *Service) Provision(ctx context.Context, user int64) (*domain.VaultEntry, error) {
	unlock := s.userLocks.Lock(user)
	defer unlock()

	if e, err := s.activeEntry(ctx, user); err == nil {
		return e, nil
	} else if !errors.Is(err, apperrors.ErrVaultNotFound) {
		return nil, err
	}

	e, err := s.newEntry(user)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertVaultEntry(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// another instance provisioned first
			return s.activeEntry(ctx, user)
		}
		return nil, apperrors.Internal("store vault entry", err)
	}
	s.log.Info("vault provisioned", zap.Int64("user_id", user))
	return e, nil
}

// Rotate retires user's active entry and installs a fresh one.
func (s *Service) Rotate(ctx context.Context, user int64) (*domain.VaultEntry, error) {
	unlock := s.userLocks.Lock(user)
	defer unlock()

	fresh, err := s.newEntry(user)
	if err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.activeEntry(ctx, user)
		if err != nil {
			return err
		}
		if err := s.store.DeactivateVaultEntry(ctx, cur.ID, s.clock.Now()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.Conflict("vault entry changed concurrently")
			}
			return apperrors.Internal("deactivate vault entry", err)
		}
		if err := s.store.InsertVaultEntry(ctx, fresh); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.Conflict("vault entry changed concurrently")
			}
			return apperrors.Internal("store vault entry", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("vault rotated", zap.Int64("user_id", user))
	return fresh, nil
}

// GetPublicKey returns the public JWK of user's active entry with every
// private member stripped.
func (s *Service) GetPublicKey(ctx context.Context, user int64) (domain.JWK, error) {
	e, err := s.activeEntry(ctx, user)
	if err != nil {
		return domain.JWK{}, err
	}
	return e.PublicKey.Public(), nil
}

// RatchetPublicKey returns the ratchet public key of user's active entry.
func (s *Service) RatchetPublicKey(ctx context.Context, user int64) (string, error) {
	e, err := s.activeEntry(ctx, user)
	if err != nil {
		return "", err
	}
	return e.RatchetPublicKey, nil
}

// GetPrivateMaterial decrypts target's private keys. Only the owner or an
// admin may read them. When the at-rest layer cannot open a value, an admin
// reading someone else's keys gets DecryptionFailure, while the owner gets
// the stored value back with Degraded set.
func (s *Service) GetPrivateMaterial(ctx context.Context, caller domain.Identity, target int64) (*domain.PrivateMaterial, error) {
	if caller.UserID != target && !caller.IsAdmin {
		return nil, apperrors.ErrVaultForbidden
	}
	privileged := caller.UserID != target

	e, err := s.activeEntry(ctx, target)
	if err != nil {
		return nil, err
	}

	out := &domain.PrivateMaterial{UserID: target}
	open := func(kind crypto.BlobKind, blob string) (string, error) {
		plain, err := s.sealer.Open(kind, blob)
		if err == nil {
			return string(plain), nil
		}
		if privileged {
			s.log.Error("vault material could not be decrypted",
				zap.Int64("user_id", target), zap.Int64("caller_id", caller.UserID), zap.Error(err))
			return "", apperrors.ErrDecryptionFailed
		}
		s.log.Warn("vault material could not be decrypted, returning stored value",
			zap.Int64("user_id", target), zap.Error(err))
		out.Degraded = true
		return blob, nil
	}

	if out.PrivateKeyPEM, err = open(crypto.BlobIdentityKey, e.EncryptedPrivateKey); err != nil {
		return nil, err
	}
	if e.HasRatchet() {
		if out.RatchetPrivateKey, err = open(crypto.BlobRatchetKey, e.RatchetPrivateKeyBlob); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SeedRatchetMaterial gives every active entry lacking ratchet material a
// fresh keypair. Entries that already have material are left alone, so it is
// safe to run on every start. It returns how many entries it filled.
func (s *Service) SeedRatchetMaterial(ctx context.Context) (int, error) {
	missing, err := s.store.VaultEntriesMissingRatchet(ctx)
	if err != nil {
		return 0, apperrors.Internal("list vault entries", err)
	}
	seeded := 0
	for _, e := range missing {
		kp, err := crypto.GenerateRatchetKeyPair()
		if err != nil {
			return seeded, apperrors.Internal("generate ratchet key", err)
		}
		blob, err := s.sealer.Seal(crypto.BlobRatchetKey, []byte(kp.Private))
		if err != nil {
			return seeded, apperrors.Internal("seal ratchet key", err)
		}
		ok, err := s.store.SetRatchetMaterial(ctx, e.ID, blob, kp.Public)
		if err != nil {
			return seeded, apperrors.Internal("store ratchet key", err)
		}
		if ok {
			seeded++
		}
	}
	if seeded > 0 {
		s.log.Info("seeded ratchet material", zap.Int("entries", seeded))
	}
	return seeded, nil
}
