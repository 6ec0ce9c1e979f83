package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

func (s *MongoStore) GetConversationKey(ctx context.Context, pair domain.Pair) (*domain.ConversationKey, error) {
	var k domain.ConversationKey
	err := s.do(ctx, "GetConversationKey", func(ctx context.Context) error {
		return s.convKeys.FindOne(ctx, bson.M{"user_a_id": pair.Low, "user_b_id": pair.High}).Decode(&k)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore.GetConversationKey")
	}
	return &k, nil
}

// InsertConversationKeyIfAbsent relies on the unique (user_a_id, user_b_id)
// index. Whoever loses the race reads back the winner's row.
func (s *MongoStore) InsertConversationKeyIfAbsent(ctx context.Context, k *domain.ConversationKey) (*domain.ConversationKey, bool, error) {
	var created bool
	err := s.do(ctx, "InsertConversationKeyIfAbsent", func(ctx context.Context) error {
		res, err := s.convKeys.UpdateOne(ctx,
			bson.M{"user_a_id": k.Low, "user_b_id": k.High},
			bson.M{"$setOnInsert": bson.M{"symmetric_key": k.KeyBase64, "created_at": k.CreatedAt}},
			options.Update().SetUpsert(true),
		)
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		if err != nil {
			return err
		}
		created = res.UpsertedCount > 0
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "mongoStore.InsertConversationKeyIfAbsent")
	}
	stored, err := s.GetConversationKey(ctx, k.Pair)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *MongoStore) ActiveVaultEntry(ctx context.Context, user int64) (*domain.VaultEntry, error) {
	var e domain.VaultEntry
	err := s.do(ctx, "ActiveVaultEntry", func(ctx context.Context) error {
		return s.vault.FindOne(ctx, bson.M{"user_id": user, "is_active": true}).Decode(&e)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore.ActiveVaultEntry")
	}
	return &e, nil
}

func (s *MongoStore) InsertVaultEntry(ctx context.Context, e *domain.VaultEntry) error {
	err := s.do(ctx, "InsertVaultEntry", func(ctx context.Context) error {
		_, err := s.vault.InsertOne(ctx, e)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "mongoStore.InsertVaultEntry")
}

func (s *MongoStore) DeactivateVaultEntry(ctx context.Context, id string, at time.Time) error {
	var matched int64
	err := s.do(ctx, "DeactivateVaultEntry", func(ctx context.Context) error {
		res, err := s.vault.UpdateOne(ctx,
			bson.M{"_id": id, "is_active": true},
			bson.M{"$set": bson.M{"is_active": false, "rotated_at": at}},
		)
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "mongoStore.DeactivateVaultEntry")
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func missingRatchet() bson.A {
	return bson.A{
		bson.M{"ratchet_private_key_blob": bson.M{"$in": bson.A{nil, ""}}},
		bson.M{"ratchet_public_key": bson.M{"$in": bson.A{nil, ""}}},
	}
}

func (s *MongoStore) VaultEntriesMissingRatchet(ctx context.Context) ([]*domain.VaultEntry, error) {
	filter := bson.M{"is_active": true, "$or": missingRatchet()}
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	var out []*domain.VaultEntry
	err := s.do(ctx, "VaultEntriesMissingRatchet", func(ctx context.Context) error {
		cur, err := s.vault.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		out, err = decodeAll[domain.VaultEntry](ctx, cur)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.VaultEntriesMissingRatchet")
	}
	return out, nil
}

// SetRatchetMaterial is conditional on the row still lacking material, so
// concurrent seeders cannot overwrite each other.
func (s *MongoStore) SetRatchetMaterial(ctx context.Context, id, blob, public string) (bool, error) {
	var modified bool
	err := s.do(ctx, "SetRatchetMaterial", func(ctx context.Context) error {
		res, err := s.vault.UpdateOne(ctx,
			bson.M{"_id": id, "$or": missingRatchet()},
			bson.M{"$set": bson.M{"ratchet_private_key_blob": blob, "ratchet_public_key": public}},
		)
		if err != nil {
			return err
		}
		modified = res.ModifiedCount > 0
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "mongoStore.SetRatchetMaterial")
	}
	return modified, nil
}
