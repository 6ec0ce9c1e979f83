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

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func (s *MongoStore) nextMessageID(ctx context.Context) (int64, error) {
	var c counterDoc
	err := s.do(ctx, "nextMessageID", func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		return s.counters.FindOneAndUpdate(ctx,
			bson.M{"_id": messageSeqID},
			bson.M{"$inc": bson.M{"seq": int64(1)}},
			opts,
		).Decode(&c)
	})
	if err != nil {
		return 0, errors.Wrap(err, "mongoStore.nextMessageID")
	}
	return c.Seq, nil
}

// AppendMessage takes the id before the insert so a retried insert either
// lands once or hits the duplicate key of its own earlier attempt.
func (s *MongoStore) AppendMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	id, err := s.nextMessageID(ctx)
	if err != nil {
		return nil, err
	}
	stored := *m
	stored.ID = id
	stored.Reactions = nil

	err = s.do(ctx, "AppendMessage", func(ctx context.Context) error {
		_, err := s.messages.InsertOne(ctx, &stored)
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.AppendMessage")
	}
	return &stored, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	var m domain.Message
	err := s.do(ctx, "GetMessage", func(ctx context.Context) error {
		return s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore.GetMessage")
	}
	return &m, nil
}

func (s *MongoStore) ListConversation(ctx context.Context, me, other int64) ([]*domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": me, "receiver_id": other, "is_deleted_for_sender": false},
		bson.M{"sender_id": other, "receiver_id": me, "is_deleted_for_receiver": false},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}, {Key: "_id", Value: 1}})

	var out []*domain.Message
	err := s.do(ctx, "ListConversation", func(ctx context.Context) error {
		cur, err := s.messages.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		out, err = decodeAll[domain.Message](ctx, cur)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListConversation")
	}
	return out, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, reader, sender int64, at time.Time) (int64, error) {
	var n int64
	err := s.do(ctx, "MarkRead", func(ctx context.Context) error {
		res, err := s.messages.UpdateMany(ctx,
			bson.M{"receiver_id": reader, "sender_id": sender, "is_read": false},
			bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
		)
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "mongoStore.MarkRead")
	}
	return n, nil
}

func (s *MongoStore) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	err := s.do(ctx, "MarkDelivered", func(ctx context.Context) error {
		res, err := s.messages.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.A{bson.M{"$set": bson.M{
				"delivered_at": bson.M{"$cond": bson.A{"$is_delivered", "$delivered_at", at}},
				"is_delivered": true,
			}}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, "mongoStore.MarkDelivered")
}

func (s *MongoStore) MarkDeliveredFrom(ctx context.Context, receiver, sender int64, at time.Time) (int64, error) {
	var n int64
	err := s.do(ctx, "MarkDeliveredFrom", func(ctx context.Context) error {
		res, err := s.messages.UpdateMany(ctx,
			bson.M{"receiver_id": receiver, "sender_id": sender, "is_delivered": false},
			bson.M{"$set": bson.M{"is_delivered": true, "delivered_at": at}},
		)
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "mongoStore.MarkDeliveredFrom")
	}
	return n, nil
}

func (s *MongoStore) findAndSet(ctx context.Context, op string, filter bson.M, set bson.M) (*domain.Message, error) {
	var m domain.Message
	err := s.do(ctx, op, func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		return s.messages.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&m)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore."+op)
	}
	return &m, nil
}

func (s *MongoStore) UpdateEnvelope(ctx context.Context, id int64, env domain.Envelope, at time.Time) (*domain.Message, error) {
	// deleted on either side means the edit has nowhere to go
	filter := bson.M{"_id": id, "is_deleted_for_sender": false, "is_deleted_for_receiver": false}
	return s.findAndSet(ctx, "UpdateEnvelope", filter, bson.M{
		"iv":         env.IV,
		"ciphertext": env.Ciphertext,
		"auth_tag":   env.AuthTag,
		"is_edited":  true,
		"edited_at":  at,
	})
}

func (s *MongoStore) SetDeleted(ctx context.Context, id int64, scope domain.DeleteScope) (*domain.Message, error) {
	set := bson.M{"is_deleted_for_sender": true}
	if scope == domain.DeleteForEveryone {
		set["is_deleted_for_receiver"] = true
	}
	return s.findAndSet(ctx, "SetDeleted", bson.M{"_id": id}, set)
}

func (s *MongoStore) UnreadReceived(ctx context.Context, me int64) ([]*domain.Message, error) {
	filter := bson.M{"receiver_id": me, "is_read": false, "is_deleted_for_receiver": false}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	var out []*domain.Message
	err := s.do(ctx, "UnreadReceived", func(ctx context.Context) error {
		cur, err := s.messages.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		out, err = decodeAll[domain.Message](ctx, cur)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.UnreadReceived")
	}
	return out, nil
}

func (s *MongoStore) LastSentIDs(ctx context.Context, me int64) (map[int64]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"sender_id": me}}},
		{{Key: "$group", Value: bson.M{"_id": "$receiver_id", "last": bson.M{"$max": "$_id"}}}},
	}
	type row struct {
		Peer int64 `bson:"_id"`
		Last int64 `bson:"last"`
	}
	out := make(map[int64]int64)
	err := s.do(ctx, "LastSentIDs", func(ctx context.Context) error {
		cur, err := s.messages.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		rows, err := decodeAll[row](ctx, cur)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[r.Peer] = r.Last
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.LastSentIDs")
	}
	return out, nil
}

func (s *MongoStore) UpsertReaction(ctx context.Context, r domain.Reaction) error {
	filter := bson.M{"message_id": r.MessageID, "user_id": r.UserID}
	update := bson.M{
		"$set":         bson.M{"emoji": r.Emoji},
		"$setOnInsert": bson.M{"created_at": r.CreatedAt},
	}
	err := s.do(ctx, "UpsertReaction", func(ctx context.Context) error {
		_, err := s.reactions.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) {
			// a concurrent upsert inserted first; apply ours as a plain update
			_, err = s.reactions.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"emoji": r.Emoji}})
		}
		return err
	})
	return errors.Wrap(err, "mongoStore.UpsertReaction")
}

func (s *MongoStore) DeleteReaction(ctx context.Context, messageID, userID int64) (bool, error) {
	var deleted bool
	err := s.do(ctx, "DeleteReaction", func(ctx context.Context) error {
		res, err := s.reactions.DeleteOne(ctx, bson.M{"message_id": messageID, "user_id": userID})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount > 0
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "mongoStore.DeleteReaction")
	}
	return deleted, nil
}

func (s *MongoStore) ReactionsFor(ctx context.Context, messageIDs []int64) (map[int64][]domain.Reaction, error) {
	out := make(map[int64][]domain.Reaction)
	if len(messageIDs) == 0 {
		return out, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "user_id", Value: 1}})
	err := s.do(ctx, "ReactionsFor", func(ctx context.Context) error {
		out = make(map[int64][]domain.Reaction)
		cur, err := s.reactions.Find(ctx, bson.M{"message_id": bson.M{"$in": messageIDs}}, opts)
		if err != nil {
			return err
		}
		rows, err := decodeAll[domain.Reaction](ctx, cur)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[r.MessageID] = append(out[r.MessageID], *r)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.ReactionsFor")
	}
	return out, nil
}
