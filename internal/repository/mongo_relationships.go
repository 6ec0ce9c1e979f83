package repository

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

func (s *MongoStore) SaveRelationship(ctx context.Context, r domain.Relationship) error {
	err := s.do(ctx, "SaveRelationship", func(ctx context.Context) error {
		_, err := s.relationships.UpdateOne(ctx,
			bson.M{"follower_id": r.FollowerID, "followed_id": r.FollowedID},
			bson.M{
				"$set":         bson.M{"is_accepted": r.IsAccepted},
				"$setOnInsert": bson.M{"created_at": r.CreatedAt},
			},
			options.Update().SetUpsert(true),
		)
		return err
	})
	return errors.Wrap(err, "mongoStore.SaveRelationship")
}

func eitherDirection(a, b int64, fromKey, toKey string) bson.A {
	return bson.A{
		bson.M{fromKey: a, toKey: b},
		bson.M{fromKey: b, toKey: a},
	}
}

func (s *MongoStore) exists(ctx context.Context, op string, col *mongo.Collection, filter bson.M) (bool, error) {
	var n int64
	err := s.do(ctx, op, func(ctx context.Context) error {
		var err error
		n, err = col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
		return err
	})
	if err != nil {
		return false, errors.Wrap(err, "mongoStore."+op)
	}
	return n > 0, nil
}

func (s *MongoStore) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	return s.exists(ctx, "AreFriends", s.relationships, bson.M{
		"$or":         eitherDirection(a, b, "follower_id", "followed_id"),
		"is_accepted": true,
	})
}

func (s *MongoStore) FriendIDs(ctx context.Context, user int64) ([]int64, error) {
	filter := bson.M{
		"$or":         bson.A{bson.M{"follower_id": user}, bson.M{"followed_id": user}},
		"is_accepted": true,
	}
	var rows []*domain.Relationship
	err := s.do(ctx, "FriendIDs", func(ctx context.Context) error {
		cur, err := s.relationships.Find(ctx, filter)
		if err != nil {
			return err
		}
		rows, err = decodeAll[domain.Relationship](ctx, cur)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.FriendIDs")
	}
	seen := make(map[int64]struct{}, len(rows))
	out := []int64{}
	for _, r := range rows {
		peer := r.FollowedID
		if peer == user {
			peer = r.FollowerID
		}
		if _, ok := seen[peer]; !ok {
			seen[peer] = struct{}{}
			out = append(out, peer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MongoStore) GetChatRequest(ctx context.Context, sender, receiver int64) (*domain.ChatRequest, error) {
	var r domain.ChatRequest
	err := s.do(ctx, "GetChatRequest", func(ctx context.Context) error {
		return s.chatRequests.FindOne(ctx, bson.M{"sender_id": sender, "receiver_id": receiver}).Decode(&r)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore.GetChatRequest")
	}
	return &r, nil
}

func (s *MongoStore) CreateChatRequest(ctx context.Context, r *domain.ChatRequest) error {
	err := s.do(ctx, "CreateChatRequest", func(ctx context.Context) error {
		_, err := s.chatRequests.InsertOne(ctx, r)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "mongoStore.CreateChatRequest")
}

func (s *MongoStore) AcceptChatRequest(ctx context.Context, sender, receiver int64, at time.Time) (*domain.ChatRequest, error) {
	var r domain.ChatRequest
	err := s.do(ctx, "AcceptChatRequest", func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		return s.chatRequests.FindOneAndUpdate(ctx,
			bson.M{"sender_id": sender, "receiver_id": receiver, "is_accepted": false},
			bson.M{"$set": bson.M{"is_accepted": true, "accepted_at": at}},
			opts,
		).Decode(&r)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore.AcceptChatRequest")
	}
	return &r, nil
}

func (s *MongoStore) DeletePendingChatRequest(ctx context.Context, sender, receiver int64) (bool, error) {
	var deleted bool
	err := s.do(ctx, "DeletePendingChatRequest", func(ctx context.Context) error {
		res, err := s.chatRequests.DeleteOne(ctx, bson.M{"sender_id": sender, "receiver_id": receiver, "is_accepted": false})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount > 0
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "mongoStore.DeletePendingChatRequest")
	}
	return deleted, nil
}

func (s *MongoStore) HasAcceptedChatRequest(ctx context.Context, a, b int64) (bool, error) {
	return s.exists(ctx, "HasAcceptedChatRequest", s.chatRequests, bson.M{
		"$or":         eitherDirection(a, b, "sender_id", "receiver_id"),
		"is_accepted": true,
	})
}

func (s *MongoStore) AcceptedChatPeers(ctx context.Context, user int64) ([]int64, error) {
	filter := bson.M{
		"$or":         bson.A{bson.M{"sender_id": user}, bson.M{"receiver_id": user}},
		"is_accepted": true,
	}
	var rows []*domain.ChatRequest
	err := s.do(ctx, "AcceptedChatPeers", func(ctx context.Context) error {
		cur, err := s.chatRequests.Find(ctx, filter)
		if err != nil {
			return err
		}
		rows, err = decodeAll[domain.ChatRequest](ctx, cur)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.AcceptedChatPeers")
	}
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		if r.SenderID == user {
			out = append(out, r.ReceiverID)
		} else {
			out = append(out, r.SenderID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MongoStore) PendingChatRequestsFor(ctx context.Context, receiver int64) ([]*domain.ChatRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}})
	var out []*domain.ChatRequest
	err := s.do(ctx, "PendingChatRequestsFor", func(ctx context.Context) error {
		cur, err := s.chatRequests.Find(ctx, bson.M{"receiver_id": receiver, "is_accepted": false}, opts)
		if err != nil {
			return err
		}
		out, err = decodeAll[domain.ChatRequest](ctx, cur)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.PendingChatRequestsFor")
	}
	return out, nil
}
