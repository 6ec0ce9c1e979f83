package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/config"
)

const (
	colMessages      = "messages"
	colReactions     = "reactions"
	colCounters      = "counters"
	colRelationships = "relationships"
	colChatRequests  = "chat_requests"
	colConvKeys      = "conversation_keys"
	colKeyVault      = "key_vault"

	messageSeqID = "messages"
)

// MongoStore is the durable Store backed by MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger

	opTimeout    time.Duration
	maxRetries   uint64
	transactions bool

	messages      *mongo.Collection
	reactions     *mongo.Collection
	counters      *mongo.Collection
	relationships *mongo.Collection
	chatRequests  *mongo.Collection
	convKeys      *mongo.Collection
	vault         *mongo.Collection
}

func NewMongoClient(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}
	return client, nil
}

// NewMongoStore wires the collections and makes sure every index the store
// relies on for uniqueness exists.
func NewMongoStore(ctx context.Context, client *mongo.Client, cfg config.MongoConfig, log *zap.Logger) (*MongoStore, error) {
	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:        client,
		db:            db,
		log:           log,
		opTimeout:     cfg.OpTimeout(),
		maxRetries:    cfg.MaxRetries,
		transactions:  cfg.Transactions,
		messages:      db.Collection(colMessages),
		reactions:     db.Collection(colReactions),
		counters:      db.Collection(colCounters),
		relationships: db.Collection(colRelationships),
		chatRequests:  db.Collection(colChatRequests),
		convKeys:      db.Collection(colConvKeys),
		vault:         db.Collection(colKeyVault),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := func(name string) *options.IndexOptions {
		return options.Index().SetUnique(true).SetName(name)
	}
	specs := []struct {
		col    *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.messages, []mongo.IndexModel{
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "sent_at", Value: 1}}, Options: options.Index().SetName("pair_sent_idx")},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}}, Options: options.Index().SetName("receiver_unread_idx")},
		}},
		{s.reactions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique("message_user_uniq")},
		}},
		{s.relationships, []mongo.IndexModel{
			{Keys: bson.D{{Key: "follower_id", Value: 1}, {Key: "followed_id", Value: 1}}, Options: unique("edge_uniq")},
			{Keys: bson.D{{Key: "followed_id", Value: 1}}, Options: options.Index().SetName("followed_idx")},
		}},
		{s.chatRequests, []mongo.IndexModel{
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}}, Options: unique("request_pair_uniq")},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_accepted", Value: 1}}, Options: options.Index().SetName("receiver_pending_idx")},
		}},
		{s.convKeys, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_a_id", Value: 1}, {Key: "user_b_id", Value: 1}}, Options: unique("pair_uniq")},
		}},
		{s.vault, []mongo.IndexModel{
			{
				Keys: bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("active_user_uniq").
					SetPartialFilterExpression(bson.M{"is_active": true}),
			},
		}},
	}
	for _, sp := range specs {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := sp.col.Indexes().CreateMany(cctx, sp.models)
		cancel()
		if err != nil {
			return errors.Wrapf(err, "create indexes on %s", sp.col.Name())
		}
	}
	return nil
}

// RunInTx runs fn in a multi-document transaction when transactions are
// enabled (they need a replica set). Otherwise fn runs directly and each
// write stands on its own.
func (s *MongoStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "mongoStore.RunInTx start session")
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// decodeAll drains a cursor into a slice of *T.
func decodeAll[T any](ctx context.Context, cur *mongo.Cursor) ([]*T, error) {
	defer cur.Close(ctx)
	out := []*T{}
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
