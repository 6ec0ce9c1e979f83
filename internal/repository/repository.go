package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// MessageRepository is the durable append-only message log plus its mutable
// lifecycle flags and reactions.
type MessageRepository interface {
	// AppendMessage assigns a strictly increasing ID and persists m.
	AppendMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	// ListConversation returns the messages between me and other that are
	// visible on me's side, ordered by sent_at then id.
	ListConversation(ctx context.Context, me, other int64) ([]*domain.Message, error)
	MarkRead(ctx context.Context, reader, sender int64, at time.Time) (int64, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	MarkDeliveredFrom(ctx context.Context, receiver, sender int64, at time.Time) (int64, error)
	// UpdateEnvelope reports ErrNotFound for a message deleted on either side.
	UpdateEnvelope(ctx context.Context, id int64, env domain.Envelope, at time.Time) (*domain.Message, error)
	SetDeleted(ctx context.Context, id int64, scope domain.DeleteScope) (*domain.Message, error)
	// UnreadReceived returns unread messages addressed to me that are still
	// visible to me.
	UnreadReceived(ctx context.Context, me int64) ([]*domain.Message, error)
	// LastSentIDs maps each peer to the highest message id me sent to it.
	LastSentIDs(ctx context.Context, me int64) (map[int64]int64, error)

	UpsertReaction(ctx context.Context, r domain.Reaction) error
	DeleteReaction(ctx context.Context, messageID, userID int64) (bool, error)
	ReactionsFor(ctx context.Context, messageIDs []int64) (map[int64][]domain.Reaction, error)
}

type RelationshipRepository interface {
	SaveRelationship(ctx context.Context, r domain.Relationship) error
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	FriendIDs(ctx context.Context, user int64) ([]int64, error)

	GetChatRequest(ctx context.Context, sender, receiver int64) (*domain.ChatRequest, error)
	CreateChatRequest(ctx context.Context, r *domain.ChatRequest) error
	// AcceptChatRequest flips a pending request; ErrNotFound when there is none.
	AcceptChatRequest(ctx context.Context, sender, receiver int64, at time.Time) (*domain.ChatRequest, error)
	DeletePendingChatRequest(ctx context.Context, sender, receiver int64) (bool, error)
	HasAcceptedChatRequest(ctx context.Context, a, b int64) (bool, error)
	AcceptedChatPeers(ctx context.Context, user int64) ([]int64, error)
	PendingChatRequestsFor(ctx context.Context, receiver int64) ([]*domain.ChatRequest, error)
}

type KeyRepository interface {
	GetConversationKey(ctx context.Context, pair domain.Pair) (*domain.ConversationKey, error)
	// InsertConversationKeyIfAbsent stores k unless the pair already has a key
	// and returns whichever record is persisted afterwards.
	InsertConversationKeyIfAbsent(ctx context.Context, k *domain.ConversationKey) (*domain.ConversationKey, bool, error)
}

type VaultRepository interface {
	ActiveVaultEntry(ctx context.Context, user int64) (*domain.VaultEntry, error)
	// InsertVaultEntry fails with ErrDuplicate if the user already has an
	// active entry.
	InsertVaultEntry(ctx context.Context, e *domain.VaultEntry) error
	DeactivateVaultEntry(ctx context.Context, id string, at time.Time) error
	VaultEntriesMissingRatchet(ctx context.Context) ([]*domain.VaultEntry, error)
	// SetRatchetMaterial only writes when the entry still lacks material.
	SetRatchetMaterial(ctx context.Context, id, blob, public string) (bool, error)
}

type Store interface {
	MessageRepository
	RelationshipRepository
	KeyRepository
	VaultRepository

	// RunInTx runs fn inside a single durable-store transaction when the
	// backend supports one.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Close(ctx context.Context) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*MongoStore)(nil)
)
