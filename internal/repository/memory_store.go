package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

type reactionKey struct {
	messageID int64
	userID    int64
}

type edgeKey struct {
	from int64
	to   int64
}

// MemoryStore is a process-local Store used for development and tests. Every
// method is atomic under a single lock; RunInTx therefore adds no isolation.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    int64
	messages  map[int64]*domain.Message
	order     []int64
	reactions map[reactionKey]domain.Reaction

	relationships map[edgeKey]domain.Relationship
	chatRequests  map[edgeKey]*domain.ChatRequest

	convKeys map[domain.Pair]*domain.ConversationKey
	vault    map[string]*domain.VaultEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:      make(map[int64]*domain.Message),
		reactions:     make(map[reactionKey]domain.Reaction),
		relationships: make(map[edgeKey]domain.Relationship),
		chatRequests:  make(map[edgeKey]*domain.ChatRequest),
		convKeys:      make(map[domain.Pair]*domain.ConversationKey),
		vault:         make(map[string]*domain.VaultEntry),
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func cloneMessage(m *domain.Message) *domain.Message {
	c := *m
	c.Reactions = nil
	return &c
}

// messages

func (s *MemoryStore) AppendMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := cloneMessage(m)
	stored.ID = s.nextID
	s.messages[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return cloneMessage(stored), nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *MemoryStore) ListConversation(_ context.Context, me, other int64) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Message{}
	for _, id := range s.order {
		m := s.messages[id]
		if m.Peer(me) != other || !m.IsParticipant(me) || !m.VisibleTo(me) {
			continue
		}
		out = append(out, cloneMessage(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, reader, sender int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ReceiverID == reader && m.SenderID == sender && !m.IsRead {
			t := at
			m.IsRead = true
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	if !m.IsDelivered {
		t := at
		m.IsDelivered = true
		m.DeliveredAt = &t
	}
	return nil
}

func (s *MemoryStore) MarkDeliveredFrom(_ context.Context, receiver, sender int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ReceiverID == receiver && m.SenderID == sender && !m.IsDelivered {
			t := at
			m.IsDelivered = true
			m.DeliveredAt = &t
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateEnvelope(_ context.Context, id int64, env domain.Envelope, at time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeletedForSender || m.IsDeletedForReceiver {
		return nil, ErrNotFound
	}
	t := at
	m.Envelope = env
	m.IsEdited = true
	m.EditedAt = &t
	return cloneMessage(m), nil
}

func (s *MemoryStore) SetDeleted(_ context.Context, id int64, scope domain.DeleteScope) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.IsDeletedForSender = true
	if scope == domain.DeleteForEveryone {
		m.IsDeletedForReceiver = true
	}
	return cloneMessage(m), nil
}

func (s *MemoryStore) UnreadReceived(_ context.Context, me int64) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Message{}
	for _, id := range s.order {
		m := s.messages[id]
		if m.ReceiverID == me && !m.IsRead && !m.IsDeletedForReceiver {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

func (s *MemoryStore) LastSentIDs(_ context.Context, me int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int64)
	for _, m := range s.messages {
		if m.SenderID == me && m.ID > out[m.ReceiverID] {
			out[m.ReceiverID] = m.ID
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertReaction(_ context.Context, r domain.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reactionKey{r.MessageID, r.UserID}
	if prev, ok := s.reactions[k]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	s.reactions[k] = r
	return nil
}

func (s *MemoryStore) DeleteReaction(_ context.Context, messageID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reactionKey{messageID, userID}
	if _, ok := s.reactions[k]; !ok {
		return false, nil
	}
	delete(s.reactions, k)
	return true, nil
}

func (s *MemoryStore) ReactionsFor(_ context.Context, messageIDs []int64) (map[int64][]domain.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int64]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = struct{}{}
	}
	out := make(map[int64][]domain.Reaction)
	for k, r := range s.reactions {
		if _, ok := want[k.messageID]; ok {
			out[k.messageID] = append(out[k.messageID], r)
		}
	}
	for id := range out {
		rs := out[id]
		sort.Slice(rs, func(i, j int) bool {
			if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
				return rs[i].UserID < rs[j].UserID
			}
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		})
	}
	return out, nil
}

// relationships

func (s *MemoryStore) SaveRelationship(_ context.Context, r domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := edgeKey{r.FollowerID, r.FollowedID}
	if prev, ok := s.relationships[k]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	s.relationships[k] = r
	return nil
}

func (s *MemoryStore) AreFriends(_ context.Context, a, b int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.relationships[edgeKey{a, b}]; ok && r.IsAccepted {
		return true, nil
	}
	if r, ok := s.relationships[edgeKey{b, a}]; ok && r.IsAccepted {
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) FriendIDs(_ context.Context, user int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	out := []int64{}
	for k, r := range s.relationships {
		if !r.IsAccepted {
			continue
		}
		var peer int64
		switch user {
		case k.from:
			peer = k.to
		case k.to:
			peer = k.from
		default:
			continue
		}
		if _, ok := seen[peer]; !ok {
			seen[peer] = struct{}{}
			out = append(out, peer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func cloneRequest(r *domain.ChatRequest) *domain.ChatRequest {
	c := *r
	return &c
}

func (s *MemoryStore) GetChatRequest(_ context.Context, sender, receiver int64) (*domain.ChatRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.chatRequests[edgeKey{sender, receiver}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *MemoryStore) CreateChatRequest(_ context.Context, r *domain.ChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := edgeKey{r.SenderID, r.ReceiverID}
	if _, ok := s.chatRequests[k]; ok {
		return ErrDuplicate
	}
	s.chatRequests[k] = cloneRequest(r)
	return nil
}

func (s *MemoryStore) AcceptChatRequest(_ context.Context, sender, receiver int64, at time.Time) (*domain.ChatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.chatRequests[edgeKey{sender, receiver}]
	if !ok || r.IsAccepted {
		return nil, ErrNotFound
	}
	t := at
	r.IsAccepted = true
	r.AcceptedAt = &t
	return cloneRequest(r), nil
}

func (s *MemoryStore) DeletePendingChatRequest(_ context.Context, sender, receiver int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := edgeKey{sender, receiver}
	r, ok := s.chatRequests[k]
	if !ok || r.IsAccepted {
		return false, nil
	}
	delete(s.chatRequests, k)
	return true, nil
}

func (s *MemoryStore) HasAcceptedChatRequest(_ context.Context, a, b int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.chatRequests[edgeKey{a, b}]; ok && r.IsAccepted {
		return true, nil
	}
	if r, ok := s.chatRequests[edgeKey{b, a}]; ok && r.IsAccepted {
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) AcceptedChatPeers(_ context.Context, user int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []int64{}
	for k, r := range s.chatRequests {
		if !r.IsAccepted {
			continue
		}
		switch user {
		case k.from:
			out = append(out, k.to)
		case k.to:
			out = append(out, k.from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) PendingChatRequestsFor(_ context.Context, receiver int64) ([]*domain.ChatRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.ChatRequest{}
	for k, r := range s.chatRequests {
		if k.to == receiver && !r.IsAccepted {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// keys

func (s *MemoryStore) GetConversationKey(_ context.Context, pair domain.Pair) (*domain.ConversationKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.convKeys[pair]
	if !ok {
		return nil, ErrNotFound
	}
	c := *k
	return &c, nil
}

func (s *MemoryStore) InsertConversationKeyIfAbsent(_ context.Context, k *domain.ConversationKey) (*domain.ConversationKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.convKeys[k.Pair]; ok {
		c := *existing
		return &c, false, nil
	}
	stored := *k
	s.convKeys[k.Pair] = &stored
	c := stored
	return &c, true, nil
}

// ConversationKeyCount reports how many key records exist.
func (s *MemoryStore) ConversationKeyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convKeys)
}

// vault

func cloneVault(e *domain.VaultEntry) *domain.VaultEntry {
	c := *e
	return &c
}

func (s *MemoryStore) ActiveVaultEntry(_ context.Context, user int64) (*domain.VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.vault {
		if e.UserID == user && e.IsActive {
			return cloneVault(e), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) InsertVaultEntry(_ context.Context, e *domain.VaultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vault[e.ID]; ok {
		return ErrDuplicate
	}
	if e.IsActive {
		for _, cur := range s.vault {
			if cur.UserID == e.UserID && cur.IsActive {
				return ErrDuplicate
			}
		}
	}
	s.vault[e.ID] = cloneVault(e)
	return nil
}

func (s *MemoryStore) DeactivateVaultEntry(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.vault[id]
	if !ok || !e.IsActive {
		return ErrNotFound
	}
	t := at
	e.IsActive = false
	e.RotatedAt = &t
	return nil
}

func (s *MemoryStore) VaultEntriesMissingRatchet(_ context.Context) ([]*domain.VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.VaultEntry{}
	for _, e := range s.vault {
		if e.IsActive && !e.HasRatchet() {
			out = append(out, cloneVault(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) SetRatchetMaterial(_ context.Context, id, blob, public string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.vault[id]
	if !ok || e.HasRatchet() {
		return false, nil
	}
	e.RatchetPrivateKeyBlob = blob
	e.RatchetPublicKey = public
	return true, nil
}

// ReplaceVaultEntry overwrites a stored entry as-is. It exists for tests that
// need to simulate corrupted or legacy rows.
func (s *MemoryStore) ReplaceVaultEntry(e *domain.VaultEntry) {
	s.mu.Lock()
	s.vault[e.ID] = cloneVault(e)
	s.mu.Unlock()
}
