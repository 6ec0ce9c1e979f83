package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func env(tag string) domain.Envelope {
	return domain.Envelope{IV: "iv-" + tag, Ciphertext: "ct-" + tag, AuthTag: "tag-" + tag}
}

func appendMsg(t *testing.T, s Store, from, to int64, at time.Time) *domain.Message {
	t.Helper()
	m, err := s.AppendMessage(context.Background(), &domain.Message{
		SenderID: from, ReceiverID: to, Envelope: env("x"), SentAt: at,
	})
	require.NoError(t, err)
	return m
}

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("ids increase", func(t *testing.T) {
		s := newStore(t)
		a := appendMsg(t, s, 1, 2, t0)
		b := appendMsg(t, s, 2, 1, t0)
		c := appendMsg(t, s, 1, 2, t0.Add(time.Second))
		assert.Less(t, a.ID, b.ID)
		assert.Less(t, b.ID, c.ID)
	})

	t.Run("conversation order and visibility", func(t *testing.T) {
		s := newStore(t)
		late := appendMsg(t, s, 1, 2, t0.Add(2*time.Second))
		early := appendMsg(t, s, 2, 1, t0)
		same := appendMsg(t, s, 1, 2, t0)
		appendMsg(t, s, 1, 3, t0) // other conversation

		list, err := s.ListConversation(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []int64{early.ID, same.ID, late.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})

		_, err = s.SetDeleted(ctx, late.ID, domain.DeleteForSender)
		require.NoError(t, err)

		mine, err := s.ListConversation(ctx, 1, 2)
		require.NoError(t, err)
		assert.Len(t, mine, 2)
		theirs, err := s.ListConversation(ctx, 2, 1)
		require.NoError(t, err)
		assert.Len(t, theirs, 3)

		_, err = s.SetDeleted(ctx, same.ID, domain.DeleteForEveryone)
		require.NoError(t, err)
		theirs, err = s.ListConversation(ctx, 2, 1)
		require.NoError(t, err)
		assert.Len(t, theirs, 2)
	})

	t.Run("mark read idempotent", func(t *testing.T) {
		s := newStore(t)
		appendMsg(t, s, 1, 2, t0)
		appendMsg(t, s, 1, 2, t0)
		appendMsg(t, s, 2, 1, t0)

		n, err := s.MarkRead(ctx, 2, 1, t0)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		n, err = s.MarkRead(ctx, 2, 1, t0)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		unread, err := s.UnreadReceived(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, unread, 1)
	})

	t.Run("delivered", func(t *testing.T) {
		s := newStore(t)
		m := appendMsg(t, s, 1, 2, t0)
		appendMsg(t, s, 1, 2, t0)

		require.NoError(t, s.MarkDelivered(ctx, m.ID, t0.Add(time.Second)))
		n, err := s.MarkDeliveredFrom(ctx, 2, 1, t0.Add(2*time.Second))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		got, err := s.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, got.IsDelivered)
		require.NotNil(t, got.DeliveredAt)
		assert.True(t, got.DeliveredAt.Equal(t0.Add(time.Second)))

		assert.ErrorIs(t, s.MarkDelivered(ctx, 999999, t0), ErrNotFound)
	})

	t.Run("edit envelope", func(t *testing.T) {
		s := newStore(t)
		m := appendMsg(t, s, 1, 2, t0)
		got, err := s.UpdateEnvelope(ctx, m.ID, env("new"), t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, got.IsEdited)
		assert.Equal(t, "ct-new", got.Ciphertext)

		_, err = s.UpdateEnvelope(ctx, 424242, env("new"), t0)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.SetDeleted(ctx, m.ID, domain.DeleteForSender)
		require.NoError(t, err)
		_, err = s.UpdateEnvelope(ctx, m.ID, env("late"), t0.Add(2*time.Minute))
		assert.ErrorIs(t, err, ErrNotFound)
		got, err = s.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "ct-new", got.Ciphertext)
	})

	t.Run("last sent ids", func(t *testing.T) {
		s := newStore(t)
		appendMsg(t, s, 1, 2, t0)
		last2 := appendMsg(t, s, 1, 2, t0)
		last3 := appendMsg(t, s, 1, 3, t0)
		appendMsg(t, s, 2, 1, t0)

		got, err := s.LastSentIDs(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{2: last2.ID, 3: last3.ID}, got)
	})

	t.Run("reactions unique per user", func(t *testing.T) {
		s := newStore(t)
		m := appendMsg(t, s, 1, 2, t0)
		require.NoError(t, s.UpsertReaction(ctx, domain.Reaction{MessageID: m.ID, UserID: 2, Emoji: "👍", CreatedAt: t0}))
		require.NoError(t, s.UpsertReaction(ctx, domain.Reaction{MessageID: m.ID, UserID: 2, Emoji: "🔥", CreatedAt: t0.Add(time.Second)}))
		require.NoError(t, s.UpsertReaction(ctx, domain.Reaction{MessageID: m.ID, UserID: 1, Emoji: "❤️", CreatedAt: t0.Add(time.Second)}))

		got, err := s.ReactionsFor(ctx, []int64{m.ID})
		require.NoError(t, err)
		require.Len(t, got[m.ID], 2)
		assert.Equal(t, int64(2), got[m.ID][0].UserID)
		assert.Equal(t, "🔥", got[m.ID][0].Emoji)

		ok, err := s.DeleteReaction(ctx, m.ID, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.DeleteReaction(ctx, m.ID, 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("friends either direction", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveRelationship(ctx, domain.Relationship{FollowerID: 1, FollowedID: 2, IsAccepted: true, CreatedAt: t0}))
		require.NoError(t, s.SaveRelationship(ctx, domain.Relationship{FollowerID: 3, FollowedID: 1, IsAccepted: false, CreatedAt: t0}))

		ok, err := s.AreFriends(ctx, 2, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.AreFriends(ctx, 1, 3)
		require.NoError(t, err)
		assert.False(t, ok)

		ids, err := s.FriendIDs(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, ids)
	})

	t.Run("chat request lifecycle", func(t *testing.T) {
		s := newStore(t)
		req := &domain.ChatRequest{ID: "req-1", SenderID: 1, ReceiverID: 2, InitialMessage: "hi", SentAt: t0}
		require.NoError(t, s.CreateChatRequest(ctx, req))
		assert.ErrorIs(t, s.CreateChatRequest(ctx, &domain.ChatRequest{ID: "req-2", SenderID: 1, ReceiverID: 2, SentAt: t0}), ErrDuplicate)

		pending, err := s.PendingChatRequestsFor(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "hi", pending[0].InitialMessage)

		_, err = s.AcceptChatRequest(ctx, 2, 1, t0)
		assert.ErrorIs(t, err, ErrNotFound)

		acc, err := s.AcceptChatRequest(ctx, 1, 2, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, acc.IsAccepted)

		_, err = s.AcceptChatRequest(ctx, 1, 2, t0.Add(time.Minute))
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := s.HasAcceptedChatRequest(ctx, 2, 1)
		require.NoError(t, err)
		assert.True(t, ok)

		peers, err := s.AcceptedChatPeers(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, peers)

		deleted, err := s.DeletePendingChatRequest(ctx, 1, 2)
		require.NoError(t, err)
		assert.False(t, deleted, "accepted requests are not pending")
	})

	t.Run("conversation key insert once", func(t *testing.T) {
		s := newStore(t)
		pair := domain.NewPair(9, 4)
		first, created, err := s.InsertConversationKeyIfAbsent(ctx, &domain.ConversationKey{Pair: pair, KeyBase64: "first", CreatedAt: t0})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "first", first.KeyBase64)

		second, created, err := s.InsertConversationKeyIfAbsent(ctx, &domain.ConversationKey{Pair: pair, KeyBase64: "second", CreatedAt: t0})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "first", second.KeyBase64)

		_, err = s.GetConversationKey(ctx, domain.NewPair(1, 2))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("vault single active entry", func(t *testing.T) {
		s := newStore(t)
		e := &domain.VaultEntry{ID: "v1", UserID: 5, EncryptedPrivateKey: "blob", CreatedAt: t0, IsActive: true}
		require.NoError(t, s.InsertVaultEntry(ctx, e))
		assert.ErrorIs(t, s.InsertVaultEntry(ctx, &domain.VaultEntry{ID: "v2", UserID: 5, CreatedAt: t0, IsActive: true}), ErrDuplicate)

		missing, err := s.VaultEntriesMissingRatchet(ctx)
		require.NoError(t, err)
		require.Len(t, missing, 1)

		ok, err := s.SetRatchetMaterial(ctx, "v1", "sealed", "age1pub")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.SetRatchetMaterial(ctx, "v1", "other", "age1other")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.ActiveVaultEntry(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "sealed", got.RatchetPrivateKeyBlob)

		require.NoError(t, s.DeactivateVaultEntry(ctx, "v1", t0.Add(time.Hour)))
		_, err = s.ActiveVaultEntry(ctx, 5)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.InsertVaultEntry(ctx, &domain.VaultEntry{ID: "v2", UserID: 5, CreatedAt: t0, IsActive: true}))
	})
}
