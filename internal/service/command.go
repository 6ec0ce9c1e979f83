package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/metrics"
	"github.com/fathima-sithara/messaging-core/internal/repository"
)

type SendCommand struct {
	SenderID   int64 `validate:"gt=0"`
	ReceiverID int64 `validate:"gt=0,nefield=SenderID"`
	Envelope   domain.Envelope
	ReplyTo    *int64 `validate:"omitempty,gt=0"`
}

// Send authorizes, makes sure the conversation has a key, appends the message
// and pushes it to both participants. The append is authoritative: a failed
// push never undoes it.
func (s *Service) Send(ctx context.Context, cmd SendCommand) (*domain.Message, error) {
	if err := checkCommand(cmd); err != nil {
		return nil, err
	}
	if err := s.requireExchange(ctx, cmd.SenderID, cmd.ReceiverID); err != nil {
		return nil, err
	}

	pair := domain.NewPair(cmd.SenderID, cmd.ReceiverID)
	unlock := s.convLocks.Lock(pair)
	defer unlock()

	var msg *domain.Message
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.ensureKey(ctx, pair); err != nil {
			return err
		}
		m, err := s.store.AppendMessage(ctx, &domain.Message{
			SenderID:         cmd.SenderID,
			ReceiverID:       cmd.ReceiverID,
			Envelope:         cmd.Envelope,
			SentAt:           s.clock.Now(),
			ReplyToMessageID: cmd.ReplyTo,
		})
		msg = m
		return err
	})
	if err != nil {
		var ae *apperrors.AppError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperrors.Internal("append message", err)
	}
	metrics.MessagesAppended.Inc()
	msg.Reactions = []domain.Reaction{}

	// a copy that reaches the receiver is delivered by definition
	at := s.clock.Now()
	delivered := *msg
	delivered.IsDelivered = true
	delivered.DeliveredAt = &at
	if s.hub.Push(ctx, s.event(domain.EventMessageReceived, &delivered), cmd.ReceiverID) > 0 {
		if err := s.store.MarkDelivered(ctx, msg.ID, at); err != nil {
			s.log.Warn("mark delivered failed", zap.Int64("message_id", msg.ID), zap.Error(err))
		} else {
			msg = &delivered
		}
	}
	ev := s.event(domain.EventMessageReceived, msg)
	s.hub.Push(ctx, ev, cmd.SenderID)
	s.events.Publish(ctx, conversationKey(pair), ev, cmd.SenderID, cmd.ReceiverID)
	return msg, nil
}

type EditCommand struct {
	MessageID int64 `validate:"gt=0"`
	EditorID  int64 `validate:"gt=0"`
	Envelope  domain.Envelope
}

// loadMessage fetches a message or maps absence to ErrMessageNotFound.
func (s *Service) loadMessage(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := s.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, apperrors.Internal("load message", err)
	}
	return m, nil
}

// lockMessage loads a message, takes its conversation lock and reads it again
// under the lock. Checks made on the result hold until unlock is called.
func (s *Service) lockMessage(ctx context.Context, id int64) (*domain.Message, domain.Pair, func(), error) {
	m, err := s.loadMessage(ctx, id)
	if err != nil {
		return nil, domain.Pair{}, nil, err
	}
	pair := domain.NewPair(m.SenderID, m.ReceiverID)
	unlock := s.convLocks.Lock(pair)
	if m, err = s.loadMessage(ctx, id); err != nil {
		unlock()
		return nil, domain.Pair{}, nil, err
	}
	return m, pair, unlock, nil
}

// Edit replaces the envelope of a message the editor sent. Editing someone
// else's message, or one deleted on either side, reports NotFound, the same
// as a missing one.
func (s *Service) Edit(ctx context.Context, cmd EditCommand) (*domain.Message, error) {
	if err := checkCommand(cmd); err != nil {
		return nil, err
	}
	m, pair, unlock, err := s.lockMessage(ctx, cmd.MessageID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if m.SenderID != cmd.EditorID || !m.VisibleTo(cmd.EditorID) || m.IsDeletedForReceiver {
		return nil, apperrors.ErrMessageNotFound
	}

	updated, err := s.store.UpdateEnvelope(ctx, m.ID, cmd.Envelope, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, apperrors.Internal("edit message", err)
	}
	s.commit(ctx, pair, s.event(domain.EventMessageEdited, updated), updated.Audience()...)
	return updated, nil
}

func (s *Service) DeleteForSender(ctx context.Context, messageID, callerID int64) (*domain.Message, error) {
	return s.delete(ctx, messageID, callerID, domain.DeleteForSender)
}

func (s *Service) DeleteForEveryone(ctx context.Context, messageID, callerID int64) (*domain.Message, error) {
	return s.delete(ctx, messageID, callerID, domain.DeleteForEveryone)
}

func (s *Service) delete(ctx context.Context, messageID, callerID int64, scope domain.DeleteScope) (*domain.Message, error) {
	m, pair, unlock, err := s.lockMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if m.SenderID != callerID {
		return nil, apperrors.ErrNotMessageOwner
	}

	updated, err := s.store.SetDeleted(ctx, m.ID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, apperrors.Internal("delete message", err)
	}
	if scope == domain.DeleteForEveryone {
		s.commit(ctx, pair, s.event(domain.EventMessageDeletedForEveryone, updated), updated.SenderID, updated.ReceiverID)
	} else {
		// the receiver's copy is untouched, so only the sender's sessions hear about it
		s.commit(ctx, pair, s.event(domain.EventMessageDeletedForSender, updated), updated.SenderID)
	}
	return updated, nil
}

// React sets userID's reaction on a message, replacing any previous emoji.
// Only a message still visible to userID can be reacted to.
func (s *Service) React(ctx context.Context, messageID, userID int64, emoji string) (*domain.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if err := checkCommand(reactCommand{MessageID: messageID, UserID: userID, Emoji: emoji}); err != nil {
		return nil, err
	}
	m, pair, unlock, err := s.lockMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if !m.IsParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	if !m.VisibleTo(userID) {
		return nil, apperrors.ErrMessageNotFound
	}

	r := domain.Reaction{MessageID: m.ID, UserID: userID, Emoji: emoji, CreatedAt: s.clock.Now()}
	if err := s.store.UpsertReaction(ctx, r); err != nil {
		return nil, apperrors.Internal("save reaction", err)
	}
	payload := domain.ReactionPayload{MessageID: m.ID, UserID: userID, Emoji: emoji}
	s.commit(ctx, pair, s.event(domain.EventMessageReacted, payload), m.Audience()...)
	return &r, nil
}

func (s *Service) RemoveReaction(ctx context.Context, messageID, userID int64) error {
	m, pair, unlock, err := s.lockMessage(ctx, messageID)
	if err != nil {
		return err
	}
	defer unlock()
	if !m.IsParticipant(userID) {
		return apperrors.ErrNotParticipant
	}
	if !m.VisibleTo(userID) {
		return apperrors.ErrMessageNotFound
	}

	removed, err := s.store.DeleteReaction(ctx, m.ID, userID)
	if err != nil {
		return apperrors.Internal("remove reaction", err)
	}
	if !removed {
		return apperrors.ErrReactionMissing
	}
	payload := domain.ReactionPayload{MessageID: m.ID, UserID: userID}
	s.commit(ctx, pair, s.event(domain.EventReactionRemoved, payload), m.Audience()...)
	return nil
}

// MarkRead marks every unread message other sent to me as read and returns
// how many changed. When any did, other receives a read receipt.
func (s *Service) MarkRead(ctx context.Context, me, other int64) (int64, error) {
	if err := checkCommand(pairCommand{Me: me, Other: other}); err != nil {
		return 0, err
	}
	pair := domain.NewPair(me, other)
	unlock := s.convLocks.Lock(pair)
	defer unlock()

	n, err := s.store.MarkRead(ctx, me, other, s.clock.Now())
	if err != nil {
		return 0, apperrors.Internal("mark read", err)
	}
	if n > 0 {
		s.commit(ctx, pair, s.event(domain.EventMessagesRead, domain.ReadPayload{ReaderID: me, PeerID: other, Count: n}), other)
	}
	return n, nil
}

// Typing relays a typing indicator to the peer. Nothing is stored.
func (s *Service) Typing(ctx context.Context, from, to int64, started bool) error {
	if err := checkCommand(pairCommand{Me: from, Other: to}); err != nil {
		return err
	}
	if err := s.requireExchange(ctx, from, to); err != nil {
		return err
	}
	t := domain.EventTypingStopped
	if started {
		t = domain.EventTypingStarted
	}
	s.hub.Push(ctx, s.event(t, domain.TypingPayload{FromUserID: from, ToUserID: to}), to)
	return nil
}
