package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
)

// Conversation returns the messages between me and other that are visible on
// me's side, oldest first (sent_at, then id), with reactions attached.
// Messages addressed to me that were never pushed live count as delivered
// once fetched here.
func (s *Service) Conversation(ctx context.Context, me, other int64) ([]*domain.Message, error) {
	msgs, err := s.store.ListConversation(ctx, me, other)
	if err != nil {
		return nil, apperrors.Internal("list conversation", err)
	}

	undelivered := false
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		if m.ReceiverID == me && !m.IsDelivered {
			undelivered = true
		}
	}

	if undelivered {
		at := s.clock.Now()
		if _, err := s.store.MarkDeliveredFrom(ctx, me, other, at); err != nil {
			s.log.Warn("mark delivered on fetch failed", zap.Int64("user_id", me), zap.Int64("peer_id", other), zap.Error(err))
		} else {
			for _, m := range msgs {
				if m.ReceiverID == me && !m.IsDelivered {
					m.IsDelivered = true
					t := at
					m.DeliveredAt = &t
				}
			}
		}
	}

	reactions, err := s.store.ReactionsFor(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal("load reactions", err)
	}
	for _, m := range msgs {
		m.Reactions = reactions[m.ID]
		if m.Reactions == nil {
			m.Reactions = []domain.Reaction{}
		}
	}
	return msgs, nil
}

// UnreadCounts buckets me's unread messages by sender, counting only
// messages newer than the last message me sent back to that sender. A reply
// is treated as acknowledging everything before it, so this can undercount.
func (s *Service) UnreadCounts(ctx context.Context, me int64) (map[int64]int, error) {
	unread, err := s.store.UnreadReceived(ctx, me)
	if err != nil {
		return nil, apperrors.Internal("load unread", err)
	}
	lastSent, err := s.store.LastSentIDs(ctx, me)
	if err != nil {
		return nil, apperrors.Internal("load last sent", err)
	}

	counts := make(map[int64]int)
	for _, m := range unread {
		if m.ID > lastSent[m.SenderID] {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}
