package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/service"
)

// Inbound frame types.
const (
	TypeSend              = "send"
	TypeEdit              = "edit"
	TypeDeleteForMe       = "delete_for_me"
	TypeDeleteForEveryone = "delete_for_everyone"
	TypeReact             = "react"
	TypeUnreact           = "unreact"
	TypeMarkRead          = "mark_read"
	TypeTypingStart       = "typing_start"
	TypeTypingStop        = "typing_stop"
)

var errMalformed = apperrors.InvalidArg("malformed frame")

// frame is what clients send. Ref is echoed back on error replies so the
// client can match them to the request.
type frame struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type sendPayload struct {
	ReceiverID int64 `json:"receiver_id"`
	domain.Envelope
	ReplyTo *int64 `json:"reply_to_message_id,omitempty"`
}

type editPayload struct {
	MessageID int64 `json:"message_id"`
	domain.Envelope
}

type messageRef struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji,omitempty"`
}

// peerRef names the other side of a conversation for mark_read and typing.
type peerRef struct {
	PeerID int64 `json:"peer_id"`
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errMalformed
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errMalformed
	}
	return nil
}

// handleFrame runs one inbound frame against the service. Results reach the
// caller as events; failures come back as an error event on this connection
// only.
func (s *Server) handleFrame(ctx context.Context, userID int64, connID string, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.replyError(connID, "", errMalformed)
		return
	}
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	if err := s.dispatch(ctx, userID, f); err != nil {
		s.replyError(connID, f.Ref, err)
	}
}

func (s *Server) dispatch(ctx context.Context, userID int64, f frame) error {
	switch f.Type {
	case TypeSend:
		var p sendPayload
		if err := decode(f.Payload, &p); err != nil {
			return err
		}
		_, err := s.svc.Send(ctx, service.SendCommand{
			SenderID:   userID,
			ReceiverID: p.ReceiverID,
			Envelope:   p.Envelope,
			ReplyTo:    p.ReplyTo,
		})
		return err

	case TypeEdit:
		var p editPayload
		if err := decode(f.Payload, &p); err != nil {
			return err
		}
		_, err := s.svc.Edit(ctx, service.EditCommand{MessageID: p.MessageID, EditorID: userID, Envelope: p.Envelope})
		return err

	case TypeDeleteForMe, TypeDeleteForEveryone:
		var p messageRef
		if err := decode(f.Payload, &p); err != nil {
			return err
		}
		var err error
		if f.Type == TypeDeleteForMe {
			_, err = s.svc.DeleteForSender(ctx, p.MessageID, userID)
		} else {
			_, err = s.svc.DeleteForEveryone(ctx, p.MessageID, userID)
		}
		return err

	case TypeReact:
		var p messageRef
		if err := decode(f.Payload, &p); err != nil {
			return err
		}
		_, err := s.svc.React(ctx, p.MessageID, userID, p.Emoji)
		return err

	case TypeUnreact:
		var p messageRef
		if err := decode(f.Payload, &p); err != nil {
			return err
		}
		return s.svc.RemoveReaction(ctx, p.MessageID, userID)

	case TypeMarkRead:
		var p peerRef
		if err := decode(f.Payload, &p); err != nil {
			return err
		}
		_, err := s.svc.MarkRead(ctx, userID, p.PeerID)
		return err

	case TypeTypingStart, TypeTypingStop:
		var p peerRef
		if err := decode(f.Payload, &p); err != nil {
			return err
		}
		return s.svc.Typing(ctx, userID, p.PeerID, f.Type == TypeTypingStart)
	}
	return apperrors.InvalidArg("unknown frame type " + f.Type)
}

func (s *Server) replyError(connID, ref string, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeInternal {
		s.log.Error("ws frame failed", zap.String("conn_id", connID), zap.Error(err))
	}
	s.hub.PushTo(connID, domain.Event{
		Type:    domain.EventError,
		Payload: domain.ErrorPayload{Code: string(code), Message: apperrors.Message(err), Ref: ref},
		At:      s.clock.Now(),
	})
}
