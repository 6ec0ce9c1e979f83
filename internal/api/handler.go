package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
	"github.com/fathima-sithara/messaging-core/internal/middleware"
	"github.com/fathima-sithara/messaging-core/internal/service"
	"github.com/fathima-sithara/messaging-core/internal/utils"
)

var errInvalidPayload = apperrors.InvalidArg("invalid payload")

func caller(c *fiber.Ctx) (domain.Identity, error) {
	id, ok := middleware.Identity(c)
	if !ok {
		return domain.Identity{}, apperrors.ErrUnauthenticated
	}
	return id, nil
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || !utils.ValidateVar(v, "gt=0") {
		return 0, apperrors.InvalidArg("invalid " + name)
	}
	return v, nil
}

// bind parses the body into req and checks its validate tags.
func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return errInvalidPayload
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.InvalidArg(utils.Join(errs))
	}
	return nil
}

type sendMessageReq struct {
	ReceiverID int64 `json:"receiver_id"`
	domain.Envelope
	ReplyTo *int64 `json:"reply_to_message_id,omitempty"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	var req sendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return errInvalidPayload
	}
	msg, err := s.svc.Send(c.UserContext(), service.SendCommand{
		SenderID:   me.UserID,
		ReceiverID: req.ReceiverID,
		Envelope:   req.Envelope,
		ReplyTo:    req.ReplyTo,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	msgID, err := idParam(c, "msg_id")
	if err != nil {
		return err
	}
	var env domain.Envelope
	if err := c.BodyParser(&env); err != nil {
		return errInvalidPayload
	}
	msg, err := s.svc.Edit(c.UserContext(), service.EditCommand{MessageID: msgID, EditorID: me.UserID, Envelope: env})
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	msgID, err := idParam(c, "msg_id")
	if err != nil {
		return err
	}

	var msg *domain.Message
	switch c.Query("scope", "me") {
	case "me":
		msg, err = s.svc.DeleteForSender(c.UserContext(), msgID, me.UserID)
	case "everyone":
		msg, err = s.svc.DeleteForEveryone(c.UserContext(), msgID, me.UserID)
	default:
		return apperrors.InvalidArg("scope must be me or everyone")
	}
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

type reactReq struct {
	Emoji string `json:"emoji" validate:"required"`
}

func (s *Server) react(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	msgID, err := idParam(c, "msg_id")
	if err != nil {
		return err
	}
	var req reactReq
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := s.svc.React(c.UserContext(), msgID, me.UserID, req.Emoji)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) unreact(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	msgID, err := idParam(c, "msg_id")
	if err != nil {
		return err
	}
	if err := s.svc.RemoveReaction(c.UserContext(), msgID, me.UserID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listConversation(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	peer, err := idParam(c, "peer_id")
	if err != nil {
		return err
	}
	msgs, err := s.svc.Conversation(c.UserContext(), me.UserID, peer)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	peer, err := idParam(c, "peer_id")
	if err != nil {
		return err
	}
	n, err := s.svc.MarkRead(c.UserContext(), me.UserID, peer)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": n})
}

func (s *Server) unreadCounts(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	counts, err := s.svc.UnreadCounts(c.UserContext(), me.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"counts": counts})
}

type chatRequestReq struct {
	ReceiverID     int64  `json:"receiver_id" validate:"gt=0"`
	InitialMessage string `json:"initial_message" validate:"max=1000"`
}

func (s *Server) sendChatRequest(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	var req chatRequestReq
	if err := bind(c, &req); err != nil {
		return err
	}
	cr, err := s.svc.SendChatRequest(c.UserContext(), me.UserID, req.ReceiverID, req.InitialMessage)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cr)
}

func (s *Server) pendingChatRequests(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	reqs, err := s.svc.PendingChatRequests(c.UserContext(), me.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"requests": reqs})
}

func (s *Server) acceptChatRequest(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	requester, err := idParam(c, "requester_id")
	if err != nil {
		return err
	}
	cr, err := s.svc.AcceptChatRequest(c.UserContext(), me.UserID, requester)
	if err != nil {
		return err
	}
	return c.JSON(cr)
}

func (s *Server) declineChatRequest(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	requester, err := idParam(c, "requester_id")
	if err != nil {
		return err
	}
	if err := s.svc.DeclineChatRequest(c.UserContext(), me.UserID, requester); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) conversationKey(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	peer, err := idParam(c, "peer_id")
	if err != nil {
		return err
	}
	k, err := s.svc.ConversationKey(c.UserContext(), me.UserID, peer)
	if err != nil {
		return err
	}
	return c.JSON(k)
}

func (s *Server) publicKey(c *fiber.Ctx) error {
	user, err := idParam(c, "user_id")
	if err != nil {
		return err
	}
	jwk, err := s.svc.GetPublicKey(c.UserContext(), user)
	if err != nil {
		return err
	}
	ratchet, err := s.svc.RatchetPublicKey(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user_id": user, "public_key": jwk, "ratchet_public_key": ratchet})
}

func (s *Server) privateKey(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	target, err := idParam(c, "user_id")
	if err != nil {
		return err
	}
	mat, err := s.svc.GetPrivateMaterial(c.UserContext(), me, target)
	if err != nil {
		return err
	}
	return c.JSON(mat)
}

func (s *Server) provisionKeys(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	e, err := s.svc.Provision(c.UserContext(), me.UserID)
	if err != nil {
		return err
	}
	return c.JSON(e)
}

func (s *Server) rotateKeys(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	e, err := s.svc.Rotate(c.UserContext(), me.UserID)
	if err != nil {
		return err
	}
	return c.JSON(e)
}

func (s *Server) onlineContacts(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	online, err := s.svc.OnlineContacts(c.UserContext(), me.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user_ids": online})
}

type relationshipReq struct {
	FollowerID int64 `json:"follower_id" validate:"gt=0"`
	FollowedID int64 `json:"followed_id" validate:"gt=0"`
	IsAccepted bool  `json:"is_accepted"`
}

// saveRelationship mirrors a follow edge from the external follow graph.
func (s *Server) saveRelationship(c *fiber.Ctx) error {
	me, err := caller(c)
	if err != nil {
		return err
	}
	if !me.IsAdmin {
		return apperrors.ErrAdminOnly
	}
	var req relationshipReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.Follow(c.UserContext(), req.FollowerID, req.FollowedID, req.IsAccepted); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
