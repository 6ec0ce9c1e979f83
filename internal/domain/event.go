package domain

import "time"

type EventType string

const (
	EventMessageReceived           EventType = "message_received"
	EventMessageEdited             EventType = "message_edited"
	EventMessageDeletedForSender   EventType = "message_deleted_for_sender"
	EventMessageDeletedForEveryone EventType = "message_deleted_for_everyone"
	EventMessageReacted            EventType = "message_reacted"
	EventReactionRemoved           EventType = "reaction_removed"
	EventMessagesRead              EventType = "messages_read"
	EventUserOnline                EventType = "user_online"
	EventUserOffline               EventType = "user_offline"
	EventOnlineFriendsSnapshot     EventType = "online_friends_snapshot"
	EventChatRequestReceived       EventType = "chat_request_received"
	EventChatRequestAccepted       EventType = "chat_request_accepted"
	EventTypingStarted             EventType = "typing_started"
	EventTypingStopped             EventType = "typing_stopped"
	EventError                     EventType = "error"
)

// Event is the outbound real-time unit pushed to connections.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

type ReactionPayload struct {
	MessageID int64  `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Emoji     string `json:"emoji,omitempty"`
}

type PresencePayload struct {
	UserID int64 `json:"user_id"`
}

type SnapshotPayload struct {
	UserIDs []int64 `json:"user_ids"`
}

type TypingPayload struct {
	FromUserID int64 `json:"from_user_id"`
	ToUserID   int64 `json:"to_user_id"`
}

type ReadPayload struct {
	ReaderID int64 `json:"reader_id"`
	PeerID   int64 `json:"peer_id"`
	Count    int64 `json:"count"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}
