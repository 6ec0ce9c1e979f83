package domain

import "time"

// Envelope is the AEAD output produced client side. The server stores and relays
// it but never decrypts it.
type Envelope struct {
	IV         string `bson:"iv" json:"iv" validate:"required"`
	Ciphertext string `bson:"ciphertext" json:"ciphertext" validate:"required"`
	AuthTag    string `bson:"auth_tag" json:"auth_tag" validate:"required"`
}

type Message struct {
	ID         int64 `bson:"_id" json:"id"`
	SenderID   int64 `bson:"sender_id" json:"sender_id"`
	ReceiverID int64 `bson:"receiver_id" json:"receiver_id"`

	Envelope `bson:",inline"`

	SentAt           time.Time `bson:"sent_at" json:"sent_at"`
	ReplyToMessageID *int64    `bson:"reply_to_message_id,omitempty" json:"reply_to_message_id,omitempty"`

	IsEdited bool       `bson:"is_edited" json:"is_edited"`
	EditedAt *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`

	IsDeletedForSender   bool `bson:"is_deleted_for_sender" json:"is_deleted_for_sender"`
	IsDeletedForReceiver bool `bson:"is_deleted_for_receiver" json:"is_deleted_for_receiver"`

	IsDelivered bool       `bson:"is_delivered" json:"is_delivered"`
	DeliveredAt *time.Time `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	IsRead      bool       `bson:"is_read" json:"is_read"`
	ReadAt      *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`

	// Reactions live in their own collection and are attached on read.
	Reactions []Reaction `bson:"-" json:"reactions"`
}

func (m *Message) IsParticipant(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// VisibleTo reports whether the message is still shown on userID's side.
func (m *Message) VisibleTo(userID int64) bool {
	switch userID {
	case m.SenderID:
		return !m.IsDeletedForSender
	case m.ReceiverID:
		return !m.IsDeletedForReceiver
	}
	return false
}

// Audience returns the participants that still see the message.
func (m *Message) Audience() []int64 {
	out := make([]int64, 0, 2)
	for _, id := range []int64{m.SenderID, m.ReceiverID} {
		if m.VisibleTo(id) {
			out = append(out, id)
		}
	}
	return out
}

// Peer returns the other participant.
func (m *Message) Peer(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

type Reaction struct {
	MessageID int64     `bson:"message_id" json:"message_id"`
	UserID    int64     `bson:"user_id" json:"user_id"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// DeleteScope selects which visibility flags a delete clears.
type DeleteScope int

const (
	DeleteForSender DeleteScope = iota
	DeleteForEveryone
)
