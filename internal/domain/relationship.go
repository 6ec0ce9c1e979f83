package domain

import "time"

// Relationship is a directed follow edge. Two users are friends when an accepted
// edge exists in either direction.
type Relationship struct {
	FollowerID int64     `bson:"follower_id" json:"follower_id"`
	FollowedID int64     `bson:"followed_id" json:"followed_id"`
	IsAccepted bool      `bson:"is_accepted" json:"is_accepted"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

type ChatRequest struct {
	ID             string     `bson:"_id" json:"id"`
	SenderID       int64      `bson:"sender_id" json:"sender_id"`
	ReceiverID     int64      `bson:"receiver_id" json:"receiver_id"`
	InitialMessage string     `bson:"initial_message" json:"initial_message"`
	SentAt         time.Time  `bson:"sent_at" json:"sent_at"`
	IsAccepted     bool       `bson:"is_accepted" json:"is_accepted"`
	AcceptedAt     *time.Time `bson:"accepted_at,omitempty" json:"accepted_at,omitempty"`
}
