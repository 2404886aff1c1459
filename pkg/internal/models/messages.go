package models

import "time"

type MessageStatus string

const (
	MessageStatusSending = MessageStatus("sending")
	MessageStatusSent    = MessageStatus("sent")
)

// ChatMessage is one entry in a conversation timeline. Server-originated
// entries carry ID; locally-originated entries carry ClientID until the
// server echo promotes them.
type ChatMessage struct {
	ID         string        `json:"id,omitempty"`
	ClientID   string        `json:"clientId,omitempty"`
	SenderID   FlexID        `json:"sender_id"`
	ReceiverID FlexID        `json:"receiver_id"`
	Content    string        `json:"content"`
	CreatedAt  FlexTime      `json:"created_at,omitempty"`
	Status     MessageStatus `json:"status,omitempty"`
}

// Involves reports whether the message belongs to the conversation between
// a and b, in either direction.
func (m ChatMessage) Involves(a, b string) bool {
	return (string(m.SenderID) == a && string(m.ReceiverID) == b) ||
		(string(m.SenderID) == b && string(m.ReceiverID) == a)
}

// MessageRecord is the client-local history cache row for a confirmed
// message.
type MessageRecord struct {
	BaseModel

	MessageID  string    `json:"message_id" gorm:"uniqueIndex"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sent_at"`
}

// ToMessage rebuilds the timeline entry a cached row stands for.
func (r MessageRecord) ToMessage() ChatMessage {
	return ChatMessage{
		ID:         r.MessageID,
		SenderID:   FlexID(r.SenderID),
		ReceiverID: FlexID(r.ReceiverID),
		Content:    r.Content,
		CreatedAt:  FlexTime(r.SentAt),
		Status:     MessageStatusSent,
	}
}
