package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Message is one entry in a conversation's log. Text and sender are immutable
// once stored; only ReadBy grows. Seq is assigned by the store at insert time
// and breaks ties between messages with indistinguishable timestamps, so
// (CreatedAt, Seq) is a total order within a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Text           string    `json:"text"`
	Seq            int64     `json:"seq"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsReadBy reports whether the identity is in the message's read-set.
func (m *Message) IsReadBy(identityID string) bool {
	return slices.Contains(m.ReadBy, identityID)
}

// Before reports whether m sorts before other in the conversation's total order.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
