package domain

import (
	"time"

	"github.com/google/uuid"
)

// TypingState is the ephemeral presence signal for one (conversation, identity)
// pair. Last-write-wins, never persisted, expired by the tracker's TTL.
type TypingState struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	IdentityID     string    `json:"identity_id"`
	Typing         bool      `json:"typing"`
	UpdatedAt      time.Time `json:"updated_at"`
}
