package domain

import (
	"time"

	"github.com/google/uuid"
)

// pairNamespace is the fixed namespace for deterministic conversation ids.
var pairNamespace = uuid.MustParse("7f1a6b3e-4c82-49d1-9f0a-2d5e8c7b4a10")

// PairKey derives the deterministic conversation id for an unordered pair of
// canonical identity ids. Both orderings produce the same id, which is what
// lets create-if-absent collapse racing first contacts into one record.
func PairKey(identityA, identityB string) uuid.UUID {
	a, b := identityA, identityB
	if a > b {
		a, b = b, a
	}
	return uuid.NewSHA1(pairNamespace, []byte(a+"\x00"+b))
}

// Topic is the opaque listing reference a conversation may be about.
// Immutable after creation.
type Topic struct {
	Ref      string  `json:"ref"`
	Title    string  `json:"title,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

// Participant is a conversation-local snapshot of one identity, taken at
// creation time, plus that identity's unread counter.
type Participant struct {
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Unread      int64  `json:"unread"`
}

// Conversation pairs exactly two identities. Participants are stored sorted by
// identity id so the pair is canonical regardless of who made first contact.
type Conversation struct {
	ID              uuid.UUID      `json:"id"`
	Participants    [2]Participant `json:"participants"`
	Topic           *Topic         `json:"topic,omitempty"`
	LastMessageText string         `json:"last_message_text"`
	LastMessageAt   time.Time      `json:"last_message_at"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Has reports whether the identity is one of the two participants.
func (c *Conversation) Has(identityID string) bool {
	return c.Participants[0].IdentityID == identityID || c.Participants[1].IdentityID == identityID
}

// Other returns the participant that is not the given identity.
func (c *Conversation) Other(identityID string) (Participant, bool) {
	switch identityID {
	case c.Participants[0].IdentityID:
		return c.Participants[1], true
	case c.Participants[1].IdentityID:
		return c.Participants[0], true
	}
	return Participant{}, false
}

// UnreadFor returns the unread counter for the given identity, 0 if the
// identity is not a participant.
func (c *Conversation) UnreadFor(identityID string) int64 {
	for _, p := range c.Participants {
		if p.IdentityID == identityID {
			return p.Unread
		}
	}
	return 0
}

// ParticipantIDs returns both canonical ids in stored (sorted) order.
func (c *Conversation) ParticipantIDs() []string {
	return []string{c.Participants[0].IdentityID, c.Participants[1].IdentityID}
}
