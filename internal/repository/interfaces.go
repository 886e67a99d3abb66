package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tradepost/messaging/internal/domain"
)

// ErrUnavailable marks transient store failures (network, timeout). Callers at
// the boundary may retry these with backoff; everything else is permanent.
var ErrUnavailable = errors.New("store unavailable")

// DirectoryRepository reads the external user directory. Lookups return
// (nil, nil) when no entry matches; an error means the lookup itself failed.
type DirectoryRepository interface {
	LookupByCanonicalID(ctx context.Context, id string) (*domain.DirectoryEntry, error)
	LookupBySecondaryKey(ctx context.Context, key string) (*domain.DirectoryEntry, error)
}

// ConversationRepository owns conversation records.
type ConversationRepository interface {
	// CreateIfAbsent atomically writes conv at its id unless a record already
	// exists there. It returns the record now stored at that id and whether
	// this call created it.
	CreateIfAbsent(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	// FindByParticipants scans for a conversation holding both identities.
	// Fallback for legacy records stored under non-deterministic ids only.
	FindByParticipants(ctx context.Context, identityA, identityB string) (*domain.Conversation, error)
	ListByParticipant(ctx context.Context, identityID string) ([]domain.Conversation, error)
}

// MessageRepository owns message records and the conversation summary fields
// they drive.
type MessageRepository interface {
	// Append inserts msg and, in the same atomic unit, updates the owning
	// conversation's last-message summary and increments the unread counter of
	// every participant except the sender. Seq and CreatedAt are assigned by
	// the store. If a message with msg.ID already exists the append is a
	// replayed retry: nothing changes and the stored record is returned.
	Append(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
	// MarkRead adds identityID to the read-set of every message in the
	// conversation it did not send, and zeroes its unread counter. Idempotent.
	MarkRead(ctx context.Context, conversationID uuid.UUID, identityID string) error
}
