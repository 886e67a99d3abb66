package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/metrics"
	"github.com/tradepost/messaging/internal/repository"
)

// Registry creates or reuses the single conversation for a pair of canonical
// identities.
type Registry struct {
	convs    repository.ConversationRepository
	notifier Notifier
	log      *slog.Logger
	timeout  time.Duration
}

func NewRegistry(convs repository.ConversationRepository, log *slog.Logger, timeout time.Duration) *Registry {
	return &Registry{
		convs:   convs,
		log:     log.With("component", "registry"),
		timeout: timeout,
	}
}

func (r *Registry) SetNotifier(n Notifier) {
	r.notifier = n
}

// GetOrCreate returns the conversation for the pair (a, b), creating it on
// first contact. The id is derived from the sorted pair, so both sides racing
// their first message land on the same record: the create is an atomic
// create-if-absent, and the loser simply reads back the winner. A topic is
// snapshotted only at creation; conversations are pair-scoped, so a later call
// about a different listing reuses the same record and keeps the original
// topic.
func (r *Registry) GetOrCreate(ctx context.Context, a, b domain.Identity, topic *domain.Topic) (*domain.Conversation, error) {
	if a.ID == b.ID {
		return nil, ErrSelfConversation
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id := domain.PairKey(a.ID, b.ID)
	existing, err := r.convs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	// Legacy records predate deterministic ids; scan before creating so we do
	// not split an old thread in two. New records never take this path.
	legacy, err := r.convs.FindByParticipants(ctx, a.ID, b.ID)
	if err != nil {
		return nil, fmt.Errorf("scanning legacy conversations: %w", err)
	}
	if legacy != nil {
		return legacy, nil
	}

	if a.ID > b.ID {
		a, b = b, a
	}
	conv := &domain.Conversation{
		ID: id,
		Participants: [2]domain.Participant{
			{IdentityID: a.ID, DisplayName: a.DisplayName, Avatar: a.Avatar},
			{IdentityID: b.ID, DisplayName: b.DisplayName, Avatar: b.Avatar},
		},
		Topic: topic,
	}

	stored, created, err := r.convs.CreateIfAbsent(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if created {
		metrics.ConversationsCreated.Inc()
		r.log.Info("conversation created", "conversation", stored.ID,
			"participants", stored.ParticipantIDs())
		if r.notifier != nil {
			r.notifier.NotifyConversationUpdated(stored)
		}
	}
	return stored, nil
}

// Get returns the conversation by id, ErrConversationNotFound if unknown, and
// ErrNotParticipant when identityID is not one of the pair.
func (r *Registry) Get(ctx context.Context, id uuid.UUID, identityID string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conv, err := r.convs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.Has(identityID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// List returns every conversation involving the identity, most recent message
// first.
func (r *Registry) List(ctx context.Context, identityID string) ([]domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	convs, err := r.convs.ListByParticipant(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}
