package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/metrics"
	"github.com/tradepost/messaging/internal/repository"
)

// MessageLog appends messages and tracks read state. Append side effects
// (summary, unread counters) are applied atomically by the repository; this
// layer does validation, participant checks and event publication.
type MessageLog struct {
	msgs     repository.MessageRepository
	convs    repository.ConversationRepository
	notifier Notifier
	log      *slog.Logger
	timeout  time.Duration
}

func NewMessageLog(msgs repository.MessageRepository, convs repository.ConversationRepository, log *slog.Logger, timeout time.Duration) *MessageLog {
	return &MessageLog{
		msgs:    msgs,
		convs:   convs,
		log:     log.With("component", "messagelog"),
		timeout: timeout,
	}
}

func (l *MessageLog) SetNotifier(n Notifier) {
	l.notifier = n
}

// Append stores one message from sender. clientID, when non-nil, is the
// caller's idempotency token: retrying an append with the same id is a no-op
// that returns the originally stored message.
func (l *MessageLog) Append(ctx context.Context, conversationID uuid.UUID, sender domain.Identity, text string, clientID *uuid.UUID) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conv, err := l.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.Has(sender.ID) {
		return nil, ErrNotParticipant
	}

	id := uuid.New()
	if clientID != nil && *clientID != uuid.Nil {
		id = *clientID
	}
	msg := &domain.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Text:           text,
		ReadBy:         []string{sender.ID},
	}

	stored, err := l.msgs.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	metrics.MessagesAppended.Inc()

	if l.notifier != nil {
		// Re-read so subscribers see the post-append summary and counters.
		updated, err := l.convs.GetByID(ctx, conversationID)
		if err != nil || updated == nil {
			updated = conv
		}
		l.notifier.NotifyNewMessage(updated, stored)
	}
	return stored, nil
}

// List returns a page of the conversation's log in (send time, seq) order,
// ending just before the message id in before when set.
func (l *MessageLog) List(ctx context.Context, conversationID uuid.UUID, identityID string, before *uuid.UUID, limit int) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conv, err := l.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.Has(identityID) {
		return nil, ErrNotParticipant
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := l.msgs.ListByConversation(ctx, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// MarkRead adds the identity to the read-set of every message it has not sent
// and resets its unread counter. Safe to call on every open and on every
// arrival while open; the second call in a row changes nothing.
func (l *MessageLog) MarkRead(ctx context.Context, conversationID uuid.UUID, identityID string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conv, err := l.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.Has(identityID) {
		return ErrNotParticipant
	}

	if err := l.msgs.MarkRead(ctx, conversationID, identityID); err != nil {
		return fmt.Errorf("marking conversation read: %w", err)
	}

	if l.notifier != nil {
		l.notifier.NotifyRead(conv, identityID)
	}
	return nil
}
