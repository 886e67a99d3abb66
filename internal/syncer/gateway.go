package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/repository"
	"github.com/tradepost/messaging/pkg/retry"
)

const messagePage = 200

// Gateway implements the subscription contracts: each Subscribe* delivers a
// current snapshot, then re-delivers whenever a relevant change event arrives.
// Delivery is at-least-once; a refresh collapses however many events queued up
// behind it. All callbacks run on a per-subscription goroutine, so a slow
// consumer only delays itself.
type Gateway struct {
	broker *Broker
	convs  repository.ConversationRepository
	msgs   repository.MessageRepository
	log    *slog.Logger

	opTimeout     time.Duration
	retryAttempts int
	retryBackoff  time.Duration
}

func NewGateway(broker *Broker, convs repository.ConversationRepository, msgs repository.MessageRepository, log *slog.Logger, opTimeout time.Duration) *Gateway {
	return &Gateway{
		broker:        broker,
		convs:         convs,
		msgs:          msgs,
		log:           log.With("component", "syncer"),
		opTimeout:     opTimeout,
		retryAttempts: 3,
		retryBackoff:  100 * time.Millisecond,
	}
}

// SubscribeConversations delivers identity's conversation list, most recent
// message first, and re-delivers it whenever any member conversation changes.
func (g *Gateway) SubscribeConversations(identityID string, onChange func([]domain.Conversation)) func() {
	sub, cancel := g.broker.subscribe(func(ev *Event) bool {
		switch ev.Kind {
		case KindConversationUpdated, KindMessageAppended, KindMessagesRead:
			return lo.Contains(ev.ParticipantIDs, identityID)
		}
		return false
	})

	go g.run(sub, func() {
		convs, err := g.fetchConversations(identityID)
		if err != nil {
			g.log.Error("conversation list refresh failed", "identity", identityID, "error", err)
			return
		}
		onChange(convs)
	})
	return cancel
}

// SubscribeMessages delivers the ordered message list of a conversation and
// re-delivers on every append or read-state change.
func (g *Gateway) SubscribeMessages(conversationID uuid.UUID, onChange func([]domain.Message)) func() {
	sub, cancel := g.broker.subscribe(func(ev *Event) bool {
		switch ev.Kind {
		case KindMessageAppended, KindMessagesRead:
			return ev.ConversationID == conversationID
		}
		return false
	})

	go g.run(sub, func() {
		msgs, err := g.fetchMessages(conversationID)
		if err != nil {
			g.log.Error("message list refresh failed", "conversation", conversationID, "error", err)
			return
		}
		onChange(msgs)
	})
	return cancel
}

// SubscribeTyping delivers whether the participant other than selfID is
// currently typing in the conversation. Initial state is always "not typing".
func (g *Gateway) SubscribeTyping(conversationID uuid.UUID, selfID string, onChange func(bool)) func() {
	sub, cancel := g.broker.subscribe(func(ev *Event) bool {
		return ev.Kind == KindTyping &&
			ev.ConversationID == conversationID &&
			ev.Typing != nil &&
			ev.Typing.IdentityID != selfID
	})

	go func() {
		onChange(false)
		for {
			select {
			case <-sub.signal:
				batch := sub.take()
				if len(batch) == 0 {
					continue
				}
				last := batch[len(batch)-1]
				if !sub.alive() {
					return
				}
				onChange(last.Typing.Typing)
			case <-sub.done:
				return
			}
		}
	}()
	return cancel
}

// SubscribeAppends hands every newly appended message to fn, one at a time.
// This is the hook for the push-notification dispatcher.
func (g *Gateway) SubscribeAppends(fn func(domain.Message)) func() {
	sub, cancel := g.broker.subscribe(func(ev *Event) bool {
		return ev.Kind == KindMessageAppended && ev.Message != nil
	})

	go func() {
		for {
			select {
			case <-sub.signal:
				for _, ev := range sub.take() {
					if !sub.alive() {
						return
					}
					fn(*ev.Message)
				}
			case <-sub.done:
				return
			}
		}
	}()
	return cancel
}

// run executes refresh once for the initial snapshot, then once per wake-up.
func (g *Gateway) run(sub *subscription, refresh func()) {
	refresh()
	for {
		select {
		case <-sub.signal:
			sub.take()
			if !sub.alive() {
				return
			}
			refresh()
		case <-sub.done:
			return
		}
	}
}

func (sub *subscription) alive() bool {
	select {
	case <-sub.done:
		return false
	default:
		return true
	}
}

func (g *Gateway) fetchConversations(identityID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := g.withRetry(func(ctx context.Context) error {
		var err error
		convs, err = g.convs.ListByParticipant(ctx, identityID)
		return err
	})
	return convs, err
}

func (g *Gateway) fetchMessages(conversationID uuid.UUID) ([]domain.Message, error) {
	var msgs []domain.Message
	err := g.withRetry(func(ctx context.Context) error {
		var err error
		msgs, err = g.msgs.ListByConversation(ctx, conversationID, nil, messagePage)
		return err
	})
	return msgs, err
}

func (g *Gateway) withRetry(fn func(context.Context) error) error {
	return retry.Do(context.Background(), g.retryAttempts, g.retryBackoff,
		func(err error) bool { return errors.Is(err, repository.ErrUnavailable) },
		func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, g.opTimeout)
			defer cancel()
			return fn(ctx)
		})
}
