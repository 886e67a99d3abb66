package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/repository/memory"
)

func newTestLog(t *testing.T) (*MessageLog, *Registry, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	registry := NewRegistry(store, slog.Default(), time.Second)
	return NewMessageLog(store, store, slog.Default(), time.Second), registry, store
}

func createConv(t *testing.T, registry *Registry) *domain.Conversation {
	t.Helper()
	conv, err := registry.GetOrCreate(context.Background(), alice, bob, nil)
	require.NoError(t, err)
	return conv
}

func Test_Append_UpdatesUnreadAndSummary(t *testing.T) {
	req := require.New(t)
	log, registry, store := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	msg, err := log.Append(ctx, conv.ID, alice, "Is this available?", nil)
	req.NoError(err)
	req.Equal([]string{alice.ID}, msg.ReadBy)

	updated, err := store.GetByID(ctx, conv.ID)
	req.NoError(err)
	req.Equal("Is this available?", updated.LastMessageText)
	req.Equal(int64(0), updated.UnreadFor(alice.ID))
	req.Equal(int64(1), updated.UnreadFor(bob.ID))
}

func Test_Append_ReplyScenario(t *testing.T) {
	req := require.New(t)
	log, registry, store := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	_, err := log.Append(ctx, conv.ID, alice, "Is this available?", nil)
	req.NoError(err)
	req.NoError(log.MarkRead(ctx, conv.ID, bob.ID))
	_, err = log.Append(ctx, conv.ID, bob, "Yes", nil)
	req.NoError(err)

	// Alice's view: last message "Yes", one unread; Bob stays at zero.
	updated, err := store.GetByID(ctx, conv.ID)
	req.NoError(err)
	req.Equal("Yes", updated.LastMessageText)
	req.Equal(int64(1), updated.UnreadFor(alice.ID))
	req.Equal(int64(0), updated.UnreadFor(bob.ID))
}

func Test_Append_Validation(t *testing.T) {
	req := require.New(t)
	log, registry, _ := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	_, err := log.Append(ctx, conv.ID, alice, "   \n\t", nil)
	req.ErrorIs(err, ErrEmptyMessage)

	_, err = log.Append(ctx, uuid.New(), alice, "hello", nil)
	req.ErrorIs(err, ErrConversationNotFound)

	mallory := domain.Identity{ID: "mallory@campus.edu", DisplayName: "Mallory"}
	_, err = log.Append(ctx, conv.ID, mallory, "hello", nil)
	req.ErrorIs(err, ErrNotParticipant)
}

func Test_Append_IdempotentWithClientID(t *testing.T) {
	req := require.New(t)
	log, registry, store := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	clientID := uuid.New()
	m1, err := log.Append(ctx, conv.ID, alice, "hi", &clientID)
	req.NoError(err)
	m2, err := log.Append(ctx, conv.ID, alice, "hi", &clientID)
	req.NoError(err)

	req.Equal(m1.ID, m2.ID)
	req.Equal(m1.Seq, m2.Seq)

	// The replay must not double-count Bob's unread or duplicate the message.
	updated, err := store.GetByID(ctx, conv.ID)
	req.NoError(err)
	req.Equal(int64(1), updated.UnreadFor(bob.ID))
	msgs, err := log.List(ctx, conv.ID, alice.ID, nil, 50)
	req.NoError(err)
	req.Len(msgs, 1)
}

func Test_Append_TotalOrder(t *testing.T) {
	req := require.New(t)
	log, registry, _ := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	texts := []string{"one", "two", "three", "four", "five"}
	for i, text := range texts {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		_, err := log.Append(ctx, conv.ID, sender, text, nil)
		req.NoError(err)
	}

	msgs, err := log.List(ctx, conv.ID, alice.ID, nil, 50)
	req.NoError(err)
	req.Len(msgs, len(texts))
	for i, msg := range msgs {
		req.Equal(texts[i], msg.Text)
		if i > 0 {
			req.True(msgs[i-1].Before(&msgs[i]), "messages must be totally ordered")
		}
	}
}

func Test_MarkRead_Idempotent(t *testing.T) {
	req := require.New(t)
	log, registry, store := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	_, err := log.Append(ctx, conv.ID, alice, "hello", nil)
	req.NoError(err)
	_, err = log.Append(ctx, conv.ID, alice, "anyone there?", nil)
	req.NoError(err)

	for i := 0; i < 2; i++ {
		req.NoError(log.MarkRead(ctx, conv.ID, bob.ID))

		updated, err := store.GetByID(ctx, conv.ID)
		req.NoError(err)
		req.Equal(int64(0), updated.UnreadFor(bob.ID))

		msgs, err := log.List(ctx, conv.ID, bob.ID, nil, 50)
		req.NoError(err)
		for _, msg := range msgs {
			req.True(msg.IsReadBy(bob.ID))
			// Bob appears exactly once regardless of how often we mark.
			count := 0
			for _, id := range msg.ReadBy {
				if id == bob.ID {
					count++
				}
			}
			req.Equal(1, count)
		}
	}
}

func Test_MarkRead_DoesNotTouchOwnMessages(t *testing.T) {
	req := require.New(t)
	log, registry, _ := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	_, err := log.Append(ctx, conv.ID, bob, "mine", nil)
	req.NoError(err)
	req.NoError(log.MarkRead(ctx, conv.ID, bob.ID))

	msgs, err := log.List(ctx, conv.ID, bob.ID, nil, 50)
	req.NoError(err)
	req.Equal([]string{bob.ID}, msgs[0].ReadBy)
}

func Test_List_Pagination(t *testing.T) {
	req := require.New(t)
	log, registry, _ := newTestLog(t)
	conv := createConv(t, registry)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := log.Append(ctx, conv.ID, alice, "msg", nil)
		req.NoError(err)
	}

	page, err := log.List(ctx, conv.ID, alice.ID, nil, 4)
	req.NoError(err)
	req.Len(page, 4)

	older, err := log.List(ctx, conv.ID, alice.ID, &page[0].ID, 4)
	req.NoError(err)
	req.Len(older, 4)
	req.True(older[len(older)-1].Before(&page[0]))
}
