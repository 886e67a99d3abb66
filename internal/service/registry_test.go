package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/repository/memory"
)

var (
	alice = domain.Identity{ID: "alice@campus.edu", DisplayName: "Alice", Avatar: "A"}
	bob   = domain.Identity{ID: "bob@campus.edu", DisplayName: "Bob", Avatar: "B"}
)

func newTestRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewRegistry(store, slog.Default(), time.Second), store
}

func Test_GetOrCreate_SameIDForBothOrders(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	c1, err := registry.GetOrCreate(ctx, alice, bob, nil)
	req.NoError(err)
	c2, err := registry.GetOrCreate(ctx, bob, alice, nil)
	req.NoError(err)
	req.Equal(c1.ID, c2.ID)
}

func Test_GetOrCreate_ConcurrentFirstContact(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	const callers = 16
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := registry.GetOrCreate(ctx, a, b, nil)
			require.NoError(t, err)
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		req.Equal(ids[0], id)
	}
}

func Test_GetOrCreate_SelfConversation(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry(t)

	_, err := registry.GetOrCreate(context.Background(), alice, alice, nil)
	req.ErrorIs(err, ErrSelfConversation)
}

func Test_GetOrCreate_SnapshotsAndZeroCounters(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry(t)

	topic := &domain.Topic{Ref: "listing-42", Title: "Desk lamp"}
	conv, err := registry.GetOrCreate(context.Background(), bob, alice, topic)
	req.NoError(err)

	// Participants stored sorted by canonical id, names/avatars snapshotted.
	req.Equal("alice@campus.edu", conv.Participants[0].IdentityID)
	req.Equal("Alice", conv.Participants[0].DisplayName)
	req.Equal("A", conv.Participants[0].Avatar)
	req.Equal("bob@campus.edu", conv.Participants[1].IdentityID)
	req.Equal(int64(0), conv.Participants[0].Unread)
	req.Equal(int64(0), conv.Participants[1].Unread)
	req.Equal("listing-42", conv.Topic.Ref)
}

func Test_GetOrCreate_PairScoped_IgnoresTopicOnReuse(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	c1, err := registry.GetOrCreate(ctx, alice, bob, &domain.Topic{Ref: "listing-1"})
	req.NoError(err)
	c2, err := registry.GetOrCreate(ctx, alice, bob, &domain.Topic{Ref: "listing-2"})
	req.NoError(err)

	req.Equal(c1.ID, c2.ID)
	req.Equal("listing-1", c2.Topic.Ref)
}

func Test_GetOrCreate_ReusesLegacyRecord(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t)
	ctx := context.Background()

	// A record stored under a random (pre-deterministic) id.
	legacy := &domain.Conversation{
		ID: uuid.New(),
		Participants: [2]domain.Participant{
			{IdentityID: alice.ID, DisplayName: "Alice"},
			{IdentityID: bob.ID, DisplayName: "Bob"},
		},
	}
	_, created, err := store.CreateIfAbsent(ctx, legacy)
	req.NoError(err)
	req.True(created)

	conv, err := registry.GetOrCreate(ctx, alice, bob, nil)
	req.NoError(err)
	req.Equal(legacy.ID, conv.ID)
}

func Test_GetOrCreate_CanonicalizesBeforeKeying(t *testing.T) {
	req := require.New(t)
	store := memory.NewStore()
	store.AddDirectoryEntry(domain.DirectoryEntry{
		CanonicalID:  "bob@campus.edu",
		SecondaryKey: "seller_bob",
		DisplayName:  "Bob",
	})
	store.AddDirectoryEntry(domain.DirectoryEntry{
		CanonicalID: "alice@campus.edu",
		DisplayName: "Alice",
	})
	resolver := NewResolver(store, slog.Default(), time.Second)
	registry := NewRegistry(store, slog.Default(), time.Second)
	ctx := context.Background()

	// First contact via the legacy seller handle.
	self, err := resolver.Resolve(ctx, "alice@campus.edu")
	req.NoError(err)
	other, err := resolver.Resolve(ctx, "seller_bob")
	req.NoError(err)
	c1, err := registry.GetOrCreate(ctx, self, other, nil)
	req.NoError(err)

	// Later contact via the canonical address reuses the same conversation.
	other2, err := resolver.Resolve(ctx, "bob@campus.edu")
	req.NoError(err)
	c2, err := registry.GetOrCreate(ctx, self, other2, nil)
	req.NoError(err)
	req.Equal(c1.ID, c2.ID)
}

func Test_Get_UnknownAndForeignConversations(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Get(ctx, uuid.New(), alice.ID)
	req.ErrorIs(err, ErrConversationNotFound)

	conv, err := registry.GetOrCreate(ctx, alice, bob, nil)
	req.NoError(err)
	_, err = registry.Get(ctx, conv.ID, "mallory@campus.edu")
	req.ErrorIs(err, ErrNotParticipant)
}
