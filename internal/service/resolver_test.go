package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/repository/memory"
)

func newTestResolver(t *testing.T) (*Resolver, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewResolver(store, slog.Default(), time.Second), store
}

func Test_Resolve_CanonicalHandle_WithDirectoryEntry(t *testing.T) {
	req := require.New(t)
	resolver, store := newTestResolver(t)
	store.AddDirectoryEntry(domain.DirectoryEntry{
		CanonicalID: "alice@campus.edu",
		DisplayName: "Alice",
		Avatar:      "A",
	})

	identity, err := resolver.Resolve(context.Background(), "alice@campus.edu")
	req.NoError(err)
	req.Equal("alice@campus.edu", identity.ID)
	req.Equal("Alice", identity.DisplayName)
	req.Equal("A", identity.Avatar)
}

func Test_Resolve_CanonicalHandle_NeverHardFails(t *testing.T) {
	req := require.New(t)
	resolver, _ := newTestResolver(t)

	// No directory entry: keep the handle, derive a name from the local part.
	identity, err := resolver.Resolve(context.Background(), "ghost@campus.edu")
	req.NoError(err)
	req.Equal("ghost@campus.edu", identity.ID)
	req.Equal("ghost", identity.DisplayName)
}

func Test_Resolve_SecondaryKey(t *testing.T) {
	req := require.New(t)
	resolver, store := newTestResolver(t)
	store.AddDirectoryEntry(domain.DirectoryEntry{
		CanonicalID:  "bob@campus.edu",
		SecondaryKey: "seller_bob",
		DisplayName:  "Bob",
	})

	identity, err := resolver.Resolve(context.Background(), "seller_bob")
	req.NoError(err)
	req.Equal("bob@campus.edu", identity.ID)
	req.Equal("Bob", identity.DisplayName)
}

func Test_Resolve_DomainGuessing(t *testing.T) {
	req := require.New(t)
	resolver, store := newTestResolver(t)
	store.AddDirectoryEntry(domain.DirectoryEntry{
		CanonicalID: "carol@yahoo.com",
		DisplayName: "Carol",
	})

	// "carol" is not canonical syntax and has no secondary key, so the
	// resolver walks the guess list until the directory answers.
	identity, err := resolver.Resolve(context.Background(), "carol")
	req.NoError(err)
	req.Equal("carol@yahoo.com", identity.ID)
}

func Test_Resolve_ExhaustedChain(t *testing.T) {
	req := require.New(t)
	resolver, _ := newTestResolver(t)

	_, err := resolver.Resolve(context.Background(), "nobody")
	req.ErrorIs(err, ErrIdentityNotFound)
}

func Test_Resolve_EmptyHandle(t *testing.T) {
	req := require.New(t)
	resolver, _ := newTestResolver(t)

	_, err := resolver.Resolve(context.Background(), "   ")
	req.ErrorIs(err, ErrIdentityNotFound)
}

// blockingDirectory holds every secondary-key lookup until release is closed,
// signalling started on the first one. Lets a test cancel a caller while the
// coalesced flight is still in the directory.
type blockingDirectory struct {
	entry   domain.DirectoryEntry
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *blockingDirectory) LookupByCanonicalID(context.Context, string) (*domain.DirectoryEntry, error) {
	return nil, nil
}

func (d *blockingDirectory) LookupBySecondaryKey(ctx context.Context, _ string) (*domain.DirectoryEntry, error) {
	d.once.Do(func() { close(d.started) })
	select {
	case <-d.release:
		e := d.entry
		return &e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func Test_Resolve_CoalescedCallersSurviveFirstCallerCancel(t *testing.T) {
	req := require.New(t)
	dir := &blockingDirectory{
		entry: domain.DirectoryEntry{
			CanonicalID:  "bob@campus.edu",
			SecondaryKey: "seller_bob",
			DisplayName:  "Bob",
		},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	resolver := NewResolver(dir, slog.Default(), time.Second)

	type result struct {
		identity domain.Identity
		err      error
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	first := make(chan result, 1)
	go func() {
		id, err := resolver.Resolve(ctx1, "seller_bob")
		first <- result{id, err}
	}()
	<-dir.started

	second := make(chan result, 1)
	go func() {
		id, err := resolver.Resolve(context.Background(), "seller_bob")
		second <- result{id, err}
	}()
	time.Sleep(20 * time.Millisecond) // let the second caller join the flight

	// The first caller disconnects while the lookup is in flight. The flight
	// must keep going for the caller that is still waiting on it.
	cancel1()
	close(dir.release)

	res := <-second
	req.NoError(res.err)
	req.Equal("bob@campus.edu", res.identity.ID)

	res = <-first
	req.NoError(res.err)
	req.Equal("bob@campus.edu", res.identity.ID)
}
