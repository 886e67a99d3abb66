package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/repository"
	"github.com/tradepost/messaging/pkg/validator"
	"golang.org/x/sync/singleflight"
)

// guessDomains is the fixed list tried for legacy handles that are neither
// canonical ids nor known secondary keys. Order matters: first directory hit
// wins.
var guessDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}

// Resolver maps raw participant handles to canonical identities. It is
// read-only and side-effect-free; callers re-resolve on every
// conversation-affecting operation instead of caching, since the directory can
// be corrected underneath them. Concurrent resolutions of the same handle are
// coalesced into one directory round trip.
type Resolver struct {
	directory repository.DirectoryRepository
	log       *slog.Logger
	timeout   time.Duration
	group     singleflight.Group
}

func NewResolver(directory repository.DirectoryRepository, log *slog.Logger, timeout time.Duration) *Resolver {
	return &Resolver{
		directory: directory,
		log:       log.With("component", "resolver"),
		timeout:   timeout,
	}
}

// Resolve runs the resolution chain: canonical syntax, secondary key, domain
// guessing. It fails with ErrIdentityNotFound only when every step yields
// nothing; a syntactically canonical handle always resolves, falling back to a
// display name derived from its local part if the directory has no entry.
func (r *Resolver) Resolve(ctx context.Context, rawHandle string) (domain.Identity, error) {
	handle := strings.TrimSpace(rawHandle)
	if handle == "" {
		return domain.Identity{}, ErrIdentityNotFound
	}

	v, err, _ := r.group.Do(handle, func() (any, error) {
		// The flight is shared by every coalesced caller, so its lifetime is
		// bounded by the resolver timeout, not the first caller's context.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.resolve(ctx, handle)
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return v.(domain.Identity), nil
}

func (r *Resolver) resolve(ctx context.Context, handle string) (domain.Identity, error) {
	if validator.IsCanonicalHandle(handle) {
		entry, err := r.directory.LookupByCanonicalID(ctx, handle)
		if err == nil && entry != nil {
			return entry.Identity(), nil
		}
		if err != nil {
			r.log.Warn("directory lookup failed, using handle as-is", "handle", handle, "error", err)
		}
		// Canonical syntax never hard-fails: keep the handle as the id.
		return domain.Identity{
			ID:          handle,
			DisplayName: validator.LocalPart(handle),
		}, nil
	}

	entry, err := r.directory.LookupBySecondaryKey(ctx, handle)
	if err != nil {
		return domain.Identity{}, err
	}
	if entry != nil {
		return entry.Identity(), nil
	}

	// Legacy handles: try the handle against a short list of plausible domains.
	for _, d := range guessDomains {
		guess := handle + "@" + d
		entry, err := r.directory.LookupByCanonicalID(ctx, guess)
		if err != nil {
			return domain.Identity{}, err
		}
		if entry != nil {
			r.log.Info("resolved legacy handle by domain guess", "handle", handle, "canonical", entry.CanonicalID)
			return entry.Identity(), nil
		}
	}

	return domain.Identity{}, ErrIdentityNotFound
}
