package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tradepost/messaging/internal/domain"
)

// DirectoryRepo reads the marketplace's user directory table. The messaging
// core never writes it.
type DirectoryRepo struct {
	pool *pgxpool.Pool
}

func NewDirectoryRepo(pool *pgxpool.Pool) *DirectoryRepo {
	return &DirectoryRepo{pool: pool}
}

func (r *DirectoryRepo) LookupByCanonicalID(ctx context.Context, id string) (*domain.DirectoryEntry, error) {
	return r.scanEntry(ctx, `
		SELECT canonical_id, COALESCE(secondary_key, ''), display_name, avatar
		FROM directory_entries
		WHERE canonical_id = $1`, id)
}

func (r *DirectoryRepo) LookupBySecondaryKey(ctx context.Context, key string) (*domain.DirectoryEntry, error) {
	return r.scanEntry(ctx, `
		SELECT canonical_id, COALESCE(secondary_key, ''), display_name, avatar
		FROM directory_entries
		WHERE secondary_key = $1`, key)
}

func (r *DirectoryRepo) scanEntry(ctx context.Context, query string, arg any) (*domain.DirectoryEntry, error) {
	var e domain.DirectoryEntry
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&e.CanonicalID, &e.SecondaryKey, &e.DisplayName, &e.Avatar,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &e, nil
}
