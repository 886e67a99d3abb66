package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tradepost/messaging/internal/domain"
)

const conversationColumns = `
	id, participant_a, name_a, avatar_a, unread_a,
	participant_b, name_b, avatar_b, unread_b,
	topic_ref, topic_title, topic_image,
	last_message_text, last_message_at, created_at`

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	var topicRef, topicTitle, topicImage *string
	if conv.Topic != nil {
		topicRef = &conv.Topic.Ref
		topicTitle = &conv.Topic.Title
		topicImage = conv.Topic.ImageURL
	}

	a, b := conv.Participants[0], conv.Participants[1]
	query := `
		INSERT INTO conversations (
			id, participant_a, name_a, avatar_a, unread_a,
			participant_b, name_b, avatar_b, unread_b,
			topic_ref, topic_title, topic_image,
			last_message_text, last_message_at, created_at
		)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, 0, $8, $9, $10, '', now(), now())
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		conv.ID,
		a.IdentityID, a.DisplayName, a.Avatar,
		b.IdentityID, b.DisplayName, b.Avatar,
		topicRef, topicTitle, topicImage,
	)
	if err != nil {
		return nil, false, wrapErr(err)
	}

	// Read back whichever record won the slot, ours or a concurrent creator's.
	stored, err := r.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("conversation %s vanished after create", conv.ID)
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, identityA, identityB string) (*domain.Conversation, error) {
	if identityA > identityB {
		identityA, identityB = identityB, identityA
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participant_a = $1 AND participant_b = $2`, identityA, identityB)
	return scanConversation(row)
}

func (r *ConversationRepo) ListByParticipant(ctx context.Context, identityID string) ([]domain.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY last_message_at DESC`, identityID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, wrapErr(rows.Err())
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var topicRef, topicTitle, topicImage *string
	err := row.Scan(
		&conv.ID,
		&conv.Participants[0].IdentityID, &conv.Participants[0].DisplayName,
		&conv.Participants[0].Avatar, &conv.Participants[0].Unread,
		&conv.Participants[1].IdentityID, &conv.Participants[1].DisplayName,
		&conv.Participants[1].Avatar, &conv.Participants[1].Unread,
		&topicRef, &topicTitle, &topicImage,
		&conv.LastMessageText, &conv.LastMessageAt, &conv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	if topicRef != nil {
		conv.Topic = &domain.Topic{Ref: *topicRef, ImageURL: topicImage}
		if topicTitle != nil {
			conv.Topic.Title = *topicTitle
		}
	}
	return &conv, nil
}
