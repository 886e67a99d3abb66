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

const messageColumns = `id, conversation_id, seq, sender_id, sender_name, body, read_by, created_at`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Append runs the insert, the summary update and the unread increments in one
// transaction so no subscriber can observe a partial append. A conflicting id
// means the caller is replaying a retried send: the transaction rolls back and
// the already-stored record is returned instead.
func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, wrapErr(err)
	}
	defer tx.Rollback(ctx)

	stored := *msg
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, body, read_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO NOTHING
		RETURNING seq, created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Text, msg.ReadBy,
	).Scan(&stored.Seq, &stored.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Replay: hand back what the first attempt stored.
		existing, err := r.GetByID(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("message %s conflicted but is not readable", msg.ID)
		}
		return existing, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	// Monotonic guard: a racing append may already have stamped a later
	// summary, and row-lock order is not commit order. Both summary columns
	// compare against the same pre-update last_message_at, so text and time
	// always describe the same message.
	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = CASE WHEN $3 >= last_message_at THEN $2 ELSE last_message_text END,
			last_message_at = GREATEST(last_message_at, $3),
			unread_a = unread_a + CASE WHEN participant_a <> $4 THEN 1 ELSE 0 END,
			unread_b = unread_b + CASE WHEN participant_b <> $4 THEN 1 ELSE 0 END
		WHERE id = $1`,
		msg.ConversationID, msg.Text, stored.CreatedAt, msg.SenderID,
	)
	if err != nil {
		return nil, wrapErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr(err)
	}
	return &stored, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	var rows pgx.Rows
	var err error

	if before != nil {
		// A cursor that is not a message of this conversation yields an empty
		// page: the subquery returns no row and the comparison filters all.
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
				AND (created_at, seq) < (SELECT created_at, seq FROM messages WHERE id = $2 AND conversation_id = $1)
			ORDER BY created_at DESC, seq DESC
			LIMIT $3`, conversationID, *before, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2`, conversationID, limit)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	// Reverse to chronological order (query returns DESC).
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead is a commutative pair of updates: a containment-guarded set union on
// each message plus a counter reset. Re-running it changes nothing.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID uuid.UUID, identityID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE messages
		SET read_by = array_append(read_by, $2)
		WHERE conversation_id = $1
			AND sender_id <> $2
			AND NOT (read_by @> ARRAY[$2])`,
		conversationID, identityID,
	)
	if err != nil {
		return wrapErr(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET unread_a = CASE WHEN participant_a = $2 THEN 0 ELSE unread_a END,
			unread_b = CASE WHEN participant_b = $2 THEN 0 ELSE unread_b END
		WHERE id = $1`,
		conversationID, identityID,
	)
	if err != nil {
		return wrapErr(err)
	}

	return wrapErr(tx.Commit(ctx))
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.Seq,
		&msg.SenderID, &msg.SenderName, &msg.Text,
		&msg.ReadBy, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &msg, nil
}
