package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"carelink/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `m.id, m.conversation_id::text, m.sender_id, m.recipient_id, m.kind, m.body,
	m.media_url, m.media_type, m.created_at, m.seen_at, m.edited_at, m.deleted_for_everyone, m.deleted_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO messages
			(conversation_id, sender_id, recipient_id, kind, body, media_url, media_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, m.ConversationID, m.SenderID, m.RecipientID, string(m.Kind), m.Body,
		m.MediaURL, m.MediaType, m.CreatedAt,
	).Scan(&m.ID)
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id)
	return scanMessage(row)
}

// ListForConversation excludes messages the viewer hid via "delete for me".
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID, viewerID string, limit int) ([]*domain.Message, error) {
	if !validID(conversationID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN message_hides h
		       ON h.message_id = m.id AND h.user_id = $2
		WHERE m.conversation_id = $1
		  AND h.user_id IS NULL
		ORDER BY m.id DESC
		LIMIT $3
	`, conversationID, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(res)
	return res, nil
}

func (r *MessageRepo) MarkSeen(ctx context.Context, conversationID, recipientID string, at time.Time) (int64, error) {
	if !validID(conversationID) {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET seen_at = $1
		WHERE conversation_id = $2 AND recipient_id = $3 AND seen_at IS NULL
	`, at, conversationID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepo) UpdateBody(ctx context.Context, id int64, body string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET body = $1, edited_at = $2
		WHERE id = $3 AND deleted_for_everyone = FALSE
	`, body, at, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return expectOneRow(res)
}

func (r *MessageRepo) SoftDeleteForEveryone(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET deleted_for_everyone = TRUE, deleted_at = $1, body = ''
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return expectOneRow(res)
}

func (r *MessageRepo) HideForUser(ctx context.Context, id int64, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_hides (message_id, user_id, hidden_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, id, userID, at)
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMessage(s scanner) (*domain.Message, error) {
	m := &domain.Message{}
	err := s.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID, &m.Kind, &m.Body,
		&m.MediaURL, &m.MediaType, &m.CreatedAt, &m.SeenAt, &m.EditedAt,
		&m.DeletedForEveryone, &m.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return m, nil
}
