package sqlite

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

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.recipient_id, m.kind, m.body,
	m.media_url, m.media_type, m.created_at, m.seen_at, m.edited_at, m.deleted_for_everyone, m.deleted_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages
			(conversation_id, sender_id, recipient_id, kind, body, media_url, media_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ConversationID, m.SenderID, m.RecipientID, string(m.Kind), m.Body,
		m.MediaURL, m.MediaType, m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id)
	return scanMessage(row)
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID, viewerID string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.conversation_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_hides h WHERE h.message_id = m.id AND h.user_id = ?
		  )
		ORDER BY m.id DESC
		LIMIT ?
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
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET seen_at = ?
		WHERE conversation_id = ? AND recipient_id = ? AND seen_at IS NULL
	`, at.UTC(), conversationID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepo) UpdateBody(ctx context.Context, id int64, body string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET body = ?, edited_at = ?
		WHERE id = ? AND deleted_for_everyone = 0
	`, body, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return expectOneRow(res)
}

func (r *MessageRepo) SoftDeleteForEveryone(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET deleted_for_everyone = 1, deleted_at = ?, body = ''
		WHERE id = ?
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return expectOneRow(res)
}

func (r *MessageRepo) HideForUser(ctx context.Context, id int64, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_hides (message_id, user_id, hidden_at)
		VALUES (?, ?, ?)
	`, id, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

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
