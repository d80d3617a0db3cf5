package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftspace/backend/internal/domain"
)

// PostgresRepository implements domain.ConversationRepository and
// domain.MessageRepository using PostgreSQL.
//
// Conversations carry their participants and last-message preview as
// JSONB on the row, plus the canonical (user_a, user_b) pair columns
// guarded by a unique constraint. Messages carry attachments and
// reactions as JSONB so every aggregate mutation is a single-row write.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

// CreateConversation inserts a new conversation. A concurrent insert of
// the same pair surfaces as domain.ErrConversationExists.
func (r *PostgresRepository) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	participants, err := json.Marshal(conv.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}

	userA, userB := domain.CanonicalPair(conv.Participants[0].UserID, conv.Participants[1].UserID)

	query := `
		INSERT INTO conversations (id, user_a, user_b, created_by, participants, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		conv.ID,
		userA,
		userB,
		conv.CreatedBy,
		participants,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrConversationExists
		}
		return err
	}
	return nil
}

// GetConversationByID retrieves a conversation by ID
func (r *PostgresRepository) GetConversationByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, created_by, participants, last_message, created_at, updated_at
		FROM conversations WHERE id = $1
	`
	row := r.db.QueryRow(ctx, query, id)
	return scanConversation(row)
}

// GetConversationByParticipantPair retrieves the conversation for a
// canonical pair
func (r *PostgresRepository) GetConversationByParticipantPair(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, created_by, participants, last_message, created_at, updated_at
		FROM conversations WHERE user_a = $1 AND user_b = $2
	`
	row := r.db.QueryRow(ctx, query, a, b)
	return scanConversation(row)
}

// ListConversationsByUser retrieves a user's conversations, most recent
// activity first
func (r *PostgresRepository) ListConversationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	query := `
		SELECT id, created_by, participants, last_message, created_at, updated_at
		FROM conversations
		WHERE user_a = $1 OR user_b = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// UpdateConversation persists participant read-state and the
// last-message preview
func (r *PostgresRepository) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	participants, err := json.Marshal(conv.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	var lastMessage []byte
	if conv.LastMessage != nil {
		lastMessage, err = json.Marshal(conv.LastMessage)
		if err != nil {
			return fmt.Errorf("failed to encode last message: %w", err)
		}
	}

	query := `
		UPDATE conversations
		SET participants = $2, last_message = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, conv.ID, participants, lastMessage, conv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// DeleteConversation hard-removes a conversation
func (r *PostgresRepository) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// CreateMessage inserts a new message row
func (r *PostgresRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return fmt.Errorf("failed to encode reactions: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, attachments, reactions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		attachments,
		reactions,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	return err
}

// GetMessageByID retrieves a message by ID
func (r *PostgresRepository) GetMessageByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, messageSelect+` WHERE id = $1`, id)
	return scanMessage(row)
}

// ListMessagesByConversation pages messages newest first using a keyset
// cursor on (created_at, id), which stays stable under concurrent
// inserts where offset pagination would duplicate or skip rows.
func (r *PostgresRepository) ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID, cursor domain.Cursor, limit int) ([]*domain.Message, domain.Cursor, error) {
	var rows pgx.Rows
	var err error

	if cursor.IsZero() {
		query := messageSelect + `
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		rows, err = r.db.Query(ctx, query, conversationID, limit+1)
	} else {
		query := messageSelect + `
			WHERE conversation_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		rows, err = r.db.Query(ctx, query, conversationID, cursor.CreatedAt, cursor.ID, limit+1)
	}
	if err != nil {
		return nil, domain.Cursor{}, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, domain.Cursor{}, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Cursor{}, err
	}

	var next domain.Cursor
	if len(msgs) > limit {
		msgs = msgs[:limit]
		last := msgs[len(msgs)-1]
		next = domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return msgs, next, nil
}

// MutateMessage runs fn against the current row under a row lock and
// writes the result back in the same transaction. This serializes
// concurrent toggles of the same message so the read-then-decide logic
// cannot race.
func (r *PostgresRepository) MutateMessage(ctx context.Context, id uuid.UUID, fn func(*domain.Message) error) (*domain.Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, messageSelect+` WHERE id = $1 FOR UPDATE`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, err
	}

	if err := fn(msg); err != nil {
		return nil, err
	}

	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reactions: %w", err)
	}

	query := `
		UPDATE messages
		SET content = $2, attachments = $3, reactions = $4, updated_at = $5, edited_at = $6, deleted_at = $7
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		msg.ID,
		msg.Content,
		attachments,
		reactions,
		msg.UpdatedAt,
		msg.EditedAt,
		msg.DeletedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessagesByConversation removes all messages of a conversation
func (r *PostgresRepository) DeleteMessagesByConversation(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	return err
}

const messageSelect = `
	SELECT id, conversation_id, sender_id, content, attachments, reactions, created_at, updated_at, edited_at, deleted_at
	FROM messages`

// Helper functions for scanning rows

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var participants []byte
	var lastMessage []byte

	err := row.Scan(
		&conv.ID,
		&conv.CreatedBy,
		&participants,
		&lastMessage,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(participants, &conv.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	if len(lastMessage) > 0 {
		var preview domain.MessagePreview
		if err := json.Unmarshal(lastMessage, &preview); err != nil {
			return nil, fmt.Errorf("failed to decode last message: %w", err)
		}
		conv.LastMessage = &preview
	}
	return &conv, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	var attachments []byte
	var reactions []byte

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&attachments,
		&reactions,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.EditedAt,
		&msg.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
		return nil, fmt.Errorf("failed to decode reactions: %w", err)
	}
	return &msg, nil
}
