package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
)

const allAssistants domain.AssistantId = -1

const conversationColumns = `id, owner_id, assistant_id, title, thread_handle, last_turn_handle, message_count, created_at, updated_at`

// =========================================================================
// Public Methods (satisfy the service.ConversationStorage interface)
// =========================================================================

// SaveConversation inserts a conversation for an assistant of the same owner.
// Another owner's assistant is reported as not found.
func (s *Storage) SaveConversation(ctx context.Context, data domain.ConversationCreationData) (domain.Conversation, error) {
	var conv domain.Conversation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		conv, err = s.saveConversation(ctx, tx, data)
		return err
	})
	return conv, err
}

// Conversation returns a conversation owned by owner, foreign ones look missing.
func (s *Storage) Conversation(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = $1 AND owner_id = $2",
		id, owner,
	)
	return scanConversationRow(row)
}

func (s *Storage) ListConversations(ctx context.Context, owner domain.UserId) ([]domain.Conversation, error) {
	return s.listConversations(ctx, s.db, owner, allAssistants)
}

// AssistantConversations lists the owner's conversations with one assistant.
func (s *Storage) AssistantConversations(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error) {
	return s.listConversations(ctx, s.db, owner, assistant)
}

// ConversationThreads lists the external thread handles of conversations,
// optionally restricted to one assistant (assistant < 0 means all of the owner's).
func (s *Storage) ConversationThreads(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_handle FROM conversations
		WHERE owner_id = $1 AND thread_handle IS NOT NULL AND ($2 < 0 OR assistant_id = $2)`,
		owner, assistant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation threads: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan thread handle: %w", err)
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

func (s *Storage) DeleteConversation(ctx context.Context, owner domain.UserId, id domain.ConversationId) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = $1 AND owner_id = $2", id, owner)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return expectAffected(result, "Conversation not found")
	})
}

// SetConversationThread stores (or clears, with "") the external thread handle.
// Clearing also drops the continuation handle, it belonged to the old thread.
func (s *Storage) SetConversationThread(ctx context.Context, id domain.ConversationId, handle string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := "UPDATE conversations SET thread_handle = $1, updated_at = now() WHERE id = $2"
		if handle == "" {
			query = "UPDATE conversations SET thread_handle = $1, last_turn_handle = NULL, updated_at = now() WHERE id = $2"
		}
		result, err := tx.ExecContext(ctx, query, nullString(handle), id)
		if err != nil {
			return fmt.Errorf("failed to update conversation thread: %w", err)
		}
		return expectAffected(result, "Conversation not found")
	})
}

// AppendMessage inserts a ledger entry and bumps the conversation counter.
func (s *Storage) AppendMessage(ctx context.Context, msg domain.Message) (domain.MessageId, error) {
	var id domain.MessageId
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.bumpConversation(ctx, tx, msg.ConversationId); err != nil {
			return err
		}
		var err error
		id, err = s.insertMessage(ctx, tx, msg)
		return err
	})
	return id, err
}

// CompleteTurn appends the assistant entry and advances last_turn_handle, but
// only if the stored handle still equals prevHandle. A concurrent writer makes
// it fail with a conflict and nothing is written.
func (s *Storage) CompleteTurn(ctx context.Context, prevHandle string, msg domain.Message) (domain.MessageId, error) {
	var id domain.MessageId
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_turn_handle = $1, message_count = message_count + 1, updated_at = now()
			WHERE id = $2 AND last_turn_handle IS NOT DISTINCT FROM $3`,
			msg.TurnHandle, msg.ConversationId, nullString(prevHandle),
		)
		if err != nil {
			return fmt.Errorf("failed to advance turn handle: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check affected rows: %w", err)
		}
		if n == 0 {
			return internal_errors.Conflict("Conversation was modified by another turn")
		}
		id, err = s.insertMessage(ctx, tx, msg)
		return err
	})
	return id, err
}

// =========================================================================
// Internal Methods (Core Database Logic)
// =========================================================================

func (s *Storage) saveConversation(ctx context.Context, q Querier, data domain.ConversationCreationData) (domain.Conversation, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO conversations(owner_id, assistant_id, title)
		SELECT $1, a.id, $3 FROM assistants a WHERE a.id = $2 AND a.owner_id = $1
		RETURNING `+conversationColumns,
		data.Owner, data.AssistantId, data.Title,
	)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conversation{}, internal_errors.NotFound("Assistant not found")
		}
		return domain.Conversation{}, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

// listConversations returns newest first, assistant < 0 means all of them.
func (s *Storage) listConversations(ctx context.Context, q Querier, owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE owner_id = $1 AND ($2 < 0 OR assistant_id = $2) ORDER BY updated_at DESC, id DESC",
		owner, assistant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

func (s *Storage) bumpConversation(ctx context.Context, q Querier, id domain.ConversationId) error {
	result, err := q.ExecContext(ctx,
		"UPDATE conversations SET message_count = message_count + 1, updated_at = now() WHERE id = $1",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to bump message count: %w", err)
	}
	return expectAffected(result, "Conversation not found")
}

func scanConversation(r rowScanner) (domain.Conversation, error) {
	var (
		c            domain.Conversation
		thread, last sql.NullString
	)
	if err := r.Scan(&c.Id, &c.OwnerId, &c.AssistantId, &c.Title, &thread, &last, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Conversation{}, err
	}
	c.ThreadHandle = thread.String
	c.LastTurnHandle = last.String
	return c, nil
}

func scanConversationRow(row *sql.Row) (domain.Conversation, error) {
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conversation{}, internal_errors.NotFound("Conversation not found")
		}
		return domain.Conversation{}, fmt.Errorf("failed to query conversation: %w", err)
	}
	return c, nil
}
