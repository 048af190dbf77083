package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/parley-dev/parley/shared/domain"
)

const messageColumns = "m.id, m.conversation_id, m.role, m.content, m.attachments, m.tool_calls, m.tokens_used, m.turn_handle, m.created_at"

// Messages returns the whole ledger of an owned conversation, oldest first.
func (s *Storage) Messages(ctx context.Context, owner domain.UserId, conversation domain.ConversationId) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = $1 AND c.owner_id = $2
		ORDER BY m.id`,
		conversation, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return scanMessages(rows)
}

// RecentMessages returns at most limit latest entries, oldest first.
func (s *Storage) RecentMessages(ctx context.Context, conversation domain.ConversationId, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+`
			FROM messages m
			WHERE m.conversation_id = $1
			ORDER BY m.id DESC
			LIMIT $2
		) recent
		ORDER BY id`,
		conversation, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	return scanMessages(rows)
}

func (s *Storage) insertMessage(ctx context.Context, q Querier, msg domain.Message) (domain.MessageId, error) {
	attachments, err := jsonColumn(msg.Attachments)
	if err != nil {
		return -1, err
	}
	toolCalls, err := jsonColumn(msg.ToolCalls)
	if err != nil {
		return -1, err
	}

	var id domain.MessageId
	err = q.QueryRowContext(ctx, `
		INSERT INTO messages(conversation_id, role, content, attachments, tool_calls, tokens_used, turn_handle)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		msg.ConversationId, string(msg.Role), msg.Content, attachments, toolCalls, msg.TokensUsed, nullString(msg.TurnHandle),
	).Scan(&id)
	if err != nil {
		return -1, fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()
	var msgs []domain.Message
	for rows.Next() {
		var (
			m                      domain.Message
			role                   string
			attachments, toolCalls []byte
			turn                   sql.NullString
		)
		if err := rows.Scan(&m.Id, &m.ConversationId, &role, &m.Content, &attachments, &toolCalls, &m.TokensUsed, &turn, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.Role(role)
		m.TurnHandle = turn.String
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
		if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to decode tool calls: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return msgs, nil
}
