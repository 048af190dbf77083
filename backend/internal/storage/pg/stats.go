package pg

import (
	"context"
	"fmt"

	"github.com/parley-dev/parley/shared/domain"
)

func (s *Storage) UserStats(ctx context.Context, owner domain.UserId) (domain.ConversationStats, error) {
	var stats domain.ConversationStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM assistants WHERE owner_id = $1),
			(SELECT COUNT(*) FROM conversations WHERE owner_id = $1),
			(SELECT COUNT(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id WHERE c.owner_id = $1),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE owner_id = $1)`,
		owner,
	).Scan(&stats.Assistants, &stats.Conversations, &stats.Messages, &stats.StorageBytes)
	if err != nil {
		return domain.ConversationStats{}, fmt.Errorf("failed to query user stats: %w", err)
	}
	return stats, nil
}

// AssistantActivity lists the owner's assistants with conversation counts,
// most recently used first.
func (s *Storage) AssistantActivity(ctx context.Context, owner domain.UserId) ([]domain.AssistantActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.model, COUNT(c.id), MAX(c.updated_at)
		FROM assistants a
		LEFT JOIN conversations c ON c.assistant_id = a.id
		WHERE a.owner_id = $1
		GROUP BY a.id
		ORDER BY MAX(c.updated_at) DESC NULLS LAST, a.id DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assistant activity: %w", err)
	}
	defer rows.Close()

	var out []domain.AssistantActivity
	for rows.Next() {
		var row domain.AssistantActivity
		if err := rows.Scan(&row.Id, &row.Name, &row.Model, &row.Conversations, &row.LastActive); err != nil {
			return nil, fmt.Errorf("failed to scan assistant activity: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assistant activity: %w", err)
	}
	return out, nil
}
