package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
)

const assistantColumns = `a.id, a.external_handle, a.owner_id, a.name, a.description, a.instructions, a.model,
	a.tools, a.file_ids, a.declared_file_ids, a.thread_handle, a.created_at, a.updated_at`

// =========================================================================
// Public Methods (satisfy the service.AssistantStorage interface)
// =========================================================================

// SaveAssistant inserts the row once the external assistant and its thread exist.
func (s *Storage) SaveAssistant(ctx context.Context, a domain.Assistant) (domain.AssistantId, error) {
	var id domain.AssistantId
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.saveAssistant(ctx, tx, a)
		return err
	})
	return id, err
}

// Assistant returns an assistant owned by owner, foreign ones look missing.
func (s *Storage) Assistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error) {
	return s.assistant(ctx, s.db, owner, id, false)
}

// ListAssistants returns the owner's assistants, newest first.
func (s *Storage) ListAssistants(ctx context.Context, owner domain.UserId) ([]domain.Assistant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+assistantColumns+" FROM assistants a WHERE a.owner_id = $1 ORDER BY a.created_at DESC",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assistants: %w", err)
	}
	return scanAssistants(rows)
}

// MutateAssistant locks the row, lets fn change the copy (fn may call out to
// the hosted service) and persists the mutable fields only when fn succeeds.
// Concurrent mutations of the same assistant are serialized by the row lock.
// File lookups made by fn go through the locking transaction so a mutation
// holds exactly one pool connection.
func (s *Storage) MutateAssistant(ctx context.Context, owner domain.UserId, id domain.AssistantId, fn func(a *domain.Assistant, files domain.FileResolver) error) (domain.Assistant, error) {
	var updated domain.Assistant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := s.assistant(ctx, tx, owner, id, true)
		if err != nil {
			return err
		}
		if err := fn(&a, txFiles{s: s, q: tx}); err != nil {
			return err
		}
		updated, err = s.updateAssistant(ctx, tx, a)
		return err
	})
	return updated, err
}

// DeleteAssistant removes the row, its conversations and messages cascade.
// The caller releases the external handles.
func (s *Storage) DeleteAssistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM assistants WHERE id = $1 AND owner_id = $2", id, owner)
		if err != nil {
			return fmt.Errorf("failed to delete assistant: %w", err)
		}
		return expectAffected(result, "Assistant not found")
	})
}

// AssistantsOutOfSync returns assistants whose declared set differs from the
// code execution subset of their intent.
func (s *Storage) AssistantsOutOfSync(ctx context.Context, limit int) ([]domain.Assistant, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH desired AS (
			SELECT a.id, ARRAY(
				SELECT f.file_id FROM files f
				WHERE f.file_id = ANY(a.file_ids) AND f.purpose = 'code_execution'
			) AS ids
			FROM assistants a
		)
		SELECT `+assistantColumns+`
		FROM assistants a
		JOIN desired d ON d.id = a.id
		WHERE NOT (a.declared_file_ids @> d.ids AND a.declared_file_ids <@ d.ids)
		ORDER BY a.updated_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query out of sync assistants: %w", err)
	}
	return scanAssistants(rows)
}

// =========================================================================
// Internal Methods (Core Database Logic)
// =========================================================================

func (s *Storage) saveAssistant(ctx context.Context, q Querier, a domain.Assistant) (domain.AssistantId, error) {
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return -1, fmt.Errorf("failed to encode tools: %w", err)
	}
	var id domain.AssistantId
	err = q.QueryRowContext(ctx, `
		INSERT INTO assistants(external_handle, owner_id, name, description, instructions, model, tools, file_ids, declared_file_ids, thread_handle)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		a.ExternalHandle, a.OwnerId, a.Name, a.Description, a.Instructions, a.Model, string(tools),
		pq.Array(nonNilIds(a.FileIds)), pq.Array(nonNilIds(a.DeclaredFileIds)), nullString(a.ThreadHandle),
	).Scan(&id)
	if err != nil {
		return -1, fmt.Errorf("failed to insert assistant: %w", err)
	}
	return id, nil
}

func (s *Storage) assistant(ctx context.Context, q Querier, owner domain.UserId, id domain.AssistantId, forUpdate bool) (domain.Assistant, error) {
	query := "SELECT " + assistantColumns + " FROM assistants a WHERE a.id = $1 AND a.owner_id = $2"
	if forUpdate {
		query += " FOR UPDATE"
	}
	a, err := scanAssistant(q.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Assistant{}, internal_errors.NotFound("Assistant not found")
		}
		return domain.Assistant{}, fmt.Errorf("failed to query assistant: %w", err)
	}
	return a, nil
}

func (s *Storage) updateAssistant(ctx context.Context, q Querier, a domain.Assistant) (domain.Assistant, error) {
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return domain.Assistant{}, fmt.Errorf("failed to encode tools: %w", err)
	}
	row := q.QueryRowContext(ctx, `
		UPDATE assistants a SET
			name = $1, description = $2, instructions = $3, model = $4, tools = $5,
			file_ids = $6, declared_file_ids = $7, thread_handle = $8, updated_at = now()
		WHERE a.id = $9
		RETURNING `+assistantColumns,
		a.Name, a.Description, a.Instructions, a.Model, string(tools),
		pq.Array(nonNilIds(a.FileIds)), pq.Array(nonNilIds(a.DeclaredFileIds)), nullString(a.ThreadHandle), a.Id,
	)
	updated, err := scanAssistant(row)
	if err != nil {
		return domain.Assistant{}, fmt.Errorf("failed to update assistant: %w", err)
	}
	return updated, nil
}

func scanAssistant(r rowScanner) (domain.Assistant, error) {
	var (
		a        domain.Assistant
		tools    []byte
		fileIds  pq.StringArray
		declared pq.StringArray
		thread   sql.NullString
	)
	err := r.Scan(&a.Id, &a.ExternalHandle, &a.OwnerId, &a.Name, &a.Description, &a.Instructions, &a.Model,
		&tools, &fileIds, &declared, &thread, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Assistant{}, err
	}
	if err := json.Unmarshal(tools, &a.Tools); err != nil {
		return domain.Assistant{}, fmt.Errorf("failed to decode tools: %w", err)
	}
	a.FileIds = []domain.FileId(fileIds)
	a.DeclaredFileIds = []domain.FileId(declared)
	a.ThreadHandle = thread.String
	return a, nil
}

func scanAssistants(rows *sql.Rows) ([]domain.Assistant, error) {
	defer rows.Close()
	var out []domain.Assistant
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assistant: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assistants: %w", err)
	}
	return out, nil
}

func nonNilIds(ids []domain.FileId) []domain.FileId {
	if ids == nil {
		return []domain.FileId{}
	}
	return ids
}
