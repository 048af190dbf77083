package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	sharedpg "github.com/parley-dev/parley/shared/storage/pg"
)

const fileColumns = "file_id, original_name, size_bytes, mime_type, purpose, owner_id, width, height, preview, created_at"

// =========================================================================
// Public Methods (satisfy the service.FileStorage interface)
// =========================================================================

func (s *Storage) SaveFile(ctx context.Context, f domain.FileRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveFile(ctx, tx, f)
	})
}

// File returns a file owned by owner, foreign files look missing.
func (s *Storage) File(ctx context.Context, owner domain.UserId, id domain.FileId) (domain.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE file_id = $1 AND owner_id = $2", id, owner)
	return scanFileRow(row)
}

// FileByHandle ignores ownership, the external handle itself is the capability.
func (s *Storage) FileByHandle(ctx context.Context, id domain.FileId) (domain.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE file_id = $1", id)
	return scanFileRow(row)
}

// FilesByIds resolves ids against the owner's files. Records come back in the
// order of ids (duplicates collapsed), missing lists the ids that did not resolve.
func (s *Storage) FilesByIds(ctx context.Context, owner domain.UserId, ids []domain.FileId) ([]domain.FileRecord, []domain.FileId, error) {
	return s.filesByIds(ctx, s.db, owner, ids)
}

func (s *Storage) ListFiles(ctx context.Context, owner domain.UserId) ([]domain.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE owner_id = $1 ORDER BY created_at DESC", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	return scanFiles(rows)
}

func (s *Storage) DeleteFile(ctx context.Context, owner domain.UserId, id domain.FileId) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM files WHERE file_id = $1 AND owner_id = $2", id, owner)
		if err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		return expectAffected(result, "File not found")
	})
}

// AssistantsReferencingFile lists the owner's assistants whose intent contains the file.
func (s *Storage) AssistantsReferencingFile(ctx context.Context, owner domain.UserId, id domain.FileId) ([]domain.AssistantId, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM assistants WHERE owner_id = $1 AND $2 = ANY(file_ids) ORDER BY id",
		owner, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assistants referencing file: %w", err)
	}
	defer rows.Close()

	var ids []domain.AssistantId
	for rows.Next() {
		var aid domain.AssistantId
		if err := rows.Scan(&aid); err != nil {
			return nil, fmt.Errorf("failed to scan assistant id: %w", err)
		}
		ids = append(ids, aid)
	}
	return ids, rows.Err()
}

// =========================================================================
// Internal Methods (Core Database Logic)
// =========================================================================

func (s *Storage) saveFile(ctx context.Context, q Querier, f domain.FileRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO files(file_id, original_name, size_bytes, mime_type, purpose, owner_id, width, height, preview)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.FileId, f.OriginalName, f.SizeBytes, f.MimeType, string(f.Purpose), f.OwnerId, f.Width, f.Height, f.Preview,
	)
	if err != nil {
		if sharedpg.IsUniqueViolation(err) {
			return internal_errors.Conflict("File already registered")
		}
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// txFiles resolves files on an open transaction.
type txFiles struct {
	s *Storage
	q Querier
}

func (t txFiles) FilesByIds(ctx context.Context, owner domain.UserId, ids []domain.FileId) ([]domain.FileRecord, []domain.FileId, error) {
	return t.s.filesByIds(ctx, t.q, owner, ids)
}

func (s *Storage) filesByIds(ctx context.Context, q Querier, owner domain.UserId, ids []domain.FileId) ([]domain.FileRecord, []domain.FileId, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	rows, err := q.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE owner_id = $1 AND file_id = ANY($2)",
		owner, pq.Array(ids),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query files: %w", err)
	}
	found, err := scanFiles(rows)
	if err != nil {
		return nil, nil, err
	}

	byId := make(map[domain.FileId]domain.FileRecord, len(found))
	for _, f := range found {
		byId[f.FileId] = f
	}
	seen := make(map[domain.FileId]bool, len(ids))
	var (
		records []domain.FileRecord
		missing []domain.FileId
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if f, ok := byId[id]; ok {
			records = append(records, f)
		} else {
			missing = append(missing, id)
		}
	}
	return records, missing, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(r rowScanner) (domain.FileRecord, error) {
	var (
		f             domain.FileRecord
		purpose       string
		width, height sql.NullInt64
	)
	if err := r.Scan(&f.FileId, &f.OriginalName, &f.SizeBytes, &f.MimeType, &purpose, &f.OwnerId, &width, &height, &f.Preview, &f.CreatedAt); err != nil {
		return domain.FileRecord{}, err
	}
	f.Purpose = domain.FilePurpose(purpose)
	if width.Valid {
		w := int(width.Int64)
		f.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		f.Height = &h
	}
	return f, nil
}

func scanFileRow(row *sql.Row) (domain.FileRecord, error) {
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FileRecord{}, internal_errors.NotFound("File not found")
		}
		return domain.FileRecord{}, fmt.Errorf("failed to query file: %w", err)
	}
	return f, nil
}

func scanFiles(rows *sql.Rows) ([]domain.FileRecord, error) {
	defer rows.Close()
	var files []domain.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return files, nil
}
