package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/logger"
	sharedpg "github.com/parley-dev/parley/shared/storage/pg"

	_ "github.com/lib/pq"
)

type Querier = sharedpg.Querier

type Storage struct {
	db  *sql.DB
	cfg *config.Config
}

func New(cfg *config.Config) (*Storage, error) {
	logger.Log.Info("connecting to db", "host", cfg.Private.Pg.Host, "db", cfg.Private.Pg.Dbname)
	db, err := sharedpg.Connect(cfg, sharedpg.DefaultConnectionConfig())
	if err != nil {
		return nil, err
	}
	logger.Log.Info("successfully connected to db")
	return &Storage{db: db, cfg: cfg}, nil
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return sharedpg.WithTx(ctx, s.db, fn)
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Cleanup closes the pool.
func (s *Storage) Cleanup() error {
	return s.db.Close()
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// jsonColumn encodes v for a JSONB column, nil slices become [].
// Passed as text: lib/pq would send []byte as bytea.
func jsonColumn[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}
