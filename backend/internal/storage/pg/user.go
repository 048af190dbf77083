package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	sharedpg "github.com/parley-dev/parley/shared/storage/pg"
)

// =========================================================================
// Public Methods (satisfy the service.AuthStorage interface)
// =========================================================================

// SaveUser inserts a user. A taken email is reported as a conflict.
func (s *Storage) SaveUser(ctx context.Context, user domain.User) (domain.UserId, error) {
	var id domain.UserId
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.saveUser(ctx, tx, user)
		return err
	})
	return id, err
}

func (s *Storage) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	return s.userBy(ctx, s.db, "email", email)
}

func (s *Storage) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	return s.userBy(ctx, s.db, "id", id)
}

// UpdatePassword replaces the hash and revokes every token issued before now.
func (s *Storage) UpdatePassword(ctx context.Context, id domain.UserId, passHash string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updatePassword(ctx, tx, id, passHash); err != nil {
			return err
		}
		return s.revokeUser(ctx, tx, id)
	})
}

// UpdateEmail changes the login address. A taken address is a conflict.
func (s *Storage) UpdateEmail(ctx context.Context, id domain.UserId, email domain.Email) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateEmail(ctx, tx, id, email)
	})
}

// DeleteUser removes the account. ON DELETE CASCADE takes assistants, files,
// conversations, messages and reset tokens along with it.
func (s *Storage) DeleteUser(ctx context.Context, id domain.UserId) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.deleteUser(ctx, tx, id); err != nil {
			return err
		}
		return s.revokeUser(ctx, tx, id)
	})
}

func (s *Storage) SetDefaultThreadHandle(ctx context.Context, id domain.UserId, handle string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.setDefaultThreadHandle(ctx, tx, id, handle)
	})
}

// RecentlyRevokedUsers returns the latest revocation time per user since the given time.
func (s *Storage) RecentlyRevokedUsers(ctx context.Context, since time.Time) (map[domain.UserId]time.Time, error) {
	return s.recentlyRevokedUsers(ctx, s.db, since)
}

func (s *Storage) SavePasswordReset(ctx context.Context, reset domain.PasswordReset) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.savePasswordReset(ctx, tx, reset)
	})
}

// ConsumePasswordReset deletes the token and returns it. Unknown and expired
// tokens are both reported as not found, so a token works at most once.
func (s *Storage) ConsumePasswordReset(ctx context.Context, tokenHash string) (domain.PasswordReset, error) {
	var reset domain.PasswordReset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		reset, err = s.consumePasswordReset(ctx, tx, tokenHash)
		return err
	})
	return reset, err
}

// =========================================================================
// Internal Methods (Core Database Logic)
// =========================================================================

func (s *Storage) saveUser(ctx context.Context, q Querier, user domain.User) (domain.UserId, error) {
	var id domain.UserId
	err := q.QueryRowContext(ctx,
		"INSERT INTO users(email, password_hash) VALUES($1, $2) RETURNING id",
		user.Email, user.PassHash,
	).Scan(&id)
	if err != nil {
		if sharedpg.IsUniqueViolation(err) {
			return -1, internal_errors.Conflict("Email is already registered")
		}
		return -1, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

// userBy fetches a user by a trusted column name.
func (s *Storage) userBy(ctx context.Context, q Querier, column string, value any) (domain.User, error) {
	var (
		user   domain.User
		thread sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, email, password_hash, default_thread_handle, created_at FROM users WHERE "+column+" = $1",
		value,
	).Scan(&user.Id, &user.Email, &user.PassHash, &thread, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, internal_errors.NotFound("User not found")
		}
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.DefaultThreadHandle = thread.String
	return user, nil
}

func (s *Storage) updatePassword(ctx context.Context, q Querier, id domain.UserId, passHash string) error {
	result, err := q.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectAffected(result, "User not found for password update")
}

func (s *Storage) updateEmail(ctx context.Context, q Querier, id domain.UserId, email domain.Email) error {
	result, err := q.ExecContext(ctx, "UPDATE users SET email = $1 WHERE id = $2", email, id)
	if err != nil {
		if sharedpg.IsUniqueViolation(err) {
			return internal_errors.Conflict("Email is already registered")
		}
		return fmt.Errorf("failed to update email: %w", err)
	}
	return expectAffected(result, "User not found for email update")
}

func (s *Storage) deleteUser(ctx context.Context, q Querier, id domain.UserId) error {
	result, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectAffected(result, "User not found for deletion")
}

func (s *Storage) revokeUser(ctx context.Context, q Querier, id domain.UserId) error {
	if _, err := q.ExecContext(ctx, "INSERT INTO user_revocations(user_id) VALUES($1)", id); err != nil {
		return fmt.Errorf("failed to record revocation: %w", err)
	}
	return nil
}

func (s *Storage) setDefaultThreadHandle(ctx context.Context, q Querier, id domain.UserId, handle string) error {
	result, err := q.ExecContext(ctx, "UPDATE users SET default_thread_handle = $1 WHERE id = $2", nullString(handle), id)
	if err != nil {
		return fmt.Errorf("failed to update default thread: %w", err)
	}
	return expectAffected(result, "User not found")
}

func (s *Storage) recentlyRevokedUsers(ctx context.Context, q Querier, since time.Time) (map[domain.UserId]time.Time, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, MAX(revoked_at)
		FROM user_revocations
		WHERE revoked_at >= $1
		GROUP BY user_id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query revocations: %w", err)
	}
	defer rows.Close()

	revoked := make(map[domain.UserId]time.Time)
	for rows.Next() {
		var (
			id domain.UserId
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan revocation: %w", err)
		}
		revoked[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revocations: %w", err)
	}
	return revoked, nil
}

func (s *Storage) savePasswordReset(ctx context.Context, q Querier, reset domain.PasswordReset) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO password_resets(token_hash, user_id, expires_at) VALUES($1, $2, $3)",
		reset.TokenHash, reset.UserId, reset.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert password reset: %w", err)
	}
	return nil
}

func (s *Storage) consumePasswordReset(ctx context.Context, q Querier, tokenHash string) (domain.PasswordReset, error) {
	var reset domain.PasswordReset
	err := q.QueryRowContext(ctx, `
		DELETE FROM password_resets
		WHERE token_hash = $1
		RETURNING token_hash, user_id, expires_at`,
		tokenHash,
	).Scan(&reset.TokenHash, &reset.UserId, &reset.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PasswordReset{}, internal_errors.NotFound("Reset token is invalid or expired")
		}
		return domain.PasswordReset{}, fmt.Errorf("failed to consume password reset: %w", err)
	}
	if time.Now().After(reset.ExpiresAt) {
		return domain.PasswordReset{}, internal_errors.NotFound("Reset token is invalid or expired")
	}
	return reset, nil
}

func expectAffected(result sql.Result, notFoundMessage string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return internal_errors.NotFound(notFoundMessage)
	}
	return nil
}
