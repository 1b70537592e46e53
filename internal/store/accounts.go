package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vidstream/internal/db"
	"vidstream/internal/models"
	"vidstream/internal/session"
)

const uniqueViolation = "23505"

// Accounts is the pgx-backed account store.
type Accounts struct {
	db *db.DB
}

func NewAccounts(dbConn *db.DB) *Accounts {
	return &Accounts{db: dbConn}
}

const accountColumns = `id, username, email, full_name, password_hash, refresh_token,
	avatar_url, avatar_key, cover_url, cover_key, watch_history, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FullName, &a.PasswordHash, &a.RefreshToken,
		&a.AvatarURL, &a.AvatarKey, &a.CoverURL, &a.CoverKey, &a.WatchHistory, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return &a, nil
}

// Create inserts a new account. Username and email arrive already lowercased
// and trimmed; a duplicate of either maps to session.ErrConflict.
func (s *Accounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	row := s.db.Pool.QueryRow(ctx,
		`INSERT INTO accounts (id, username, email, full_name, password_hash, avatar_url, avatar_key, cover_url, cover_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+accountColumns,
		a.ID, a.Username, a.Email, a.FullName, a.PasswordHash, a.AvatarURL, a.AvatarKey, a.CoverURL, a.CoverKey,
	)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: username or email already taken", session.ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

func (s *Accounts) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Accounts) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

// ExistsByUsernameOrEmail is the pre-insert conflict check for registration.
// The unique indexes still backstop it against races.
func (s *Accounts) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1 OR email = $2)`,
		username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username/email: %w", err)
	}
	return exists, nil
}

// FindByUsernameOrEmail resolves a login identifier, which may be either.
func (s *Accounts) FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.Account, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1 OR email = $1`, identifier)
	return scanAccount(row)
}

func (s *Accounts) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE accounts SET refresh_token = $2, updated_at = now() WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("setting refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// RotateRefreshToken is the compare-and-set that makes rotation single-use:
// the update only lands if the stored token still equals old.
func (s *Accounts) RotateRefreshToken(ctx context.Context, id uuid.UUID, old, new string) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE accounts SET refresh_token = $3, updated_at = now()
		 WHERE id = $1 AND refresh_token = $2`, id, old, new)
	if err != nil {
		return false, fmt.Errorf("rotating refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Accounts) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	// no row check: clearing an already-cleared token is a no-op
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE accounts SET refresh_token = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	return nil
}

func (s *Accounts) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Accounts) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*models.Account, error) {
	row := s.db.Pool.QueryRow(ctx,
		`UPDATE accounts SET full_name = $2, email = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+accountColumns,
		id, fullName, email)
	updated, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: email already taken", session.ErrConflict)
		}
		return nil, err
	}
	return updated, nil
}

// UpdateAvatar swaps the avatar reference and hands back the replaced object
// key so the caller can delete the old upload.
func (s *Accounts) UpdateAvatar(ctx context.Context, id uuid.UUID, url, key string) (*models.Account, string, error) {
	return s.updateImage(ctx, id, url, key, "avatar_url", "avatar_key")
}

func (s *Accounts) UpdateCover(ctx context.Context, id uuid.UUID, url, key string) (*models.Account, string, error) {
	return s.updateImage(ctx, id, url, key, "cover_url", "cover_key")
}

func (s *Accounts) updateImage(ctx context.Context, id uuid.UUID, url, key, urlCol, keyCol string) (*models.Account, string, error) {
	// urlCol/keyCol are fixed identifiers chosen above, never caller input
	row := s.db.Pool.QueryRow(ctx,
		`UPDATE accounts a SET `+urlCol+` = $2, `+keyCol+` = $3, updated_at = now()
		 FROM (SELECT id, `+keyCol+` AS old_key FROM accounts WHERE id = $1 FOR UPDATE) prev
		 WHERE a.id = prev.id
		 RETURNING `+prefixedAccountColumns("a")+`, prev.old_key`,
		id, url, key)

	var a models.Account
	var oldKey string
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FullName, &a.PasswordHash, &a.RefreshToken,
		&a.AvatarURL, &a.AvatarKey, &a.CoverURL, &a.CoverKey, &a.WatchHistory, &a.CreatedAt, &a.UpdatedAt,
		&oldKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", session.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("updating %s: %w", urlCol, err)
	}
	return &a, oldKey, nil
}

func prefixedAccountColumns(alias string) string {
	return alias + `.id, ` + alias + `.username, ` + alias + `.email, ` + alias + `.full_name, ` +
		alias + `.password_hash, ` + alias + `.refresh_token, ` + alias + `.avatar_url, ` +
		alias + `.avatar_key, ` + alias + `.cover_url, ` + alias + `.cover_key, ` +
		alias + `.watch_history, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// RecordView prepends the video to the account's watch history; re-watching
// moves it back to the front. The view counter lives with the video store.
func (s *Accounts) RecordView(ctx context.Context, id, videoID uuid.UUID) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE accounts
		 SET watch_history = array_prepend($2::uuid, array_remove(watch_history, $2::uuid)),
		     updated_at = now()
		 WHERE id = $1`, id, videoID)
	if err != nil {
		return fmt.Errorf("recording view: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account", session.ErrNotFound)
	}
	return nil
}
