package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"vidstream/internal/auth"
	"vidstream/internal/logging"
	"vidstream/internal/models"
)

// AccountStore is the slice of persistence the session manager needs.
// The pgx implementation lives in internal/store; tests use an in-memory fake.
type AccountStore interface {
	FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	// RotateRefreshToken swaps old for new in a single conditional update and
	// reports whether the swap happened.
	RotateRefreshToken(ctx context.Context, id uuid.UUID, old, new string) (bool, error)
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type Manager struct {
	log      *slog.Logger
	accounts AccountStore
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenIssuer
}

func NewManager(log *slog.Logger, accounts AccountStore, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer) *Manager {
	return &Manager{log: log, accounts: accounts, hasher: hasher, tokens: tokens}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type LoginResult struct {
	Account models.AccountProjection `json:"account"`
	TokenPair
}

// Login resolves the account by username or email, checks the password and
// rotates in a fresh token pair. Unknown identifier and wrong password both
// come back as ErrUnauthorized so responses cannot enumerate accounts; the
// distinction is only logged.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", ErrValidation)
	}

	acct, err := m.accounts.FindByUsernameOrEmail(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		m.log.Info("login_unknown_identifier", "identifier", identifier)
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: account lookup: %v", ErrUpstream, err)
	}

	if !m.hasher.Verify(password, acct.PasswordHash) {
		m.log.Info("login_bad_password", "account_id", acct.ID)
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	pair, err := m.mint(acct)
	if err != nil {
		return nil, err
	}

	// overwrite unconditionally: a login from a second place invalidates the
	// refresh token held by the first
	if err := m.accounts.SetRefreshToken(ctx, acct.ID, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("%w: persisting refresh token: %v", ErrUpstream, err)
	}

	m.log.Info("login_ok", "account_id", acct.ID, "username", acct.Username)
	return &LoginResult{Account: acct.Projection(), TokenPair: *pair}, nil
}

// Refresh exchanges a still-valid refresh token for a new pair. The swap is a
// compare-and-set keyed on the presented value, so each token is exchangeable
// exactly once; a replayed or raced token fails closed.
func (m *Manager) Refresh(ctx context.Context, incoming string) (*TokenPair, error) {
	if strings.TrimSpace(incoming) == "" {
		return nil, fmt.Errorf("%w: missing refresh token", ErrUnauthorized)
	}

	claims, err := m.tokens.VerifyRefresh(incoming)
	if err != nil {
		// expired and tampered are indistinguishable to the caller
		m.log.Info("refresh_verify_failed", "reason", err.Error(), "token", logging.MaskToken(incoming))
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	id, _ := uuid.Parse(claims.ID)
	acct, err := m.accounts.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		m.log.Info("refresh_unknown_account", "account_id", claims.ID)
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: account lookup: %v", ErrUpstream, err)
	}

	if acct.RefreshToken == nil ||
		subtle.ConstantTimeCompare([]byte(incoming), []byte(*acct.RefreshToken)) != 1 {
		m.log.Warn("refresh_token_reuse", "account_id", acct.ID, "token", logging.MaskToken(incoming))
		return nil, fmt.Errorf("%w: refresh token is expired or used", ErrUnauthorized)
	}

	pair, err := m.mint(acct)
	if err != nil {
		return nil, err
	}

	swapped, err := m.accounts.RotateRefreshToken(ctx, acct.ID, incoming, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: rotating refresh token: %v", ErrUpstream, err)
	}
	if !swapped {
		// a concurrent refresh won the swap between our read and our write
		m.log.Warn("refresh_lost_race", "account_id", acct.ID)
		return nil, fmt.Errorf("%w: refresh token is expired or used", ErrUnauthorized)
	}

	m.log.Info("refresh_rotated", "account_id", acct.ID)
	return pair, nil
}

// Logout drops the stored refresh token. Calling it again is a no-op.
func (m *Manager) Logout(ctx context.Context, id uuid.UUID) error {
	if err := m.accounts.ClearRefreshToken(ctx, id); err != nil {
		return fmt.Errorf("%w: clearing refresh token: %v", ErrUpstream, err)
	}
	m.log.Info("logout_ok", "account_id", id)
	return nil
}

// ChangePassword swaps the stored hash after verifying the old password.
// The current refresh token stays valid.
func (m *Manager) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrValidation)
	}

	acct, err := m.accounts.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
	}
	if err != nil {
		return fmt.Errorf("%w: account lookup: %v", ErrUpstream, err)
	}

	if !m.hasher.Verify(oldPassword, acct.PasswordHash) {
		m.log.Info("change_password_bad_old", "account_id", id)
		return fmt.Errorf("%w: invalid old password", ErrUnauthorized)
	}

	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: hashing password: %v", ErrUpstream, err)
	}
	if err := m.accounts.UpdatePasswordHash(ctx, id, hash); err != nil {
		return fmt.Errorf("%w: storing password: %v", ErrUpstream, err)
	}

	m.log.Info("password_changed", "account_id", id)
	return nil
}

func (m *Manager) mint(acct *models.Account) (*TokenPair, error) {
	access, err := m.tokens.IssueAccess(acct.ID, acct.Email, acct.Username, acct.FullName)
	if err != nil {
		return nil, fmt.Errorf("%w: signing access token: %v", ErrUpstream, err)
	}
	refresh, err := m.tokens.IssueRefresh(acct.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: signing refresh token: %v", ErrUpstream, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
