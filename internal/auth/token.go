package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessClaims carry enough identity to render a session without a lookup.
type AccessClaims struct {
	jwt.RegisteredClaims
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// RefreshClaims carry the account id only, to limit replay value.
type RefreshClaims struct {
	jwt.RegisteredClaims
	ID string `json:"id"`
}

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenIssuer mints and verifies HS256-signed access and refresh tokens.
// It is pure over its config and the clock; it knows nothing about storage.
type TokenIssuer struct {
	cfg TokenConfig
}

func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg}
}

func (ti *TokenIssuer) IssueAccess(id uuid.UUID, email, username, fullName string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.cfg.AccessTTL)),
		},
		ID:       id.String(),
		Email:    email,
		Username: username,
		FullName: fullName,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ti.cfg.AccessSecret))
}

func (ti *TokenIssuer) IssueRefresh(id uuid.UUID) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.cfg.RefreshTTL)),
		},
		ID: id.String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ti.cfg.RefreshSecret))
}

// VerifyAccess returns the claims of a valid access token. Expired tokens
// come back as ErrTokenExpired, everything else as ErrTokenInvalid; callers
// must treat both as authentication failure but may log them apart.
func (ti *TokenIssuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ti.verify(token, claims, ti.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (ti *TokenIssuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ti.verify(token, claims, ti.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (ti *TokenIssuer) verify(token string, claims jwt.Claims, secret string) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
