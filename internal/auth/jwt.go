package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/model"
	"github.com/yolla/server/internal/repo"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultIssuer          = "yolla"
)

// TokenKind distinguishes access from refresh tokens
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// jwtClaims is the signed claim set
type jwtClaims struct {
	Role model.Role `json:"role"`
	Kind TokenKind  `json:"typ"`
	jwt.RegisteredClaims
}

// Claims are the validated token claims exposed for authorization
type Claims struct {
	SubjectID uuid.UUID
	Role      model.Role
	Kind      TokenKind
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is an independently signed access and refresh token
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenConfig configures token lifetimes. Zero values take the defaults.
type TokenConfig struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues, validates, rotates and revokes JWTs
type TokenService struct {
	keys        *KeyRing
	revocations repo.RevocationRepo
	clock       clock.Clock
	cfg         TokenConfig
	parser      *jwt.Parser
}

// NewTokenService creates a new token service
func NewTokenService(keys *KeyRing, revocations repo.RevocationRepo, clk clock.Clock, cfg TokenConfig) *TokenService {
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}
	return &TokenService{
		keys:        keys,
		revocations: revocations,
		clock:       clk,
		cfg:         cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
	}
}

// Issue signs a fresh access and refresh token for the principal
func (s *TokenService) Issue(principal model.Principal) (TokenPair, error) {
	if principal.ID == uuid.Nil || !principal.Role.Valid() {
		return TokenPair{}, apperr.New(apperr.KindValidation, "principal id and role are required")
	}

	now := s.clock.Now()
	access, accessExp, err := s.sign(principal, TokenAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, refreshExp, err := s.sign(principal, TokenRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(principal model.Principal, kind TokenKind, now time.Time, ttl time.Duration) (string, time.Time, error) {
	jti, err := newTokenID()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := &jwtClaims{
		Role: principal.Role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   principal.ID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}

	tokenString, err := s.keys.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, exp.Time, nil
}

// Validate checks signature, expiry, revocation and kind, in that order
func (s *TokenService) Validate(ctx context.Context, tokenString string, kind TokenKind) (Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return Claims{}, err
	}

	revoked, err := s.revocations.Contains(ctx, claims.TokenID)
	if err != nil {
		return Claims{}, fmt.Errorf("revocation lookup: %w", err)
	}
	if revoked {
		return Claims{}, apperr.ErrRevoked
	}

	if claims.Kind != kind {
		return Claims{}, apperr.New(apperr.KindWrongKind, fmt.Sprintf("expected %s token, got %s", kind, claims.Kind))
	}
	return claims, nil
}

// parse verifies signature and expiry and decodes the claim set. It does not consult the revocation set.
func (s *TokenService) parse(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, apperr.New(apperr.KindMalformed, "token is empty")
	}

	token, err := s.parser.ParseWithClaims(tokenString, &jwtClaims{}, s.keys.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperr.ErrExpired
		}
		return Claims{}, apperr.Wrap(apperr.KindMalformed, err, "invalid token")
	}

	jc, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return Claims{}, apperr.New(apperr.KindMalformed, "invalid token")
	}

	subject, err := uuid.Parse(jc.Subject)
	if err != nil {
		return Claims{}, apperr.Wrap(apperr.KindMalformed, err, "invalid subject")
	}
	if jc.ID == "" || !jc.Role.Valid() || (jc.Kind != TokenAccess && jc.Kind != TokenRefresh) {
		return Claims{}, apperr.New(apperr.KindMalformed, "incomplete claims")
	}

	c := Claims{
		SubjectID: subject,
		Role:      jc.Role,
		Kind:      jc.Kind,
		TokenID:   jc.ID,
		ExpiresAt: jc.ExpiresAt.Time,
	}
	if jc.IssuedAt != nil {
		c.IssuedAt = jc.IssuedAt.Time
	}
	return c, nil
}

// newTokenID returns 128 random bits as hex
func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
