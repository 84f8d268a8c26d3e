package auth

import (
	"context"
	"fmt"
	"log"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

// Refresh rotates a refresh token. The old token id goes into the revocation set with set-if-absent semantics,
// so of several concurrent callers presenting the same token only the one that inserted it gets a new pair.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.Validate(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	added, err := s.revocations.Add(ctx, claims.TokenID, claims.ExpiresAt)
	if err != nil {
		return TokenPair{}, fmt.Errorf("revoke rotated token: %w", err)
	}
	if !added {
		log.Printf("User %s: refresh token reuse detected", claims.SubjectID)
		return TokenPair{}, apperr.New(apperr.KindRevoked, "refresh token already used")
	}

	return s.Issue(model.Principal{ID: claims.SubjectID, Role: claims.Role})
}

// Revoke adds the token's id to the revocation set. Either kind is accepted and revoking twice is not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if _, err := s.revocations.Add(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
