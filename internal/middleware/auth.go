package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	tokenKey     contextKey = "access_token"
)

// PrincipalResolver resolves the principal behind an access token
type PrincipalResolver interface {
	CurrentPrincipal(ctx context.Context, accessToken string) (model.Principal, error)
}

// AuthMiddleware validates the bearer token, loads the principal and attaches it to the context
func AuthMiddleware(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			principal, err := resolver.CurrentPrincipal(r.Context(), tokenString)
			if err != nil {
				switch apperr.KindOf(err) {
				case apperr.KindForbidden:
					respondWithError(w, http.StatusForbidden, "user is inactive")
				case apperr.KindNotFound:
					respondWithError(w, http.StatusUnauthorized, "user not found")
				case apperr.KindInternal:
					respondWithError(w, http.StatusInternalServerError, "internal server error")
				default:
					respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			ctx = context.WithValue(ctx, tokenKey, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tokenString := strings.TrimSpace(parts[1])
	return tokenString, tokenString != ""
}

// GetPrincipal returns the principal attached by AuthMiddleware
func GetPrincipal(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}

// GetAccessToken returns the bearer token attached by AuthMiddleware
func GetAccessToken(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
