package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yolla/server/internal/auth"
	"github.com/yolla/server/internal/middleware"
	"github.com/yolla/server/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
	devMode     bool
}

// NewAuthHandler creates a new auth handler. devMode echoes the fixed dev code in request_otp responses.
func NewAuthHandler(authService *auth.AuthService, devMode bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		devMode:     devMode,
	}
}

// requestOTPRequest is the request body for POST /auth/request_otp
type requestOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// requestOTPResponse is the JSON response for request_otp
type requestOTPResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	DevOTP    string    `json:"dev_otp,omitempty"`
}

// verifyOTPRequest is the request body for POST /auth/verify_otp
type verifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}

// tokenResponse carries a token pair
type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// verifyOTPResponse is the JSON response for verify_otp
type verifyOTPResponse struct {
	tokenResponse
	User userResponse `json:"user"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

func newUserResponse(p model.Principal) userResponse {
	return userResponse{
		ID:          p.ID.String(),
		PhoneNumber: p.PhoneNumber,
		Role:        string(p.Role),
	}
}

func newTokenResponse(pair auth.TokenPair, now time.Time) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "bearer",
		ExpiresIn:        int64(pair.AccessExpiresAt.Sub(now) / time.Second),
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// HandleRequestOTP handles POST /auth/request_otp
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" {
		respondWithError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	ack, err := h.authService.SendCode(r.Context(), req.PhoneNumber, middleware.ClientIP(r))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	response := requestOTPResponse{Message: "otp_sent", ExpiresAt: ack.ExpiresAt}
	if h.devMode {
		response.DevOTP = auth.DevOTPCode
	}
	respondWithJSON(w, http.StatusOK, response)
}

// HandleVerifyOTP handles POST /auth/verify_otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.OTP = strings.TrimSpace(req.OTP)

	if req.PhoneNumber == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "phone_number and otp are required")
		return
	}

	res, err := h.authService.Login(r.Context(), req.PhoneNumber, req.OTP)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, verifyOTPResponse{
		tokenResponse: newTokenResponse(res.Tokens, time.Now()),
		User:          newUserResponse(res.User),
	})
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newTokenResponse(pair, time.Now()))
}

// logoutRequest is the request body for POST /auth/logout. Both fields are optional;
// the bearer access token, if present, is revoked too.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	Token        string `json:"token"`
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var tokens []string
	for _, t := range []string{req.RefreshToken, req.Token} {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	if bearer, ok := middleware.BearerToken(r); ok {
		tokens = append(tokens, bearer)
	}
	if len(tokens) == 0 {
		respondWithError(w, http.StatusBadRequest, "refresh_token, token or a bearer token is required")
		return
	}

	for _, t := range tokens {
		if err := h.authService.Logout(r.Context(), t); err != nil {
			respondWithAppError(w, r, err)
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// validateResponse is the JSON response for GET /auth/validate
type validateResponse struct {
	Valid     bool      `json:"valid"`
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleValidate handles GET /auth/validate. Checks the bearer access token without loading the user.
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	tokenString, ok := middleware.BearerToken(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing or invalid authorization header")
		return
	}

	claims, err := h.authService.ValidateToken(r.Context(), tokenString)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, validateResponse{
		Valid:     true,
		Subject:   claims.SubjectID.String(),
		Role:      string(claims.Role),
		ExpiresAt: claims.ExpiresAt,
	})
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, newUserResponse(user))
}
