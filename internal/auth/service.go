package auth

import (
	"context"
	"log"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
	"github.com/yolla/server/internal/phone"
	"github.com/yolla/server/internal/repo"
)

// LoginResult is the verified principal and its freshly issued tokens
type LoginResult struct {
	User   model.Principal
	Tokens TokenPair
}

// AuthService orchestrates authentication operations
type AuthService struct {
	otpProvider  OtpProvider
	tokenService *TokenService
	userRepo     repo.UserRepo
}

// NewAuthService creates a new auth service
func NewAuthService(
	otpProvider OtpProvider,
	tokenService *TokenService,
	userRepo repo.UserRepo,
) *AuthService {
	return &AuthService{
		otpProvider:  otpProvider,
		tokenService: tokenService,
		userRepo:     userRepo,
	}
}

// SendCode issues a one-time code for phone
func (s *AuthService) SendCode(ctx context.Context, phoneNumber, ip string) (CodeAck, error) {
	ack, err := s.otpProvider.RequestCode(ctx, phoneNumber, ip)
	if err != nil {
		return CodeAck{}, err
	}
	log.Printf("Phone %s: otp requested", phone.Mask(ack.PhoneNumber))
	return ack, nil
}

// Login verifies the code and issues an access and refresh token
func (s *AuthService) Login(ctx context.Context, phoneNumber, code string) (LoginResult, error) {
	user, err := s.otpProvider.VerifyCode(ctx, phoneNumber, code)
	if err != nil {
		return LoginResult{}, err
	}

	tokens, err := s.tokenService.Issue(user)
	if err != nil {
		return LoginResult{}, err
	}

	log.Printf("Phone %s: login succeeded, user %s", phone.Mask(user.PhoneNumber), user.ID)
	return LoginResult{User: user, Tokens: tokens}, nil
}

// Refresh rotates a refresh token into a new pair
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return s.tokenService.Refresh(ctx, refreshToken)
}

// Logout revokes an access or refresh token
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.tokenService.Revoke(ctx, token)
}

// ValidateToken validates an access token and returns its claims
func (s *AuthService) ValidateToken(ctx context.Context, accessToken string) (Claims, error) {
	return s.tokenService.Validate(ctx, accessToken, TokenAccess)
}

// CurrentPrincipal resolves the principal behind an access token.
// The role comes from the identity store, not the token, so role changes apply before the token expires.
func (s *AuthService) CurrentPrincipal(ctx context.Context, accessToken string) (model.Principal, error) {
	claims, err := s.tokenService.Validate(ctx, accessToken, TokenAccess)
	if err != nil {
		return model.Principal{}, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.SubjectID)
	if err != nil {
		return model.Principal{}, err
	}
	if !user.Active {
		return model.Principal{}, apperr.New(apperr.KindForbidden, "user is inactive")
	}
	return user, nil
}
