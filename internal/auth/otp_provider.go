package auth

import (
	"context"

	"github.com/yolla/server/internal/model"
)

// OtpProvider defines the interface for OTP operations
type OtpProvider interface {
	RequestCode(ctx context.Context, phone, ip string) (CodeAck, error)
	VerifyCode(ctx context.Context, phone, code string) (model.Principal, error)
}
