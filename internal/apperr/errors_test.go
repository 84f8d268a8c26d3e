package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_matchesByKind(t *testing.T) {
	err := New(KindRevoked, "refresh token already rotated")
	assert.True(t, errors.Is(err, ErrRevoked))
	assert.False(t, errors.Is(err, ErrExpired))

	wrapped := fmt.Errorf("refresh: %w", err)
	assert.True(t, errors.Is(wrapped, ErrRevoked))
	assert.Equal(t, KindRevoked, KindOf(wrapped))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("db down")))
	assert.Equal(t, KindNotFound, KindOf(ErrNotFound))
}

func TestWrap_keepsCause(t *testing.T) {
	cause := errors.New("twilio 503")
	err := Wrap(KindTransientFailure, cause, "send otp")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, "send otp: twilio 503", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Wrap(KindTransientFailure, errors.New("x"), "sms")))
	assert.False(t, Retryable(ErrRateLimited))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}
