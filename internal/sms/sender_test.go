package sms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioSender_cancelledContext(t *testing.T) {
	s := NewTwilioSender("AC00000000000000000000000000000000", "token", "+15550100000", 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, "+994501234567", "482913")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSenderFunc(t *testing.T) {
	var gotPhone, gotCode string
	var s Sender = SenderFunc(func(_ context.Context, phoneNumber, code string) error {
		gotPhone, gotCode = phoneNumber, code
		return nil
	})

	require.NoError(t, s.Send(context.Background(), "+994501234567", "482913"))
	assert.Equal(t, "+994501234567", gotPhone)
	assert.Equal(t, "482913", gotCode)

	boom := errors.New("gateway down")
	s = SenderFunc(func(context.Context, string, string) error { return boom })
	assert.ErrorIs(t, s.Send(context.Background(), "+994501234567", "482913"), boom)
}

func TestLogSender(t *testing.T) {
	var s Sender = LogSender{}
	assert.NoError(t, s.Send(context.Background(), "+994501234567", "482913"))
}
