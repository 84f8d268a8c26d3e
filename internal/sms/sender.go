// Package sms delivers one-time codes to phones.
package sms

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/yolla/server/internal/phone"
)

// Sender hands a code to an out-of-band channel. Errors are treated as transient by callers.
type Sender interface {
	Send(ctx context.Context, phoneNumber, code string) error
}

// TwilioSender sends codes as SMS through the Twilio REST API
type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
	ttl        time.Duration
}

// NewTwilioSender creates a Twilio-backed Sender. ttl is only used in the message text.
func NewTwilioSender(accountSID, authToken, fromNumber string, ttl time.Duration) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSender{
		client:     client,
		fromNumber: fromNumber,
		ttl:        ttl,
	}
}

func (t *TwilioSender) Send(ctx context.Context, phoneNumber, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phoneNumber)
	params.SetFrom(t.fromNumber)
	params.SetBody(fmt.Sprintf("Your verification code is: %s. Valid for %d minutes.", code, int(t.ttl.Minutes())))

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	return nil
}

// LogSender records that a code was issued without sending it anywhere. For local development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phoneNumber, _ string) error {
	// Never log the plaintext code
	log.Printf("Phone %s: otp issued (log sender, not delivered)", phone.Mask(phoneNumber))
	return nil
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, phoneNumber, code string) error

func (f SenderFunc) Send(ctx context.Context, phoneNumber, code string) error {
	return f(ctx, phoneNumber, code)
}
