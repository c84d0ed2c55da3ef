package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ResendSender delivers through the Resend API
type ResendSender struct {
	client *resend.Client
}

func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

func (s *ResendSender) Name() string { return "resend" }

func (s *ResendSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("resend: %w", err)}
	}
	return Result{Success: true, MessageID: sent.Id}
}

// SendGridSender delivers through the SendGrid v3 API
type SendGridSender struct {
	client *sendgrid.Client
}

func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey)}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}

	email := sgmail.NewSingleEmail(
		sgmail.NewEmail("", msg.From),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Body,
		"",
	)
	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("sendgrid: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return Result{Success: false, Error: fmt.Errorf("sendgrid: status %d", resp.StatusCode)}
	}

	var id string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		id = ids[0]
	}
	return Result{Success: true, MessageID: id}
}
