package notify

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/hiretrack-ai/hiretrack/internal/config"
	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/inbox"
)

func TestNewSender(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{"", "smtp", false},
		{"smtp", "smtp", false},
		{"resend", "resend", false},
		{"sendgrid", "sendgrid", false},
		{"pigeon", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			s, err := NewSender(config.NotifyConfig{Provider: tt.provider, APIKey: "key"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", s.Name(), tt.want)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"me@example.com", false},
		{"Me <me@example.com>", false},
		{"me@example.com\r\nBcc: x@example.com", true},
		{"a@example.com, b@example.com", true},
		{"not an address", true},
	}
	for _, tt := range tests {
		if err := ValidateEmail(tt.email); (err != nil) != tt.wantErr {
			t.Errorf("ValidateEmail(%q) = %v, wantErr %v", tt.email, err, tt.wantErr)
		}
	}
}

func TestSendRejectsInvalidMessages(t *testing.T) {
	senders := []Sender{
		NewSMTPSender(config.SMTPConfig{Host: "localhost", Port: 2525}),
		NewResendSender("key"),
		NewSendGridSender("key"),
	}
	msg := Message{From: "me@example.com", To: "me@example.com", Subject: "hi\r\nBcc: x@example.com"}

	for _, s := range senders {
		res := s.Send(context.Background(), msg)
		if res.Success || res.Error == nil {
			t.Errorf("%s accepted a subject with CRLF", s.Name())
		}
	}
}

func TestSMTPAuthRequiresTLS(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "localhost", Port: 2525, Username: "me"})
	res := s.Send(context.Background(), Message{From: "me@example.com", To: "you@example.com", Subject: "hi"})
	if res.Success || res.Error == nil || !strings.Contains(res.Error.Error(), "TLS") {
		t.Errorf("got %+v, want TLS error", res)
	}
}

func TestComposeDigest(t *testing.T) {
	date := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	raw, id, err := composeDigest(Message{
		From:    "a@example.com",
		To:      "b@example.com",
		Subject: "S",
		Body:    "one\ntwo",
		RunID:   "run-1",
	}, date)
	if err != nil {
		t.Fatalf("composeDigest: %v", err)
	}
	if id == "" {
		t.Error("empty message id")
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	if subject, _ := mr.Header.Subject(); subject != "S" {
		t.Errorf("subject = %q", subject)
	}
	if got := mr.Header.Get("X-Hiretrack-Run"); got != "run-1" {
		t.Errorf("run header = %q", got)
	}
	if got, _ := mr.Header.MessageID(); got != id {
		t.Errorf("Message-Id = %q, want %q", got, id)
	}
	if got, _ := mr.Header.Date(); !got.Equal(date) {
		t.Errorf("Date = %v", got)
	}

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	body, err := io.ReadAll(part.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := strings.ReplaceAll(string(body), "\r\n", "\n"); got != "one\ntwo" {
		t.Errorf("body = %q", got)
	}
}

func TestSMTPUnreachable(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "127.0.0.1", Port: 1})
	res := s.Send(context.Background(), Message{From: "me@example.com", To: "you@example.com", Subject: "hi"})
	if res.Success || res.Error == nil || !strings.Contains(res.Error.Error(), "unreachable") {
		t.Errorf("got %+v, want unreachable error", res)
	}
}

func TestDigest(t *testing.T) {
	data := DigestData{
		RunID:    "run-1",
		Mode:     "narrow",
		Finished: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		Fetched:  4,
		Summary:  inbox.Summary{Total: 4, Applied: 2, Inferred: 1, Rejected: 1, Discarded: 1},
		Added: []history.Record{
			{Company: "Acme", Role: "Engineer", Status: history.StatusApplied, DateApplied: "2024-03-01", TimeReceived: "09:00"},
			{Company: "Globex", Role: "Unknown", Status: history.StatusRejected, DateApplied: "2024-02-28", TimeReceived: "17:45"},
		},
	}

	msg, err := Digest("me@example.com", "me@example.com", data)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if msg.Subject != "Hiretrack: 2 new application records" {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, want := range []string{
		"run-1",
		"March 1, 2024 09:30 UTC",
		"(1 inferred)",
		"- Acme | Engineer | Applied | 2024-03-01 09:00",
		"- Globex | Unknown | Rejected | 2024-02-28 17:45",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if strings.Contains(msg.Body, "Failed:") {
		t.Errorf("body reports failures for a clean run:\n%s", msg.Body)
	}

	empty, err := Digest("me@example.com", "me@example.com", DigestData{Finished: data.Finished})
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if !strings.Contains(empty.Body, "No new records.") {
		t.Errorf("empty digest body:\n%s", empty.Body)
	}
}
