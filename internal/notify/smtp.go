package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/hiretrack-ai/hiretrack/internal/config"
)

type SMTPSender struct {
	config config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{config: cfg}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}
	if !s.config.UseTLS && s.config.Username != "" {
		return Result{Success: false, Error: fmt.Errorf("SMTP auth requires TLS")}
	}

	data, id, err := composeDigest(msg, time.Now())
	if err != nil {
		return Result{Success: false, Error: err}
	}

	client, err := s.dial(ctx)
	if err != nil {
		return Result{Success: false, Error: sanitizeSMTPError(err)}
	}
	defer client.Close()

	if err := s.deliver(client, msg, data); err != nil {
		return Result{Success: false, Error: sanitizeSMTPError(err)}
	}
	return Result{Success: true, MessageID: id}
}

// composeDigest renders msg as a quoted-printable text/plain message and
// returns it with its Message-Id.
func composeDigest(msg Message, date time.Time) ([]byte, string, error) {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, "", fmt.Errorf("invalid sender: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, "", fmt.Errorf("invalid recipient: %w", err)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	if msg.RunID != "" {
		h.Set("X-Hiretrack-Run", msg.RunID)
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("failed to generate message id: %w", err)
	}
	h.Set("Mime-Version", "1.0")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message: %w", err)
	}
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, "", fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}

	id, _ := h.MessageID()
	return buf.Bytes(), id, nil
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if s.config.UseTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{
			ServerName: s.config.Host,
			MinVersion: tls.VersionTLS12,
		}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client creation failed: %w", err)
	}
	return client, nil
}

func (s *SMTPSender) deliver(client *smtp.Client, msg Message, data []byte) error {
	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}
	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("sender rejected: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("recipient rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data command failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("message write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message finalization failed: %w", err)
	}
	return client.Quit()
}

func sanitizeSMTPError(err error) error {
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "auth"):
		return fmt.Errorf("SMTP authentication failed")
	case strings.Contains(s, "certificate"):
		return fmt.Errorf("TLS certificate error")
	case strings.Contains(s, "connection failed"):
		return fmt.Errorf("SMTP server unreachable")
	}
	return fmt.Errorf("SMTP error: check your configuration")
}
