package inbox

import (
	"context"
	"strings"
	"testing"
)

const multipartMessage = "From: Acme Careers <careers@acme.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?utf-8?q?Your_application_has_been_received?=\r\n" +
	"Date: Mon, 03 Jun 2024 09:30:00 -0400\r\n" +
	"Message-Id: <abc123@acme.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Thanks for applying.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"PHA+VGhhbmtzIGZvciBhcHBseWluZy48L3A+\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=offer.pdf\r\n" +
	"\r\n" +
	"%PDF-1.4\r\n" +
	"--outer--\r\n"

func TestReadRawMessage(t *testing.T) {
	raw, err := ReadRawMessage(strings.NewReader(multipartMessage), "")
	if err != nil {
		t.Fatalf("ReadRawMessage failed: %v", err)
	}

	if raw.ID != "abc123@acme.com" {
		t.Errorf("got id %q", raw.ID)
	}
	if got := raw.Header("subject"); got != "Your application has been received" {
		t.Errorf("got decoded subject %q", got)
	}
	if !raw.Root.IsContainer() || len(raw.Root.Children) != 2 {
		t.Fatalf("expected two top-level parts, got %+v", raw.Root)
	}
	if attachment := raw.Root.Children[1]; attachment.Data != nil {
		t.Errorf("attachment data should be dropped, got %q", attachment.Data)
	}

	body := NormalizeBody(raw.Root)
	if body != "Thanks for applying. Thanks for applying." {
		t.Errorf("got body %q", body)
	}

	msg := Normalize(raw, nil)
	if msg.Sender != "careers@acme.com" {
		t.Errorf("got sender %q", msg.Sender)
	}
	if !msg.HasTime || msg.TimeReceived() != "09:30" {
		t.Errorf("got time %q", msg.TimeReceived())
	}
}

func TestReadRawMessageKeepsGivenID(t *testing.T) {
	raw, err := ReadRawMessage(strings.NewReader("Subject: hi\r\n\r\nbody\r\n"), "INBOX:7")
	if err != nil {
		t.Fatalf("ReadRawMessage failed: %v", err)
	}
	if raw.ID != "INBOX:7" {
		t.Errorf("got id %q, want INBOX:7", raw.ID)
	}
	if raw.Root.IsContainer() || strings.TrimSpace(string(raw.Root.Data)) != "body" {
		t.Errorf("expected a single text leaf, got %+v", raw.Root)
	}
}

const mboxArchive = "From careers@acme.com Mon Jun  3 09:30:00 2024\n" +
	"From: careers@acme.com\n" +
	"Subject: Your application to Analyst at Acme\n" +
	"Date: Mon, 03 Jun 2024 09:30:00 -0400\n" +
	"\n" +
	"Thanks!\n" +
	"\n" +
	"From news@shop.com Mon Jun  3 10:00:00 2024\n" +
	"From: news@shop.com\n" +
	"Subject: Summer sale\n" +
	"\n" +
	"Buy things.\n" +
	"\n" +
	"From hr@globex.com Tue Jun  4 11:00:00 2024\n" +
	"From: hr@globex.com\n" +
	"Subject: Unfortunately...\n" +
	"\n" +
	"We went another way.\n"

func TestReadMbox(t *testing.T) {
	messages, err := ReadMbox(context.Background(), strings.NewReader(mboxArchive), nil)
	if err != nil {
		t.Fatalf("ReadMbox failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].ID != "mbox:0" || messages[1].ID != "mbox:2" {
		t.Errorf("got ids %q, %q", messages[0].ID, messages[1].ID)
	}
	if got := messages[1].Header("Subject"); got != "Unfortunately..." {
		t.Errorf("got subject %q", got)
	}
}
