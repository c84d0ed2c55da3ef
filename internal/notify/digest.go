package notify

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/inbox"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

var digestTemplate = template.Must(template.ParseFS(embeddedTemplates, "templates/digest.tmpl"))

// DigestData is everything the digest email reports about a run
type DigestData struct {
	RunID    string
	Mode     string
	Finished time.Time
	Fetched  int
	Failed   int
	Summary  inbox.Summary
	Added    []history.Record
}

// Date is the finish time as shown in the digest
func (d DigestData) Date() string {
	return d.Finished.Format("January 2, 2006 15:04 MST")
}

// Digest renders the run digest addressed from/to the given addresses
func Digest(from, to string, data DigestData) (Message, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to render digest: %w", err)
	}

	subject := "Hiretrack: no new applications"
	switch n := len(data.Added); {
	case n == 1:
		subject = "Hiretrack: 1 new application record"
	case n > 1:
		subject = fmt.Sprintf("Hiretrack: %d new application records", n)
	}

	return Message{
		From:    from,
		To:      to,
		Subject: subject,
		Body:    buf.String(),
		RunID:   data.RunID,
	}, nil
}
