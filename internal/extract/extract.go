// Package extract derives the company name and role title of a job
// application email. Each field is resolved by an ordered cascade of pattern
// rules with named-entity recognition as the last resort, and LinkedIn's
// templated notifications get dedicated overrides.
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hiretrack-ai/hiretrack/internal/inbox"
	"github.com/hiretrack-ai/hiretrack/internal/ner"
)

// Unknown is reported when no rule finds a value
const Unknown = "Unknown"

const linkedInJobsSender = "jobs-noreply@linkedin.com"

// Result holds the extracted fields
type Result struct {
	Company string
	Role    string
}

// Extractor resolves company and role for normalized messages
type Extractor struct {
	recognizer ner.Recognizer
	logger     *zap.Logger
}

// New creates an extractor. A nil recognizer disables the NER fallbacks.
func New(recognizer ner.Recognizer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{recognizer: recognizer, logger: logger}
}

// Text is the text the cascades search: subject and body on separate lines,
// so line-bounded patterns stop at the end of the subject.
func Text(msg inbox.Message) string {
	return msg.Subject + "\n" + msg.Body
}

// Extract returns the company and role for msg. It never fails: missing
// values are Unknown and recognizer errors are logged and ignored.
func (e *Extractor) Extract(ctx context.Context, msg inbox.Message) Result {
	text := Text(msg)
	ents := e.lazyEntities(ctx, msg.ID, text)
	subject := strings.ToLower(msg.Subject)

	if msg.FromSender(linkedInJobsSender) {
		switch {
		case strings.Contains(subject, "your application was sent to"):
			return Result{
				Company: sentToCompany(msg.Subject),
				Role:    sentToRole(msg.Body),
			}
		case strings.HasPrefix(subject, "your application to"):
			res := Result{}
			if m := linkedInCompanyPattern.FindStringSubmatch(text); m != nil {
				res.Company = TitleCase(m[1])
			} else {
				res.Company = Company(text, ents)
			}
			if m := rolePattern.FindStringSubmatch(text); m != nil {
				res.Role = TitleCase(m[1])
			} else {
				res.Role = Role(text, ents)
			}
			return res
		}
	}

	return Result{
		Company: Company(text, ents),
		Role:    Role(text, ents),
	}
}

// lazyEntities runs the recognizer at most once, and only if a cascade
// reaches its NER step.
func (e *Extractor) lazyEntities(ctx context.Context, id, text string) func() []ner.Entity {
	var (
		done     bool
		entities []ner.Entity
	)
	return func() []ner.Entity {
		if done || e.recognizer == nil {
			return entities
		}
		done = true
		found, err := e.recognizer.Recognize(ctx, text)
		if err != nil {
			e.logger.Warn("entity recognition failed, continuing without entities",
				zap.String("message_id", id),
				zap.Error(err),
			)
			return nil
		}
		entities = found
		return entities
	}
}

// TitleCase capitalizes the first letter of every word and lowercases the rest
func TitleCase(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
