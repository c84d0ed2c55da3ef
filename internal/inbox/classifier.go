package inbox

import (
	"strings"
)

// Status represents the lifecycle state an email reports for an application
type Status string

const (
	StatusApplied   Status = "Applied"   // Application submitted or acknowledged
	StatusInterview Status = "Interview" // Employer wants to talk
	StatusRejected  Status = "Rejected"  // Application declined
	StatusDiscarded Status = "Discarded" // Not an application event
)

// UnknownPhrase is reported when no keyword matched and the status was inferred
const UnknownPhrase = "unknown"

// Classification is the classifier's verdict for one message
type Classification struct {
	Status Status
	Phrase string // Keyword that triggered the status, or UnknownPhrase
}

// Accepted reports whether the classification produces a record
func (c Classification) Accepted() bool {
	switch c.Status {
	case StatusApplied, StatusInterview, StatusRejected:
		return true
	}
	return false
}

// Keyword phrases for classification, matched as lowercase substrings
var (
	rejectionPhrases = []string{
		"unfortunately",
		"we regret",
		"not selected",
		"declined",
		"decided to move forward",
		"moved forward with other",
		"we will not be moving forward",
		"pursue other candidates",
		"not currently aligned with our needs",
		"do not see a strong match for your experience",
	}

	interviewPhrases = []string{
		"interview scheduled",
		"interview invite",
		"speak with you",
		"we would like to schedule",
	}

	appliedPhrases = []string{
		"your application to",
		"application was sent",
		"you applied for",
		"recruiting team will contact you",
		"has been received",
		"have received your application",
		"reviewing all applications",
		"successfully submitted your application",
		"will review your submission",
	}
)

// classifierTier is one ordered step of the classifier. The first tier with
// a matching phrase decides the status.
type classifierTier struct {
	status  Status
	phrases []string
	// applies gates the tier on the subject; nil means always
	applies func(subject string) bool
	// bodyOnly matches against the body instead of "subject body"
	bodyOnly bool
}

var classifierTiers = []classifierTier{
	{
		// Status updates ("Your update from Acme") are judged on the body alone
		status:   StatusRejected,
		phrases:  rejectionPhrases,
		applies:  func(subject string) bool { return strings.HasPrefix(subject, "your update from") },
		bodyOnly: true,
	},
	{status: StatusRejected, phrases: rejectionPhrases},
	{status: StatusInterview, phrases: interviewPhrases},
	{status: StatusApplied, phrases: appliedPhrases},
}

// Classify maps a subject and body to an application status and the phrase
// that triggered it. When nothing matches it falls back to Applied with
// UnknownPhrase, so every message that reaches it produces a record.
func Classify(subject, body string) Classification {
	subject = strings.ToLower(strings.TrimSpace(subject))
	body = strings.ToLower(strings.TrimSpace(body))
	fullText := subject + " " + body

	for _, tier := range classifierTiers {
		if tier.applies != nil && !tier.applies(subject) {
			continue
		}
		text := fullText
		if tier.bodyOnly {
			text = body
		}
		if phrase, ok := firstPhrase(text, tier.phrases); ok {
			return Classification{Status: tier.status, Phrase: phrase}
		}
	}

	// TODO: confirm with product whether unmatched mail should be discarded instead
	return Classification{Status: StatusApplied, Phrase: UnknownPhrase}
}

// ClassifyMessage classifies a normalized message
func ClassifyMessage(msg Message) Classification {
	return Classify(msg.Subject, msg.Body)
}

func firstPhrase(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// Summary counts classifications by status
type Summary struct {
	Total     int
	Applied   int
	Interview int
	Rejected  int
	Discarded int
	Inferred  int // Applied by fallback, no phrase matched
}

// Summarize generates a summary of classifications
func Summarize(results []Classification) Summary {
	summary := Summary{Total: len(results)}

	for _, r := range results {
		switch r.Status {
		case StatusApplied:
			summary.Applied++
		case StatusInterview:
			summary.Interview++
		case StatusRejected:
			summary.Rejected++
		default:
			summary.Discarded++
		}
		if r.Phrase == UnknownPhrase {
			summary.Inferred++
		}
	}

	return summary
}
