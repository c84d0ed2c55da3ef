package inbox

import (
	"strings"
	"time"
)

const (
	linkedInJobsSender    = "jobs-noreply@linkedin.com"
	linkedInAlertsSender  = "jobalerts-noreply@linkedin.com"
	linkedInEditorsSender = "editors-noreply@linkedin.com"
)

// RejectOutsideWindow names the verdict for messages older than the threshold
const RejectOutsideWindow = "outside_window"

// NoiseRule rejects a message when Match returns true
type NoiseRule struct {
	Name  string
	Match func(msg Message) bool
}

// Subject fragments that mark job alert and digest mail
var digestSubjects = []string{
	"job alert",
	"new jobs",
	"recommended jobs",
	"job opportunities",
	"jobs for you",
}

// NoiseRules returns the promotional/digest rules in evaluation order.
// Each rule is independent, so order only affects which rule is reported.
func NoiseRules() []NoiseRule {
	return []NoiseRule{
		{
			Name: "digest_subject",
			Match: func(msg Message) bool {
				return containsAny(strings.ToLower(msg.Subject), digestSubjects)
			},
		},
		{
			Name: "linkedin_status_subject",
			Match: func(msg Message) bool {
				return msg.FromSender(linkedInJobsSender) &&
					strings.Contains(strings.ToLower(msg.Subject), "check out the status")
			},
		},
		{
			Name: "linkedin_status_body",
			Match: func(msg Message) bool {
				return msg.FromSender(linkedInJobsSender) &&
					strings.Contains(strings.ToLower(msg.Body), "check out the status of your applications")
			},
		},
		{
			Name: "linkedin_viewed",
			Match: func(msg Message) bool {
				return msg.FromSender(linkedInJobsSender) &&
					strings.Contains(strings.ToLower(msg.Subject), "your application was viewed")
			},
		},
		{
			Name: "linkedin_newsletter",
			Match: func(msg Message) bool {
				return msg.FromSender(linkedInAlertsSender) || msg.FromSender(linkedInEditorsSender)
			},
		},
	}
}

// Verdict is the outcome of filtering one message
type Verdict struct {
	Rejected bool
	Rule     string // Rule that fired, empty when accepted
}

// Filter rejects noise and messages older than Threshold
type Filter struct {
	Rules     []NoiseRule
	Threshold time.Time // Zero disables the window check
}

// NewFilter creates a filter with the default noise rules
func NewFilter(threshold time.Time) *Filter {
	return &Filter{
		Rules:     NoiseRules(),
		Threshold: threshold,
	}
}

// Check evaluates the noise rules, then the lookback window. Messages
// without a timestamp are never rejected by the window.
func (f *Filter) Check(msg Message) Verdict {
	for _, rule := range f.Rules {
		if rule.Match(msg) {
			return Verdict{Rejected: true, Rule: rule.Name}
		}
	}
	if !f.InWindow(msg) {
		return Verdict{Rejected: true, Rule: RejectOutsideWindow}
	}
	return Verdict{}
}

// InWindow reports whether msg is at or after the threshold
func (f *Filter) InWindow(msg Message) bool {
	if f.Threshold.IsZero() || !msg.HasTime {
		return true
	}
	return !msg.Timestamp.Before(f.Threshold)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
