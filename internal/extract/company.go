package extract

import (
	"regexp"
	"strings"

	"github.com/hiretrack-ai/hiretrack/internal/ner"
)

var (
	updateFromPattern      = regexp.MustCompile(`(?i)your update from\s+(.+?)(?:\.|\n|$)`)
	signaturePattern       = regexp.MustCompile(`(?i)(Best Regards,|Regards,|Thanks,)\s*([A-Za-z &]+)`)
	linkedInCompanyPattern = regexp.MustCompile(`(?i)application to .+? at ([A-Z][\w &().-]+)`)
	sentToPattern          = regexp.MustCompile(`(?i)^.* to (.+)$`)
)

// Platforms that send mail on a company's behalf and are never the employer
var companyBlacklist = map[string]bool{
	"linkedin":   true,
	"gmail":      true,
	"workday":    true,
	"ashbyhq":    true,
	"greenhouse": true,
	"jobvite":    true,
	"icims":      true,
}

func blacklisted(name string) bool {
	return companyBlacklist[strings.ToLower(name)]
}

// companyRule proposes a company name; ok is false when the rule does not apply
type companyRule struct {
	name string
	find func(text string, ents func() []ner.Entity) (company string, ok bool)
}

var companyRules = []companyRule{
	{
		// "Your update from Acme Corp."
		name: "update_from",
		find: func(text string, _ func() []ner.Entity) (string, bool) {
			m := updateFromPattern.FindStringSubmatch(text)
			if m == nil {
				return "", false
			}
			name := TitleCase(m[1])
			return name, name != "" && !blacklisted(name) && wordCount(name) <= 6
		},
	},
	{
		// "Best Regards, Acme Talent Team"
		name: "signature",
		find: func(text string, _ func() []ner.Entity) (string, bool) {
			m := signaturePattern.FindStringSubmatch(text)
			if m == nil {
				return "", false
			}
			name := TitleCase(m[2])
			return name, name != "" && !blacklisted(name) && wordCount(name) <= 4
		},
	},
	{
		name: "entity",
		find: func(_ string, ents func() []ner.Entity) (string, bool) {
			for _, ent := range ents() {
				if ent.Label != ner.LabelOrg {
					continue
				}
				name := TitleCase(ent.Text)
				if name != "" && !blacklisted(name) && wordCount(name) <= 4 {
					return name, true
				}
			}
			return "", false
		},
	},
}

// Company runs the company cascade over text, returning Unknown when no rule
// applies. ents supplies recognized entities on demand.
func Company(text string, ents func() []ner.Entity) string {
	if ents == nil {
		ents = noEntities
	}
	for _, rule := range companyRules {
		if name, ok := rule.find(text, ents); ok {
			return name
		}
	}
	return Unknown
}

// sentToCompany takes the company from "..., your application was sent to Acme"
func sentToCompany(subject string) string {
	subject = strings.TrimSpace(subject)
	if m := sentToPattern.FindStringSubmatch(subject); m != nil {
		return TitleCase(m[1])
	}
	return TitleCase(subject)
}

func noEntities() []ner.Entity { return nil }
