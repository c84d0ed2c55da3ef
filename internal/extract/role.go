package extract

import (
	"regexp"
	"strings"

	"github.com/hiretrack-ai/hiretrack/internal/ner"
)

var rolePattern = regexp.MustCompile(`(?i)application to (.+?) at [A-Z][\w &().-]+`)

var (
	// Entity labels a statistical model may assign to a job title
	roleLabels = map[ner.Label]bool{
		ner.LabelWorkOfArt: true,
		ner.LabelProduct:   true,
		ner.LabelOrg:       true,
		ner.LabelJobTitle:  true,
		ner.LabelNORP:      true,
	}

	roleKeywords = []string{
		"engineer", "scientist", "programmer", "developer", "analyst",
		"consultant", "intern", "manager", "specialist", "researcher",
	}

	// LinkedIn "sent to" notifications list the role on its own line
	sentToRoleKeywords = []string{
		"engineer", "developer", "scientist", "analyst",
		"programmer", "consultant", "intern", "manager",
	}
)

const sentToSentinel = "your application was sent to"

// Role runs the role cascade over text, returning Unknown when no rule
// applies. ents supplies recognized entities on demand.
func Role(text string, ents func() []ner.Entity) string {
	if m := rolePattern.FindStringSubmatch(text); m != nil {
		return TitleCase(m[1])
	}

	if ents == nil {
		ents = noEntities
	}
	for _, ent := range ents() {
		if !roleLabels[ent.Label] {
			continue
		}
		if containsAny(strings.ToLower(ent.Text), roleKeywords) {
			return firstWords(TitleCase(ent.Text), 4)
		}
	}
	return Unknown
}

// sentToRole scans the body lines after the "your application was sent to"
// line for the first one naming a role. Only lines of 6 to 99 characters are
// considered.
func sentToRole(body string) string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if n := runeLen(line); n > 5 && n < 100 {
			lines = append(lines, line)
		}
	}

	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), sentToSentinel) {
			continue
		}
		for _, next := range lines[i+1:] {
			if containsAny(strings.ToLower(next), sentToRoleKeywords) {
				return TitleCase(next)
			}
		}
		break
	}
	return Unknown
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
