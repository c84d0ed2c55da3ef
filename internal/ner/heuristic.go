package ner

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'’\-]*|&`)

var (
	// Words that open sentences or greetings and are never part of a name
	leadingStopwords = map[string]bool{
		"a": true, "an": true, "the": true, "your": true, "our": true, "we": true,
		"i": true, "you": true, "it": true, "this": true, "that": true, "if": true,
		"thank": true, "thanks": true, "dear": true, "hi": true, "hello": true,
		"best": true, "kind": true, "regards": true, "sincerely": true, "please": true,
		"unfortunately": true, "congratulations": true, "re": true, "fwd": true, "fw": true,
		"application": true, "applications": true, "update": true, "new": true,
		"join": true, "joining": true,
	}

	// Lowercase words that may join two capitalized words inside a name
	connectors = map[string]bool{"&": true, "of": true, "and": true}

	// Final words that mark a run as an organization
	orgSuffixes = map[string]bool{
		"inc": true, "corp": true, "corporation": true, "co": true,
		"company": true, "llc": true, "ltd": true, "limited": true, "plc": true,
		"gmbh": true, "ag": true, "sa": true, "group": true, "holdings": true,
		"technologies": true, "technology": true, "labs": true, "systems": true,
		"solutions": true, "partners": true, "bank": true, "university": true,
		"institute": true, "health": true, "capital": true, "ventures": true,
		"software": true, "analytics": true, "consulting": true, "studios": true,
	}

	// Words that, directly before a run, introduce an organization
	orgCues = map[string]bool{
		"at": true, "from": true, "with": true, "join": true, "joining": true, "to": true,
	}

	roleKeywords = []string{
		"engineer", "scientist", "programmer", "developer", "analyst",
		"consultant", "intern", "manager", "specialist", "researcher",
		"designer", "architect", "administrator", "associate",
	}
)

type token struct {
	text       string
	start, end int
}

// span is a run of capitalized tokens
type span struct {
	tokens []token
	cue    string // lowercase word directly before the run, if any
}

// Heuristic is a rule-based recognizer over capitalization and cue words.
// It labels runs of capitalized words as JOB_TITLE when they name a role
// and as ORG when they carry a company suffix or follow a cue like "at".
// Runs it cannot place are left out.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Recognize implements Recognizer. It never fails.
func (h *Heuristic) Recognize(ctx context.Context, text string) ([]Entity, error) {
	var entities []Entity
	for _, s := range capitalizedSpans(text) {
		label, ok := classifySpan(s)
		if !ok {
			continue
		}
		first, last := s.tokens[0], s.tokens[len(s.tokens)-1]
		entities = append(entities, Entity{
			Text:  text[first.start:last.end],
			Label: label,
			Start: first.start,
			End:   last.end,
		})
	}
	return entities, nil
}

func classifySpan(s span) (Label, bool) {
	lower := make([]string, len(s.tokens))
	for i, t := range s.tokens {
		lower[i] = strings.ToLower(t.text)
	}
	joined := strings.Join(lower, " ")

	for _, kw := range roleKeywords {
		if strings.Contains(joined, kw) {
			return LabelJobTitle, true
		}
	}
	if orgSuffixes[lower[len(lower)-1]] {
		return LabelOrg, true
	}
	if orgCues[s.cue] {
		return LabelOrg, true
	}
	return "", false
}

// capitalizedSpans splits text into runs of capitalized words. Punctuation
// and line breaks end a run; leading stopwords and trailing connectors are
// trimmed.
func capitalizedSpans(text string) []span {
	locs := tokenPattern.FindAllStringIndex(text, -1)
	tokens := make([]token, len(locs))
	for i, loc := range locs {
		tokens[i] = token{text: text[loc[0]:loc[1]], start: loc[0], end: loc[1]}
	}

	var spans []span
	var current []token
	cue := ""
	prevWord := ""

	flush := func() {
		if s, ok := trimSpan(current, cue); ok {
			spans = append(spans, s)
		}
		current = nil
	}

	for i, tok := range tokens {
		if i > 0 && !adjacent(text, tokens[i-1].end, tok.start) {
			flush()
			prevWord = ""
		}

		switch {
		case isCapitalized(tok.text):
			if len(current) == 0 {
				cue = prevWord
			}
			current = append(current, tok)
		case len(current) > 0 && connectors[strings.ToLower(tok.text)]:
			current = append(current, tok)
		default:
			flush()
		}
		prevWord = strings.ToLower(tok.text)
	}
	flush()
	return spans
}

func trimSpan(tokens []token, cue string) (span, bool) {
	for len(tokens) > 0 && leadingStopwords[strings.ToLower(tokens[0].text)] {
		// A stripped stopword can itself be the cue ("Join Acme")
		if w := strings.ToLower(tokens[0].text); orgCues[w] {
			cue = w
		}
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && connectors[strings.ToLower(tokens[len(tokens)-1].text)] {
		tokens = tokens[:len(tokens)-1]
	}
	for len(tokens) > 0 && connectors[strings.ToLower(tokens[0].text)] {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return span{}, false
	}
	return span{tokens: tokens, cue: cue}, true
}

// adjacent reports whether only spaces or tabs separate two tokens
func adjacent(text string, from, to int) bool {
	for _, r := range text[from:to] {
		if r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

func isCapitalized(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}
