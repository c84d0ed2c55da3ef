// Package ner finds named entities (organizations, job titles, ...) in
// email text. Recognizers are interchangeable: an in-process rule-based one
// and a client for an external spaCy-compatible entity service.
package ner

import (
	"context"
	"fmt"
	"time"

	"github.com/hiretrack-ai/hiretrack/internal/config"
)

// Label is an entity type, using spaCy's label names
type Label string

const (
	LabelOrg       Label = "ORG"
	LabelPerson    Label = "PERSON"
	LabelProduct   Label = "PRODUCT"
	LabelWorkOfArt Label = "WORK_OF_ART"
	LabelJobTitle  Label = "JOB_TITLE"
	LabelNORP      Label = "NORP" // Nationalities, religious or political groups
	LabelGPE       Label = "GPE"  // Countries, cities, states
)

// Entity is a labelled span of the input text. Start and End are byte offsets.
type Entity struct {
	Text  string `json:"text"`
	Label Label  `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Recognizer returns the entities of text in document order
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// New builds the recognizer selected by cfg
func New(cfg config.NERConfig) (Recognizer, error) {
	switch cfg.Provider {
	case "", "heuristic":
		return NewHeuristic(), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("ner: endpoint is required for the http provider")
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		return NewHTTPRecognizer(cfg.Endpoint, timeout), nil
	}
	return nil, fmt.Errorf("unknown ner provider: %s", cfg.Provider)
}
