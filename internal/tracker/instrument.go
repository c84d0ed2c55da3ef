package tracker

import (
	"context"
	"time"

	"github.com/hiretrack-ai/hiretrack/internal/metrics"
	"github.com/hiretrack-ai/hiretrack/internal/ner"
)

// timedRecognizer records recognizer latency
type timedRecognizer struct {
	inner ner.Recognizer
	name  string
}

// Instrument wraps a recognizer so every call is timed under name
func Instrument(r ner.Recognizer, name string) ner.Recognizer {
	if r == nil {
		return nil
	}
	return &timedRecognizer{inner: r, name: name}
}

func (t *timedRecognizer) Recognize(ctx context.Context, text string) ([]ner.Entity, error) {
	start := time.Now()
	entities, err := t.inner.Recognize(ctx, text)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordNERLatency(t.name, status, time.Since(start))
	return entities, err
}
