package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRecognizer calls an external entity service, typically a small spaCy
// wrapper. The service receives {"text": "..."} and answers with
// {"entities": [{"text", "label", "start", "end"}, ...]}.
type HTTPRecognizer struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPRecognizer(endpoint string, timeout time.Duration) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type recognizeRequest struct {
	Text string `json:"text"`
}

type recognizeResponse struct {
	Entities []Entity `json:"entities"`
}

// Recognize implements Recognizer
func (r *HTTPRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	body, err := json.Marshal(recognizeRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build entity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entity service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("entity service error: %d", resp.StatusCode)
	}

	var decoded recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode entity response: %w", err)
	}
	return decoded.Entities, nil
}
