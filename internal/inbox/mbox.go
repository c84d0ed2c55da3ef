package inbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-mbox"
	"go.uber.org/zap"
)

// MboxSource reads candidate messages from an mbox archive, applying the
// same subject keyword search the IMAP source sends to the server. The
// lookback window is left to the filter.
type MboxSource struct {
	Path   string
	logger *zap.Logger
}

// NewMboxSource creates a mail source over the mbox file at path
func NewMboxSource(path string, logger *zap.Logger) *MboxSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MboxSource{Path: path, logger: logger}
}

// Fetch implements Source
func (s *MboxSource) Fetch(ctx context.Context, mode LookbackMode, now time.Time) ([]RawMessage, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbox: %w", err)
	}
	defer f.Close()

	return ReadMbox(ctx, f, s.logger)
}

// ReadMbox parses every message in an mbox stream and keeps the ones whose
// subject matches the search keywords. Messages that fail to parse are
// logged and skipped.
func ReadMbox(ctx context.Context, r io.Reader, logger *zap.Logger) ([]RawMessage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reader := mbox.NewReader(r)
	var messages []RawMessage
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		mr, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return messages, fmt.Errorf("failed to read mbox message %d: %w", i, err)
		}

		raw, err := ReadRawMessage(mr, "")
		if err != nil {
			logger.Warn("skipping unparseable mbox message", zap.Int("index", i), zap.Error(err))
			continue
		}
		if raw.ID == "" {
			raw.ID = fmt.Sprintf("mbox:%d", i)
		}
		if !MatchesSearch(raw.Header("Subject")) {
			continue
		}
		messages = append(messages, raw)
	}
	return messages, nil
}
