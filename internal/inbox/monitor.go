package inbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/hiretrack-ai/hiretrack/internal/config"
)

var (
	ErrNotConnected = errors.New("not connected to IMAP server")
	ErrAuth         = errors.New("mailbox authentication failed")
)

const fetchBatchSize = 50

// Source lists candidate messages for a run and fetches each in full
type Source interface {
	Fetch(ctx context.Context, mode LookbackMode, now time.Time) ([]RawMessage, error)
}

// Monitor reads candidate messages from an IMAP mailbox
type Monitor struct {
	config config.InboxConfig
	window Window
	client *client.Client
	logger *zap.Logger
}

// NewMonitor creates a new IMAP mail source
func NewMonitor(cfg config.InboxConfig, window Window, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		config: cfg,
		window: window,
		logger: logger,
	}
}

// Connect establishes the IMAP connection
func (m *Monitor) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)

	m.logger.Info("connecting to IMAP server", zap.String("addr", addr))

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(m.config.Email, m.config.Password); err != nil {
		c.Logout()
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	m.client = c
	m.logger.Info("IMAP login successful", zap.String("user", m.config.Email))
	return nil
}

// Disconnect closes the IMAP connection
func (m *Monitor) Disconnect() error {
	if m.client != nil {
		err := m.client.Logout()
		m.client = nil
		return err
	}
	return nil
}

// subjectCriteria builds "SUBJECT k1 OR SUBJECT k2 OR ..." as nested ORs
func subjectCriteria(keywords []string) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	c.Header.Add("Subject", keywords[0])
	if len(keywords) == 1 {
		return c
	}
	or := imap.NewSearchCriteria()
	or.Or = [][2]*imap.SearchCriteria{{c, subjectCriteria(keywords[1:])}}
	return or
}

// Fetch lists messages whose subject carries a search keyword and that
// arrived within the mode's lookback, then fetches each one in full.
// IMAP SINCE has day granularity; the filter applies the exact threshold.
func (m *Monitor) Fetch(ctx context.Context, mode LookbackMode, now time.Time) ([]RawMessage, error) {
	if m.client == nil {
		return nil, ErrNotConnected
	}

	mbox, err := m.client.Select(m.config.Folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", m.config.Folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	threshold := m.window.Threshold(mode, now)
	criteria := subjectCriteria(SearchKeywords)
	criteria.Since = threshold

	m.logger.Info("searching mailbox",
		zap.String("folder", m.config.Folder),
		zap.String("query", m.window.SearchQuery(mode)),
		zap.Time("since", threshold),
	)

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	var messages []RawMessage
	for i := 0; i < len(uids); i += fetchBatchSize {
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		end := i + fetchBatchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch, err := m.fetchBatch(uids[i:end])
		if err != nil {
			return messages, err
		}
		messages = append(messages, batch...)
	}

	m.logger.Info("fetched candidate messages", zap.Int("count", len(messages)))
	return messages, nil
}

func (m *Monitor) fetchBatch(uids []uint32) ([]RawMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqSet, items, ch)
	}()

	var messages []RawMessage
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		fallbackID := m.config.Folder + ":" + strconv.FormatUint(uint64(msg.Uid), 10)
		raw, err := ReadRawMessage(body, "")
		if err != nil {
			m.logger.Warn("failed to parse message", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		if raw.ID == "" {
			raw.ID = fallbackID
		}
		messages = append(messages, raw)
	}

	if err := <-done; err != nil {
		return messages, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
