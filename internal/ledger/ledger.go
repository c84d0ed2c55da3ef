// Package ledger remembers which messages earlier runs already turned into
// records, so overlapping lookback windows skip them.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hiretrack-ai/hiretrack/internal/config"
)

const keyPrefix = "hiretrack:processed:"

// Ledger records processed message IDs. Seen fails open: when the backing
// store is unreachable every message counts as unseen.
type Ledger interface {
	Seen(ctx context.Context, messageID string) bool
	Mark(ctx context.Context, messageIDs []string) error
	Close() error
}

// New returns a Redis ledger when a URL is configured, otherwise Nop
func New(cfg config.LedgerConfig, logger *zap.Logger) (Ledger, error) {
	if cfg.RedisURL == "" {
		return Nop{}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), cfg.TTL, logger), nil
}

type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}
}

func key(messageID string) string {
	return keyPrefix + messageID
}

func (r *Redis) Seen(ctx context.Context, messageID string) bool {
	n, err := r.rdb.Exists(ctx, key(messageID)).Result()
	if err != nil {
		r.logger.Warn("Redis ledger check failed, processing message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return false
	}
	if n > 0 {
		r.logger.Debug("Skipped already processed message",
			zap.String("message_id", messageID),
			zap.String("ledger_key", key(messageID)),
		)
	}
	return n > 0
}

// Mark records the IDs in one pipeline. Existing entries keep their TTL.
func (r *Redis) Mark(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	pipe := r.rdb.Pipeline()
	for _, id := range messageIDs {
		pipe.SetNX(ctx, key(id), 1, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark messages: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

// Nop is the ledger used when none is configured
type Nop struct{}

func (Nop) Seen(context.Context, string) bool    { return false }
func (Nop) Mark(context.Context, []string) error { return nil }
func (Nop) Close() error                         { return nil }
