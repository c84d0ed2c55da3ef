package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hiretrack-ai/hiretrack/internal/config"
)

func TestNew(t *testing.T) {
	l, err := New(config.LedgerConfig{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := l.(Nop); !ok {
		t.Errorf("got %T, want Nop", l)
	}

	l, err = New(config.LedgerConfig{RedisURL: "redis://localhost:6379/2", TTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	if _, ok := l.(*Redis); !ok {
		t.Errorf("got %T, want *Redis", l)
	}

	if _, err := New(config.LedgerConfig{RedisURL: "ftp://nowhere"}, nil); err == nil {
		t.Error("expected error for a non-redis url")
	}
}

func TestRedisFailsOpen(t *testing.T) {
	// Nothing listens on port 1
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := NewRedis(rdb, time.Hour, nil)
	defer l.Close()

	ctx := context.Background()
	if l.Seen(ctx, "msg-1") {
		t.Error("unreachable ledger reported a message as seen")
	}
	if err := l.Mark(ctx, []string{"msg-1"}); err == nil {
		t.Error("expected Mark to fail against an unreachable ledger")
	}
	if err := l.Mark(ctx, nil); err != nil {
		t.Errorf("Mark(nil) = %v", err)
	}
}

func TestNop(t *testing.T) {
	var l Ledger = Nop{}
	if l.Seen(context.Background(), "x") {
		t.Error("Nop reported a message as seen")
	}
	if err := l.Mark(context.Background(), []string{"x"}); err != nil {
		t.Error(err)
	}
}
