package audit

import (
	"context"
	"testing"
	"time"

	"moe-bot/internal/storage"

	"go.uber.org/zap"
)

func TestLogPersistsAndNotifies(t *testing.T) {
	db, err := storage.NewAuditDB(":memory:")
	if err != nil {
		t.Fatalf("new audit db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := NewLogger(db, zap.NewNop())
	now := time.Unix(1_700_000_000, 0)
	logger.now = func() time.Time { return now }

	var notified []storage.AuditLog
	logger.SetNotifier(func(_ context.Context, entry storage.AuditLog) {
		notified = append(notified, entry)
	})

	ctx := context.Background()
	logger.Log(ctx, LevelCrit, "g1", "u1", EventHoneypotBan, "channel=7")

	if len(notified) != 1 || notified[0].Event != EventHoneypotBan {
		t.Fatalf("unexpected notifications %+v", notified)
	}
	logs, err := db.ListAuditLogs(ctx, "g1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].Level != LevelCrit {
		t.Fatalf("unexpected logs %+v", logs)
	}

	if got := logger.Infraction(ctx, "g1", "u1", "honeypot", "ban"); got != 1 {
		t.Fatalf("expected first infraction, got %d", got)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Log(context.Background(), LevelInfo, "g1", "", "noop", "")
	if got := logger.Infraction(context.Background(), "g1", "u1", "honeypot", "ban"); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
