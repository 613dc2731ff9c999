package audit

import (
	"context"
	"time"

	"moe-bot/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	EventHoneypotBan      = "honeypot_ban"
	EventHoneypotFailed   = "honeypot_failed"
	EventReactionPruned   = "reaction_roles_pruned"
	EventReactionCommit   = "reaction_roles_created"
	EventReactionRemoved  = "reaction_roles_removed"
	EventSettingsChanged  = "settings_changed"
	EventAuditLogsCleaned = "audit_logs_cleaned"
)

type Logger struct {
	store  *storage.AuditDB
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
	now    func() time.Time
}

func NewLogger(store *storage.AuditDB, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	if l == nil {
		return
	}
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit persist failed", zap.String("event", event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// Infraction records one more offence for the user and returns the total, or 0
// when no database is attached.
func (l *Logger) Infraction(ctx context.Context, guildID, userID, category, action string) int {
	if l == nil || l.store == nil {
		return 0
	}
	count, err := l.store.IncrementInfraction(ctx, guildID, userID, category, action, l.now())
	if err != nil {
		l.logger.Warn("infraction persist failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	return count
}

// Cleanup drops entries older than retentionDays.
func (l *Logger) Cleanup(ctx context.Context, retentionDays int) {
	if l == nil || l.store == nil || retentionDays <= 0 {
		return
	}
	removed, err := l.store.CleanupAuditLogs(ctx, l.now(), retentionDays)
	if err != nil {
		l.logger.Warn("audit cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		l.logger.Info("audit cleanup", zap.Int64("removed", removed), zap.Int("retention_days", retentionDays))
	}
}
