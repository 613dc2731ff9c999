package analytics

import (
	"context"
	"sort"
	"time"

	"moe-bot/internal/modules/audit"
	"moe-bot/internal/storage"
)

const maxOffenders = 5

type Service struct {
	store *storage.AuditDB
}

func New(store *storage.AuditDB) *Service {
	return &Service{store: store}
}

type Report struct {
	Total     int
	ByLevel   map[string]int
	ByEvent   map[string]int
	Offenders []storage.Infraction
}

// Report summarises a guild's audit trail since the given time together with
// the users who tripped the honeypot most often in that window.
func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByLevel: make(map[string]int), ByEvent: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	report.Offenders = honeypotOffenders(logs, maxOffenders)
	return report, nil
}

func honeypotOffenders(logs []storage.AuditLog, limit int) []storage.Infraction {
	byUser := make(map[string]*storage.Infraction)
	for _, log := range logs {
		var action string
		switch log.Event {
		case audit.EventHoneypotBan:
			action = "ban"
		case audit.EventHoneypotFailed:
			action = "ban_failed"
		default:
			continue
		}
		if log.UserID == "" {
			continue
		}
		inf, ok := byUser[log.UserID]
		if !ok {
			inf = &storage.Infraction{GuildID: log.GuildID, UserID: log.UserID, Category: "honeypot"}
			byUser[log.UserID] = inf
		}
		inf.CountTotal++
		if !log.CreatedAt.Before(inf.LastAt) {
			inf.LastAt = log.CreatedAt
			inf.LastAction = action
		}
	}

	out := make([]storage.Infraction, 0, len(byUser))
	for _, inf := range byUser {
		out = append(out, *inf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CountTotal != out[j].CountTotal {
			return out[i].CountTotal > out[j].CountTotal
		}
		if !out[i].LastAt.Equal(out[j].LastAt) {
			return out[i].LastAt.After(out[j].LastAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
