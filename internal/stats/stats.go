package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	discordAuthorizeURL = "https://discord.com/oauth2/authorize"

	// InvitePermissions covers what the bot needs: manage roles, ban members,
	// view channels, send messages, manage messages, attach files, read
	// history, add reactions.
	InvitePermissions int64 = 0x10000000 | 0x4 | 0x400 | 0x800 | 0x2000 | 0x8000 | 0x10000 | 0x40
)

// GuildCounter reports how many guilds the gateway currently sees.
type GuildCounter interface {
	GuildCount() int
}

type GuildCounterFunc func() int

func (f GuildCounterFunc) GuildCount() int { return f() }

type Snapshot struct {
	GuildCount    int64  `json:"guild_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	InviteURL     string `json:"invite_url,omitempty"`
}

type Service struct {
	counter   GuildCounter
	interval  time.Duration
	started   time.Time
	now       func() time.Time
	inviteURL string
	logger    *zap.Logger

	guilds atomic.Int64
}

func New(counter GuildCounter, interval time.Duration, clientID string, logger *zap.Logger) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Service{
		counter:   counter,
		interval:  interval,
		started:   time.Now(),
		now:       time.Now,
		inviteURL: InviteURL(clientID, InvitePermissions),
		logger:    logger,
	}
}

// InviteURL builds the bot authorization link. It is empty without a client id.
func InviteURL(clientID string, permissions int64) string {
	if clientID == "" {
		return ""
	}
	conf := oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{AuthURL: discordAuthorizeURL},
		Scopes:   []string{"bot", "applications.commands"},
	}
	return conf.AuthCodeURL("", oauth2.SetAuthURLParam("permissions", strconv.FormatInt(permissions, 10)))
}

// Refresh reads the guild count once.
func (s *Service) Refresh() int {
	n := s.counter.GuildCount()
	s.guilds.Store(int64(n))
	return n
}

func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		GuildCount:    s.guilds.Load(),
		UptimeSeconds: int64(s.now().Sub(s.started) / time.Second),
		InviteURL:     s.inviteURL,
	}
}

// Start refreshes the count on every tick until ctx is done or stop is called.
func (s *Service) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.Refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// Handler serves the snapshot as JSON.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
			s.logger.Warn("stats encode failed", zap.Error(err))
		}
	})
}
