package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"moe-bot/internal/modules/audit"
	"moe-bot/internal/settings"
	"moe-bot/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrPassInProgress = errors.New("sweep already in progress")

// Resolver is the subset of *discordgo.Session the sweeper needs.
type Resolver interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Store interface {
	Targets() []settings.Target
	Update(fn func(settings.Collection) bool) error
}

type Config struct {
	Interval      time.Duration
	InitialDelay  time.Duration
	Concurrency   int
	RetentionDays int
}

// Result summarises one pass.
type Result struct {
	ChannelsRemoved int
	MessagesRemoved int
	Skipped         int
}

func (r Result) Removed() int { return r.ChannelsRemoved + r.MessagesRemoved }

type removal struct {
	guildID   string
	channelID string
	messageID string // empty for a whole channel
}

// Sweeper reconciles the reaction-role table against live channels and
// messages.
type Sweeper struct {
	cfg      Config
	store    Store
	resolver Resolver
	audit    *audit.Logger
	logger   *zap.Logger
	running  sync.Mutex
}

func New(cfg Config, store Store, resolver Resolver, auditLogger *audit.Logger, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{cfg: cfg, store: store, resolver: resolver, audit: auditLogger, logger: logger}
}

// Start runs a pass after the initial delay and then on every interval until
// ctx is done or the returned stop function is called.
func (s *Sweeper) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.InitialDelay):
		}
		s.runLogged(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	started := time.Now()
	result, err := s.RunOnce(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("integrity sweep failed", zap.Error(err))
		}
		return
	}
	s.audit.Cleanup(ctx, s.cfg.RetentionDays)
	s.logger.Info("integrity sweep done",
		zap.Int("channels_removed", result.ChannelsRemoved),
		zap.Int("messages_removed", result.MessagesRemoved),
		zap.Int("skipped", result.Skipped),
		zap.Duration("took", time.Since(started)),
	)
}

// RunOnce performs a single pass. Only one pass runs at a time; a concurrent
// call returns ErrPassInProgress. Removals are applied with a single store
// update.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrPassInProgress
	}
	defer s.running.Unlock()

	byGuild := groupTargets(s.store.Targets())
	guildIDs := make([]string, 0, len(byGuild))
	for guildID := range byGuild {
		guildIDs = append(guildIDs, guildID)
	}
	sort.Strings(guildIDs)

	found := make([][]removal, len(guildIDs))
	skipped := make([]int, len(guildIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, guildID := range guildIDs {
		i, guildID := i, guildID
		g.Go(func() error {
			removals, skips, err := s.checkGuild(gctx, guildID, byGuild[guildID])
			found[i] = removals
			skipped[i] = skips
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var result Result
	var removals []removal
	for i := range guildIDs {
		removals = append(removals, found[i]...)
		result.Skipped += skipped[i]
	}
	if len(removals) == 0 {
		return result, nil
	}

	err := s.store.Update(func(c settings.Collection) bool {
		changed := false
		for _, r := range removals {
			if r.messageID == "" {
				if c.UnbindChannel(r.guildID, r.channelID) {
					result.ChannelsRemoved++
					changed = true
				}
				continue
			}
			if c.UnbindMessage(r.guildID, r.channelID, r.messageID) {
				result.MessagesRemoved++
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		return result, fmt.Errorf("persist sweep: %w", err)
	}

	for _, r := range removals {
		details := "channel=" + r.channelID
		if r.messageID != "" {
			details += " message=" + r.messageID
		}
		s.audit.Log(ctx, audit.LevelInfo, r.guildID, "", audit.EventReactionPruned, details)
	}
	return result, nil
}

// checkGuild verifies every channel and message of one guild. Only vanished
// resources are reported for removal; other failures are skipped.
func (s *Sweeper) checkGuild(ctx context.Context, guildID string, channels map[string][]string) ([]removal, int, error) {
	var removals []removal
	skipped := 0

	channelIDs := make([]string, 0, len(channels))
	for channelID := range channels {
		channelIDs = append(channelIDs, channelID)
	}
	sort.Strings(channelIDs)

	for _, channelID := range channelIDs {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if _, err := s.resolver.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
			if utils.IsGone(err) {
				removals = append(removals, removal{guildID: guildID, channelID: channelID})
				continue
			}
			s.logger.Warn("sweep channel check failed", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
			skipped += len(channels[channelID])
			continue
		}

		for _, messageID := range channels[channelID] {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			if _, err := s.resolver.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
				if utils.IsGone(err) {
					removals = append(removals, removal{guildID: guildID, channelID: channelID, messageID: messageID})
					continue
				}
				s.logger.Warn("sweep message check failed", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.String("message_id", messageID), zap.Error(err))
				skipped++
			}
		}
	}
	return removals, skipped, nil
}

func groupTargets(targets []settings.Target) map[string]map[string][]string {
	out := make(map[string]map[string][]string)
	for _, t := range targets {
		channels, ok := out[t.GuildID]
		if !ok {
			channels = make(map[string][]string)
			out[t.GuildID] = channels
		}
		channels[t.ChannelID] = append(channels[t.ChannelID], t.MessageID)
	}
	return out
}
