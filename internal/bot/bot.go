package bot

import (
	"context"
	"fmt"
	"time"

	"moe-bot/internal/analytics"
	"moe-bot/internal/config"
	"moe-bot/internal/modules/audit"
	"moe-bot/internal/modules/greetings"
	"moe-bot/internal/modules/honeypot"
	"moe-bot/internal/modules/reactionroles"
	"moe-bot/internal/settings"
	"moe-bot/internal/storage"
	"moe-bot/internal/sweeper"
	"moe-bot/internal/wizard"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	audit     *audit.Logger
	analytics *analytics.Service
	session   *discordgo.Session
	honeypot  *honeypot.Module
	greetings *greetings.Module
	roles     *reactionroles.Module
	wizards   *wizard.Manager
	sweeper   *sweeper.Sweeper

	stopSweep func()
	stopReap  func()
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, analyticsSvc *analytics.Service, banners greetings.BannerRenderer) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		analytics: analyticsSvc,
		session:   session,
	}

	b.honeypot = honeypot.New(session, auditLogger, logger.Named("honeypot"))
	b.greetings = greetings.New(session, banners, logger.Named("greetings"))
	b.roles = reactionroles.New(session, store, auditLogger, logger.Named("reaction_roles"))
	b.wizards = wizard.NewManager(cfg.WizardEmojiTimeout(), cfg.WizardSessionTTL())
	b.wizards.OnExpire(b.onWizardExpired)
	b.sweeper = sweeper.New(sweeper.Config{
		Interval:      cfg.SweepInterval(),
		InitialDelay:  cfg.SweepInitialDelay(),
		Concurrency:   cfg.Sweep.Concurrency,
		RetentionDays: cfg.RetentionDays,
	}, store, session, auditLogger, logger.Named("sweeper"))

	if b.audit != nil {
		b.audit.SetNotifier(b.notifyAudit)
	}

	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(safe(b, "ready", b.onReady))
	b.session.AddHandler(safe(b, "guild_create", b.onGuildCreate))
	b.session.AddHandler(safe(b, "guild_delete", b.onGuildDelete))
	b.session.AddHandler(safe(b, "member_add", b.onGuildMemberAdd))
	b.session.AddHandler(safe(b, "member_remove", b.onGuildMemberRemove))
	b.session.AddHandler(safe(b, "reaction_add", b.onReactionAdd))
	b.session.AddHandler(safe(b, "reaction_remove", b.onReactionRemove))
	b.session.AddHandler(safe(b, "message_create", b.onMessageCreate))
	b.session.AddHandler(safe(b, "message_delete", b.onMessageDelete))
	b.session.AddHandler(safe(b, "message_delete_bulk", b.onMessageDeleteBulk))
	b.session.AddHandler(safe(b, "channel_delete", b.onChannelDelete))
	b.session.AddHandler(safe(b, "interaction_create", b.onInteractionCreate))

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.stopSweep = b.sweeper.Start(ctx)
	b.stopReap = b.wizards.StartReaper(ctx, time.Minute)
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.stopReap != nil {
		b.stopReap()
	}
	if b.stopSweep != nil {
		b.stopSweep()
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

// GuildCount reports the guilds in the gateway state.
func (b *Bot) GuildCount() int {
	if b.session == nil || b.session.State == nil {
		return 0
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	return len(b.session.State.Guilds)
}

// safe wraps an event handler so that a panic is logged instead of killing
// the gateway dispatch goroutine.
func safe[T any](b *Bot, name string, fn func(*discordgo.Session, T)) func(*discordgo.Session, T) {
	return func(s *discordgo.Session, event T) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("handler panic",
					zap.String("handler", name),
					zap.Any("panic", r),
					zap.Stack("stack"))
			}
		}()
		fn(s, event)
	}
}

func (b *Bot) selfID() string {
	if b.session == nil || b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.ID
}

func (b *Bot) guild(guildID string) *discordgo.Guild {
	guild, err := b.session.State.Guild(guildID)
	if err == nil && guild != nil {
		return guild
	}
	guild, err = b.session.Guild(guildID)
	if err != nil {
		return nil
	}
	return guild
}

func (b *Bot) guildName(guildID string) string {
	if guild := b.guild(guildID); guild != nil {
		return guild.Name
	}
	return ""
}

func (b *Bot) ownerID(guildID string) string {
	if guild := b.guild(guildID); guild != nil {
		return guild.OwnerID
	}
	return ""
}

// guildSettings returns a copy of the guild's settings, creating the defaults
// if the guild was never seen.
func (b *Bot) guildSettings(guildID string) *settings.Guild {
	if g, ok := b.store.Guild(guildID); ok {
		return g
	}
	systemChannel := ""
	if guild := b.guild(guildID); guild != nil {
		systemChannel = guild.SystemChannelID
	}
	if err := b.store.Update(func(c settings.Collection) bool { return c.Ensure(guildID, systemChannel) }); err != nil {
		b.logger.Warn("settings save failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	if g, ok := b.store.Guild(guildID); ok {
		return g
	}
	return settings.NewGuild(systemChannel)
}

// updateGuild mutates one guild's settings and saves once if fn reports a
// change.
func (b *Bot) updateGuild(guildID string, fn func(*settings.Guild) bool) error {
	b.guildSettings(guildID)
	return b.store.Update(func(c settings.Collection) bool {
		g, ok := c[guildID]
		if !ok {
			return false
		}
		return fn(g)
	})
}

// notifyAudit mirrors warnings about pruned bindings and failed honeypot bans
// to the guild's moderation channel.
func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	if entry.Event != audit.EventReactionPruned && entry.Event != audit.EventHoneypotFailed {
		return
	}
	g, ok := b.store.Guild(entry.GuildID)
	if !ok || g.HoneyPot.ModChannelID.IsZero() {
		return
	}
	embed := b.commandEmbed("Audit: "+entry.Event, entry.Details, b.cfg.Notifications.EmbedColors.Error, nil)
	if _, err := b.session.ChannelMessageSendEmbed(g.HoneyPot.ModChannelID.String(), embed, discordgo.WithContext(ctx)); err != nil {
		b.logger.Debug("audit notify failed", zap.String("guild_id", entry.GuildID), zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		b.logger.Debug("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondError(session *discordgo.Session, interaction *discordgo.InteractionCreate, message string) {
	b.respond(session, interaction, "❌ "+message, true)
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      flags,
		},
	})
	if err != nil {
		b.logger.Debug("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func formatReport(report analytics.Report) string {
	return fmt.Sprintf("Total: %d | INFO: %d | WARN: %d | CRIT: %d", report.Total, report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
}
