package bot

import (
	"context"
	"fmt"
	"sort"

	"moe-bot/internal/modules/audit"
	"moe-bot/internal/settings"
	"moe-bot/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const missingChannelsNotice = "Hello! It seems that no system channel was found, and no welcome/goodbye channels are set.\n\n" +
	"Please set the system channel from **Server Settings -> Engagement -> System Message Channel** " +
	"or use `/set_welcome_channel` and/or `/set_goodbye_channel` commands to configure them."

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", event.User.Username),
		zap.Int("guilds", len(event.Guilds)))
}

// onGuildCreate fires for every guild at startup and when the bot joins one.
func (b *Bot) onGuildCreate(session *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil || event.Unavailable {
		return
	}
	guild := event.Guild
	var missing bool
	err := b.store.Update(func(c settings.Collection) bool {
		changed := c.Ensure(guild.ID, guild.SystemChannelID)
		g := c[guild.ID]
		if g.FillChannels(guild.SystemChannelID) {
			changed = true
		}
		missing = g.ChannelsMissing()
		return changed
	})
	if err != nil {
		b.logger.Warn("settings save failed", zap.String("guild_id", guild.ID), zap.Error(err))
	}
	if missing {
		b.sendMissingChannelsNotice(context.Background(), guild)
	}
}

func (b *Bot) onGuildDelete(session *discordgo.Session, event *discordgo.GuildDelete) {
	if event.Guild == nil || event.Unavailable {
		return
	}
	var removed bool
	err := b.store.Update(func(c settings.Collection) bool {
		removed = c.Remove(event.ID)
		return removed
	})
	if err != nil {
		b.logger.Warn("settings save failed", zap.String("guild_id", event.ID), zap.Error(err))
		return
	}
	if removed {
		b.logger.Info("guild settings removed", zap.String("guild_id", event.ID))
	}
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.GuildID == "" {
		return
	}
	ctx := context.Background()
	g := b.guildSettings(event.GuildID)
	if _, err := b.greetings.Welcome(ctx, g, b.guildName(event.GuildID), event.Member); err != nil {
		b.logger.Warn("welcome failed", zap.String("guild_id", event.GuildID), zap.Error(err))
	}
	b.greetings.AssignAutoRoles(ctx, event.GuildID, g.AutoRoles, event.Member)
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.GuildID == "" {
		return
	}
	if event.User != nil && event.User.ID == b.selfID() {
		return
	}
	g, ok := b.store.Guild(event.GuildID)
	if !ok {
		return
	}
	if _, err := b.greetings.Goodbye(context.Background(), g, b.guildName(event.GuildID), event.Member); err != nil {
		b.logger.Warn("goodbye failed", zap.String("guild_id", event.GuildID), zap.Error(err))
	}
}

func (b *Bot) onReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.MessageReaction == nil || event.UserID == b.selfID() {
		return
	}
	if s, ok := b.wizards.ByPrompt(event.MessageID); ok {
		b.captureWizardEmoji(s, event.MessageReaction)
		return
	}
	b.applyReaction(event.MessageReaction, true)
}

func (b *Bot) onReactionRemove(session *discordgo.Session, event *discordgo.MessageReactionRemove) {
	if event.MessageReaction == nil || event.UserID == b.selfID() {
		return
	}
	if _, ok := b.wizards.ByPrompt(event.MessageID); ok {
		return
	}
	b.applyReaction(event.MessageReaction, false)
}

func (b *Bot) applyReaction(r *discordgo.MessageReaction, add bool) {
	roleID, err := b.roles.HandleReaction(context.Background(), r, add)
	if err != nil {
		b.logger.Warn("reaction role update failed",
			zap.String("guild_id", r.GuildID),
			zap.String("message_id", r.MessageID),
			zap.String("user_id", r.UserID),
			zap.String("role_id", roleID),
			zap.Bool("add", add),
			zap.Error(err))
	}
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	g, ok := b.store.Guild(msg.GuildID)
	if !ok || !g.HoneyPot.Enabled() || msg.ChannelID != g.HoneyPot.ChannelID.String() {
		return
	}
	out := b.honeypot.Handle(context.Background(), g.HoneyPot, msg.Message, b.ownerID(msg.GuildID))
	if out.Triggered {
		b.logger.Info("honeypot triggered",
			zap.String("guild_id", msg.GuildID),
			zap.String("user_id", msg.Author.ID),
			zap.Bool("notified", out.Notified),
			zap.Bool("banned", out.Banned),
			zap.Bool("deleted", out.Deleted))
	}
}

func (b *Bot) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if event.Message == nil || event.GuildID == "" {
		return
	}
	b.unbindMessages(event.GuildID, event.ChannelID, []string{event.ID})
}

func (b *Bot) onMessageDeleteBulk(session *discordgo.Session, event *discordgo.MessageDeleteBulk) {
	if event.GuildID == "" {
		return
	}
	b.unbindMessages(event.GuildID, event.ChannelID, event.Messages)
}

func (b *Bot) unbindMessages(guildID, channelID string, messageIDs []string) {
	var removed []string
	err := b.store.Update(func(c settings.Collection) bool {
		for _, id := range messageIDs {
			if c.UnbindMessage(guildID, channelID, id) {
				removed = append(removed, id)
			}
		}
		return len(removed) > 0
	})
	if err != nil {
		b.logger.Warn("settings save failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	for _, id := range removed {
		b.audit.Log(context.Background(), audit.LevelInfo, guildID, "", audit.EventReactionRemoved,
			fmt.Sprintf("channel=%s message=%s reason=message_deleted", channelID, id))
	}
}

func (b *Bot) onChannelDelete(session *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.GuildID == "" {
		return
	}
	var changed bool
	err := b.store.Update(func(c settings.Collection) bool {
		g, ok := c[event.GuildID]
		if !ok {
			return false
		}
		changed = g.ClearChannel(event.ID)
		return changed
	})
	if err != nil {
		b.logger.Warn("settings save failed", zap.String("guild_id", event.GuildID), zap.Error(err))
		return
	}
	if changed {
		b.audit.Log(context.Background(), audit.LevelInfo, event.GuildID, "", audit.EventSettingsChanged,
			fmt.Sprintf("channel=%s reason=channel_deleted", event.ID))
	}
}

// sendMissingChannelsNotice tells the guild that greetings have nowhere to go:
// the system channel if there is one, else a DM to the owner, else the first
// text channel the bot can write in.
func (b *Bot) sendMissingChannelsNotice(ctx context.Context, guild *discordgo.Guild) {
	opt := discordgo.WithContext(ctx)
	if guild.SystemChannelID != "" {
		if _, err := b.session.ChannelMessageSend(guild.SystemChannelID, missingChannelsNotice, opt); err == nil {
			return
		}
	}
	if guild.OwnerID != "" {
		dm, err := b.session.UserChannelCreate(guild.OwnerID, opt)
		if err == nil {
			text := fmt.Sprintf("Hello from %s in **%s**!\n\n%s", b.selfName(), guild.Name, missingChannelsNotice)
			if _, err = b.session.ChannelMessageSend(dm.ID, text, opt); err == nil {
				return
			}
		}
		if err != nil && !utils.IsForbidden(err) {
			b.logger.Warn("owner notice failed", zap.String("guild_id", guild.ID), zap.Error(err))
		}
	}
	channelID := firstWritableChannel(guild.Channels, func(channelID string) bool {
		perms, err := b.session.State.UserChannelPermissions(b.selfID(), channelID)
		return err == nil && perms&discordgo.PermissionSendMessages != 0
	})
	if channelID == "" {
		b.logger.Info("no channel for missing-channel notice", zap.String("guild_id", guild.ID))
		return
	}
	if _, err := b.session.ChannelMessageSend(channelID, missingChannelsNotice, opt); err != nil {
		b.logger.Warn("missing-channel notice failed", zap.String("guild_id", guild.ID), zap.Error(err))
	}
}

func (b *Bot) selfName() string {
	if b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.Username
	}
	return "the bot"
}

// firstWritableChannel picks the first text channel in display order that
// canSend accepts.
func firstWritableChannel(channels []*discordgo.Channel, canSend func(string) bool) string {
	text := make([]*discordgo.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil && ch.Type == discordgo.ChannelTypeGuildText {
			text = append(text, ch)
		}
	}
	sort.SliceStable(text, func(i, j int) bool { return text[i].Position < text[j].Position })
	for _, ch := range text {
		if canSend(ch.ID) {
			return ch.ID
		}
	}
	return ""
}
