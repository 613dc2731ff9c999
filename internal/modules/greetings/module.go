package greetings

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"moe-bot/internal/banner"
	"moe-bot/internal/settings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Placeholders understood by message templates.
const (
	PlaceholderMention     = "{member.mention}"
	PlaceholderDisplayName = "{member.display_name}"
	PlaceholderName        = "{member.name}"
	PlaceholderGuildName   = "{guild.name}"
)

// Sender is the subset of *discordgo.Session used to greet members.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserAvatarDecode(u *discordgo.User, options ...discordgo.RequestOption) (image.Image, error)
}

type BannerRenderer interface {
	Render(kind banner.Kind, displayName string, avatar image.Image) ([]byte, error)
}

type Module struct {
	sender  Sender
	banners BannerRenderer
	logger  *zap.Logger
}

func New(sender Sender, banners BannerRenderer, logger *zap.Logger) *Module {
	return &Module{sender: sender, banners: banners, logger: logger}
}

// DisplayName is the guild nickname, falling back to the username.
func DisplayName(member *discordgo.Member) string {
	if member == nil || member.User == nil {
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	return member.User.Username
}

// Render fills the template placeholders. Unknown placeholders are left as is.
func Render(template string, member *discordgo.Member, guildName string) string {
	var mention, name string
	if member != nil && member.User != nil {
		mention = member.User.Mention()
		name = member.User.Username
	}
	return strings.NewReplacer(
		PlaceholderMention, mention,
		PlaceholderDisplayName, DisplayName(member),
		PlaceholderName, name,
		PlaceholderGuildName, guildName,
	).Replace(template)
}

// Welcome posts the join greeting. It reports whether a message was sent.
func (m *Module) Welcome(ctx context.Context, guild *settings.Guild, guildName string, member *discordgo.Member) (bool, error) {
	if guild == nil {
		return false, nil
	}
	return m.greet(ctx, guild.Greetings, guild.WelcomeChannel, banner.Welcome, guildName, member)
}

// Goodbye posts the leave greeting.
func (m *Module) Goodbye(ctx context.Context, guild *settings.Guild, guildName string, member *discordgo.Member) (bool, error) {
	if guild == nil {
		return false, nil
	}
	return m.greet(ctx, guild.Greetings, guild.GoodbyeChannel, banner.Goodbye, guildName, member)
}

func (m *Module) greet(ctx context.Context, enabled bool, greeting settings.Greeting, kind banner.Kind, guildName string, member *discordgo.Member) (bool, error) {
	if !enabled || greeting.ChannelID.IsZero() || member == nil || member.User == nil {
		return false, nil
	}
	content := Render(greeting.Template.For(member.User.Bot), member, guildName)
	send := &discordgo.MessageSend{Content: content}

	if file := m.bannerFile(ctx, kind, member); file != nil {
		send.Files = []*discordgo.File{file}
	}

	if _, err := m.sender.ChannelMessageSendComplex(greeting.ChannelID.String(), send, discordgo.WithContext(ctx)); err != nil {
		return false, fmt.Errorf("send greeting to %s: %w", greeting.ChannelID, err)
	}
	return true, nil
}

// bannerFile renders the banner attachment. A failure is logged and the
// greeting goes out without it.
func (m *Module) bannerFile(ctx context.Context, kind banner.Kind, member *discordgo.Member) *discordgo.File {
	if m.banners == nil {
		return nil
	}
	avatar, err := m.sender.UserAvatarDecode(member.User, discordgo.WithContext(ctx))
	if err != nil {
		m.logger.Debug("avatar decode failed", zap.String("user_id", member.User.ID), zap.Error(err))
		avatar = nil
	}
	data, err := m.banners.Render(kind, DisplayName(member), avatar)
	if err != nil {
		m.logger.Warn("banner render failed", zap.String("user_id", member.User.ID), zap.Error(err))
		return nil
	}
	return &discordgo.File{Name: "banner.png", ContentType: "image/png", Reader: bytes.NewReader(data)}
}

// AssignAutoRoles grants the configured join roles. Every role is attempted;
// the granted ones are returned.
func (m *Module) AssignAutoRoles(ctx context.Context, guildID string, roles settings.AutoRoles, member *discordgo.Member) []string {
	if member == nil || member.User == nil {
		return nil
	}
	var granted []string
	for _, roleID := range roles.For(member.User.Bot) {
		if roleID == "" {
			continue
		}
		if err := m.sender.GuildMemberRoleAdd(guildID, member.User.ID, roleID, discordgo.WithContext(ctx)); err != nil {
			m.logger.Warn("auto role failed",
				zap.String("guild_id", guildID),
				zap.String("user_id", member.User.ID),
				zap.String("role_id", roleID),
				zap.Error(err))
			continue
		}
		granted = append(granted, roleID)
	}
	return granted
}
