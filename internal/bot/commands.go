package bot

import "github.com/bwmarrin/discordgo"

func textChannelOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     required,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	dmPermission := false
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
		{
			Name:         "set_welcome_channel",
			Description:  "Set the channel for welcome messages",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				textChannelOption("channel", "Channel for welcome messages", true),
			},
		},
		{
			Name:         "set_goodbye_channel",
			Description:  "Set the channel for goodbye messages",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				textChannelOption("channel", "Channel for goodbye messages", true),
			},
		},
		{
			Name:         "greetings",
			Description:  "Turn welcome and goodbye messages on or off",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Whether greetings are sent",
					Required:    true,
				},
			},
		},
		{
			Name:         "message_template",
			Description:  "Show or edit the welcome/goodbye message templates",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "type",
					Description: "welcome or goodbye",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "welcome", Value: templateWelcome},
						{Name: "goodbye", Value: templateGoodbye},
					},
				},
			},
		},
		{
			Name:         "reaction_roles",
			Description:  "Create a reaction role message or manage existing ones",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "create (default) or manage",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "create", Value: "create"},
						{Name: "manage", Value: "manage"},
					},
				},
			},
		},
		{
			Name:         "add_reaction_role",
			Description:  "Bind an emoji to a role on an existing message",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				textChannelOption("channel", "Channel of the message", true),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message_id",
					Description: "ID of the message",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "emoji",
					Description: "Emoji to react with",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Role to grant",
					Required:    true,
				},
			},
		},
		{
			Name:         "remove_reaction_role",
			Description:  "Remove a reaction role binding, or all bindings of a message",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				textChannelOption("channel", "Channel of the message", true),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message_id",
					Description: "ID of the message",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "emoji",
					Description: "Only remove this emoji",
					Required:    false,
				},
			},
		},
		{
			Name:         "auto_roles",
			Description:  "Manage roles granted on join",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "add, remove or list",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "add", Value: "add"},
						{Name: "remove", Value: "remove"},
						{Name: "list", Value: "list"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "target",
					Description: "users or bots",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "users", Value: "users"},
						{Name: "bots", Value: "bots"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Role to add or remove",
					Required:    false,
				},
			},
		},
		{
			Name:         "honey_pot",
			Description:  "Configure the honeypot channel",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "set, disable or status",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "set", Value: "set"},
						{Name: "disable", Value: "disable"},
						{Name: "status", Value: "status"},
					},
				},
				textChannelOption("channel", "Trap channel", false),
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "allow_owner",
					Description: "Exempt the server owner",
					Required:    false,
				},
				textChannelOption("mod_channel", "Channel for honeypot alerts", false),
			},
		},
		{
			Name:         "report",
			Description:  "Summarise recent moderation activity",
			DMPermission: &dmPermission,
		},
	}
}

// registerCommands reconciles the global command set: changed commands are
// edited, new ones created, stale ones deleted.
func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		_, err := b.session.ApplicationCommandBulkOverwrite(appID, "", commands)
		return err
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}
