package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/howie/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "prefix",
		Description:              "Change the chat command prefix (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "value",
				Description: "The new prefix",
				Required:    true,
			},
		},
	}, handlePrefixSlash)
}

func handlePrefixSlash(event *events.ApplicationCommandInteractionCreate) {
	if active == nil {
		return
	}
	data := event.SlashCommandInteractionData()
	reply := active.changePrefix(sys.AppContext, data.String("value"))

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(reply).
		SetEphemeral(true).
		Build())
}
