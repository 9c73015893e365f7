package home

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/howie/proc"
	"github.com/leeineian/howie/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "status",
		Description:              "Show the player state (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handleStatus)
}

type playerStatus struct {
	State   proc.State
	Now     string
	Queued  int
	Prefix  string
	Uptime  time.Duration
	Latency time.Duration
}

func renderStatus(s playerStatus) string {
	now := "nothing"
	if s.Now != "" {
		now = truncate(s.Now, maxTitleLen)
	}
	return fmt.Sprintf("# Player\n\n> **State:** %s\n> **Now:** %s\n> **Queued:** %d\n> **Prefix:** `%s`\n> **Uptime:** %s\n> **Gateway:** %dms",
		s.State, now, s.Queued, s.Prefix, s.Uptime.Truncate(time.Second), s.Latency.Milliseconds())
}

func (r *Router) status() playerStatus {
	now, _ := r.coord.NowPlaying()
	return playerStatus{
		State:  r.coord.State(),
		Now:    now,
		Queued: len(r.coord.Queue()),
		Prefix: r.Prefix(),
		Uptime: time.Since(sys.StartupTime),
	}
}

func handleStatus(event *events.ApplicationCommandInteractionCreate) {
	if active == nil {
		return
	}
	s := active.status()
	s.Latency = event.Client().Gateway.Latency()

	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(renderStatus(s)),
			),
		).
		SetEphemeral(true).
		Build())
	if err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}
