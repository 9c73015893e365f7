package home

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/howie/proc"
	"github.com/leeineian/howie/sys"
	"golang.org/x/time/rate"
)

var errSamePrefix = errors.New(sys.ErrRouterPrefixSame)

// Searcher turns free text into a playable reference.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Message is the part of a guild message the router looks at.
type Message struct {
	GuildID        snowflake.ID
	ChannelID      snowflake.ID
	AuthorID       snowflake.ID
	AuthorName     string
	Content        string
	VoiceChannelID *snowflake.ID
}

// Router maps prefixed chat commands to coordinator calls.
type Router struct {
	coord  *proc.Coordinator
	search Searcher
	cfg    *sys.Config
	client *bot.Client

	send     func(channelID snowflake.ID, content string)
	persist  func(ctx context.Context, prefix string) error
	commands map[string]func(ctx context.Context, m Message, arg string)

	mu     sync.RWMutex
	prefix string

	limMu    sync.Mutex
	limiters map[snowflake.ID]*rate.Limiter
}

var active *Router

func init() {
	sys.RegisterMessageHandler(func(event *events.GuildMessageCreate) {
		if active != nil {
			active.onMessage(event)
		}
	})
	sys.RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		if active != nil {
			active.onVoiceStateUpdate(event)
		}
	})
}

func NewRouter(client *bot.Client, coord *proc.Coordinator, search Searcher, cfg *sys.Config) *Router {
	out := NewAnnouncer(client)
	r := &Router{
		coord:    coord,
		search:   search,
		cfg:      cfg,
		client:   client,
		prefix:   cfg.CommandPrefix,
		limiters: make(map[snowflake.ID]*rate.Limiter),
		persist: func(ctx context.Context, prefix string) error {
			return sys.SetBotConfig(ctx, sys.KeyCommandPrefix, prefix)
		},
	}
	r.send = out.Send
	r.commands = map[string]func(ctx context.Context, m Message, arg string){
		"h":      r.handleHelp,
		"p":      r.handlePlay,
		"s":      r.handleSkip,
		"x":      r.handleExit,
		"q":      r.handleQueue,
		"n":      r.handlePlayNext,
		"prefix": r.handlePrefix,
	}
	return r
}

// Setup makes r the router that receives gateway events.
func Setup(r *Router) {
	active = r
}

func (r *Router) Prefix() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefix
}

// parseCommand splits "<prefix><cmd> <arg>" into cmd and arg.
func parseCommand(content, prefix string) (cmd, arg string, ok bool) {
	content = strings.TrimSpace(content)
	if len(content) < 2 || prefix == "" {
		return "", "", false
	}
	head, rest, _ := strings.Cut(content, " ")
	if !strings.HasPrefix(head, prefix) {
		return "", "", false
	}
	cmd = strings.ToLower(strings.TrimPrefix(head, prefix))
	if cmd == "" {
		return "", "", false
	}
	return cmd, strings.TrimSpace(rest), true
}

func (r *Router) allow(userID snowflake.ID) bool {
	r.limMu.Lock()
	defer r.limMu.Unlock()
	l, ok := r.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.cfg.CommandRate), r.cfg.CommandBurst)
		r.limiters[userID] = l
	}
	return l.Allow()
}

func (r *Router) onMessage(event *events.GuildMessageCreate) {
	m := Message{
		GuildID:    event.GuildID,
		ChannelID:  event.ChannelID,
		AuthorID:   event.Message.Author.ID,
		AuthorName: event.Message.Author.Username,
		Content:    event.Message.Content,
	}
	if vs, ok := event.Client().Caches.VoiceState(event.GuildID, m.AuthorID); ok && vs.ChannelID != nil {
		m.VoiceChannelID = vs.ChannelID
	}
	r.Handle(sys.AppContext, m)
}

// Handle runs the command in m, if any. Unknown commands are ignored.
func (r *Router) Handle(ctx context.Context, m Message) {
	cmd, arg, ok := parseCommand(m.Content, r.Prefix())
	if !ok {
		return
	}
	h, ok := r.commands[cmd]
	if !ok {
		return
	}
	if !r.allow(m.AuthorID) {
		sys.LogRouter(sys.MsgRouterRateLimited, m.AuthorName)
		r.send(m.ChannelID, sys.ErrRouterRateLimited)
		return
	}
	sys.LogRouter(sys.MsgRouterCommand, m.AuthorName, m.AuthorID, m.Content)
	h(ctx, m, arg)
}

func (r *Router) handleHelp(_ context.Context, m Message, _ string) {
	r.send(m.ChannelID, helpText(r.Prefix()))
}

func (r *Router) handlePlay(ctx context.Context, m Message, arg string) {
	if m.VoiceChannelID == nil {
		sys.LogRouter(sys.MsgRouterNoVoice, m.AuthorName)
		r.send(m.ChannelID, sys.ErrRouterNoVoice)
		return
	}
	if arg == "" {
		sys.LogRouter(sys.MsgRouterNoArgument, m.AuthorName)
		r.send(m.ChannelID, sys.ErrRouterNoArgument)
		return
	}
	ref := strings.Trim(arg, "<>")
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		u, err := r.search.Search(ctx, arg)
		if err != nil {
			r.send(m.ChannelID, fmt.Sprintf(sys.ErrRouterNothingFound, arg))
			return
		}
		ref = u
	}
	res := r.coord.Submit(ctx, proc.Request{
		Ref:            ref,
		GuildID:        m.GuildID,
		VoiceChannelID: *m.VoiceChannelID,
		TextChannelID:  m.ChannelID,
		RequestedBy:    m.AuthorName,
	})
	if res.Kind == proc.ResultCancelled {
		return
	}
	r.send(m.ChannelID, renderResult(res))
}

func (r *Router) handleSkip(_ context.Context, m Message, _ string) {
	if !r.cfg.SkipEnabled {
		r.send(m.ChannelID, sys.ErrRouterSkipDisabled)
		return
	}
	r.send(m.ChannelID, renderResult(r.coord.Skip()))
}

func (r *Router) handleExit(ctx context.Context, m Message, _ string) {
	r.send(m.ChannelID, renderResult(r.coord.Exit(ctx)))
}

func (r *Router) handleQueue(_ context.Context, m Message, _ string) {
	now, playing := r.coord.NowPlaying()
	r.send(m.ChannelID, renderQueue(now, playing, r.coord.Queue()))
}

func (r *Router) handlePlayNext(_ context.Context, m Message, arg string) {
	pos, err := strconv.Atoi(arg)
	if err != nil {
		r.send(m.ChannelID, sys.ErrRouterBadPosition)
		return
	}
	r.send(m.ChannelID, renderResult(r.coord.PlayNext(pos)))
}

func (r *Router) handlePrefix(ctx context.Context, m Message, arg string) {
	if arg == "" {
		r.send(m.ChannelID, sys.ErrRouterPrefixMissing)
		return
	}
	r.send(m.ChannelID, r.changePrefix(ctx, arg))
}

// changePrefix persists a new prefix and returns the reply text.
func (r *Router) changePrefix(ctx context.Context, prefix string) string {
	prefix, _, _ = strings.Cut(strings.TrimSpace(prefix), " ")
	if prefix == "" {
		return sys.ErrRouterPrefixMissing
	}
	if err := r.setPrefix(ctx, prefix); err != nil {
		if errors.Is(err, errSamePrefix) {
			return sys.ErrRouterPrefixSame
		}
		sys.LogError(sys.MsgRouterPrefixFail, err)
		return sys.ErrRouterPrefixFailed
	}
	sys.LogRouter(sys.MsgRouterPrefixUpdate, prefix)
	if r.client != nil {
		_ = r.client.SetPresence(ctx, gateway.WithListeningActivity(prefix+"h"))
	}
	return "Prefix has been updated to '" + prefix + "'"
}

func (r *Router) setPrefix(ctx context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prefix == r.prefix {
		return errSamePrefix
	}
	if err := r.persist(ctx, prefix); err != nil {
		return err
	}
	r.prefix = prefix
	return nil
}

func (r *Router) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID != event.Client().ID() || event.VoiceState.ChannelID != nil {
		return
	}
	if r.coord.Disconnected() {
		sys.LogVoice(sys.MsgVoiceExternalDisconnect, event.VoiceState.GuildID)
	}
}

// Announcer posts results nobody is waiting for to the request's channel.
type Announcer struct {
	client *bot.Client
}

func NewAnnouncer(client *bot.Client) *Announcer {
	return &Announcer{client: client}
}

func (a *Announcer) Send(channelID snowflake.ID, content string) {
	if content == "" || a.client == nil {
		return
	}
	if _, err := a.client.Rest.CreateMessage(channelID, discord.MessageCreate{Content: content}); err != nil {
		sys.LogError(sys.MsgRouterSendFail, channelID, err)
	}
}

// Announce implements proc.Notifier.
func (a *Announcer) Announce(req proc.Request, res proc.Result) {
	if res.Kind == proc.ResultCancelled {
		return
	}
	a.Send(req.TextChannelID, renderResult(res))
}
