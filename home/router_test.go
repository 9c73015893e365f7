package home

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/howie/sys"
)

type sent struct {
	mu    sync.Mutex
	lines []string
}

func (s *sent) send(_ snowflake.ID, content string) {
	s.mu.Lock()
	s.lines = append(s.lines, content)
	s.mu.Unlock()
}

func (s *sent) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		t.Fatal("nothing was sent")
	}
	return s.lines[len(s.lines)-1]
}

func (s *sent) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func newTestRouter(t *testing.T) (*Router, *sent, *[]string) {
	t.Helper()
	cfg := &sys.Config{
		CommandPrefix: "/",
		SkipEnabled:   true,
		CommandRate:   100,
		CommandBurst:  100,
	}
	r := NewRouter(nil, nil, nil, cfg)
	out := &sent{}
	r.send = out.send
	var stored []string
	r.persist = func(_ context.Context, prefix string) error {
		stored = append(stored, prefix)
		return nil
	}
	return r, out, &stored
}

func msg(content string) Message {
	return Message{ChannelID: 1, AuthorID: 2, AuthorName: "tester", Content: content}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		content, prefix string
		cmd, arg        string
		ok              bool
	}{
		{content: "/p never gonna", prefix: "/", cmd: "p", arg: "never gonna", ok: true},
		{content: "  /Q  ", prefix: "/", cmd: "q", ok: true},
		{content: "!!n 3", prefix: "!!", cmd: "n", arg: "3", ok: true},
		{content: "/", prefix: "/", ok: false},
		{content: "hello", prefix: "/", ok: false},
		{content: "/ p", prefix: "/", ok: false},
	}
	for _, tc := range cases {
		cmd, arg, ok := parseCommand(tc.content, tc.prefix)
		if cmd != tc.cmd || arg != tc.arg || ok != tc.ok {
			t.Fatalf("parseCommand(%q, %q) = %q, %q, %v", tc.content, tc.prefix, cmd, arg, ok)
		}
	}
}

func TestHandleHelp(t *testing.T) {
	r, out, _ := newTestRouter(t)
	r.Handle(context.Background(), msg("/h"))
	if got := out.last(t); got != helpText("/") {
		t.Fatalf("help reply = %q", got)
	}
}

func TestHandleIgnoresUnknownAndUnprefixed(t *testing.T) {
	r, out, _ := newTestRouter(t)
	r.Handle(context.Background(), msg("/dance"))
	r.Handle(context.Background(), msg("p something"))
	if n := out.count(); n != 0 {
		t.Fatalf("sent %d replies, want 0", n)
	}
}

func TestPlayRequiresVoiceAndArgument(t *testing.T) {
	r, out, _ := newTestRouter(t)

	r.Handle(context.Background(), msg("/p https://youtu.be/a"))
	if got := out.last(t); got != sys.ErrRouterNoVoice {
		t.Fatalf("reply = %q, want %q", got, sys.ErrRouterNoVoice)
	}

	m := msg("/p")
	vc := snowflake.ID(42)
	m.VoiceChannelID = &vc
	r.Handle(context.Background(), m)
	if got := out.last(t); got != sys.ErrRouterNoArgument {
		t.Fatalf("reply = %q, want %q", got, sys.ErrRouterNoArgument)
	}
}

func TestSkipDisabled(t *testing.T) {
	r, out, _ := newTestRouter(t)
	r.cfg.SkipEnabled = false
	r.Handle(context.Background(), msg("/s"))
	if got := out.last(t); got != sys.ErrRouterSkipDisabled {
		t.Fatalf("reply = %q", got)
	}
}

func TestPlayNextBadPosition(t *testing.T) {
	r, out, _ := newTestRouter(t)
	r.Handle(context.Background(), msg("/n two"))
	if got := out.last(t); got != sys.ErrRouterBadPosition {
		t.Fatalf("reply = %q", got)
	}
}

func TestChangePrefix(t *testing.T) {
	r, out, stored := newTestRouter(t)
	ctx := context.Background()

	r.Handle(ctx, msg("/prefix !"))
	if got := out.last(t); got != "Prefix has been updated to '!'" {
		t.Fatalf("reply = %q", got)
	}
	if r.Prefix() != "!" || len(*stored) != 1 || (*stored)[0] != "!" {
		t.Fatalf("prefix = %q, stored = %v", r.Prefix(), *stored)
	}

	// old prefix no longer answers
	r.Handle(ctx, msg("/h"))
	if got := out.last(t); got != "Prefix has been updated to '!'" {
		t.Fatalf("old prefix still handled: %q", got)
	}

	r.Handle(ctx, msg("!prefix !"))
	if got := out.last(t); got != sys.ErrRouterPrefixSame {
		t.Fatalf("reply = %q, want %q", got, sys.ErrRouterPrefixSame)
	}
	if len(*stored) != 1 {
		t.Fatalf("same prefix was persisted again: %v", *stored)
	}

	r.Handle(ctx, msg("!prefix"))
	if got := out.last(t); got != sys.ErrRouterPrefixMissing {
		t.Fatalf("reply = %q", got)
	}
}

func TestChangePrefixPersistFailure(t *testing.T) {
	r, _, _ := newTestRouter(t)
	r.persist = func(context.Context, string) error { return errors.New("disk full") }

	if got := r.changePrefix(context.Background(), "?"); got != sys.ErrRouterPrefixFailed {
		t.Fatalf("changePrefix() = %q", got)
	}
	if r.Prefix() != "/" {
		t.Fatalf("prefix changed to %q after failed persist", r.Prefix())
	}
}

func TestRateLimit(t *testing.T) {
	r, out, _ := newTestRouter(t)
	r.cfg.CommandRate = 0.001
	r.cfg.CommandBurst = 1

	r.Handle(context.Background(), msg("/h"))
	r.Handle(context.Background(), msg("/h"))
	if got := out.last(t); got != sys.ErrRouterRateLimited {
		t.Fatalf("reply = %q, want rate limit notice", got)
	}

	other := msg("/h")
	other.AuthorID = 3
	r.Handle(context.Background(), other)
	if got := out.last(t); got != helpText("/") {
		t.Fatalf("other user was limited: %q", got)
	}
}

func TestChangePrefixRejectsBlank(t *testing.T) {
	r, _, stored := newTestRouter(t)

	if got := r.changePrefix(context.Background(), "   "); got != sys.ErrRouterPrefixMissing {
		t.Fatalf("changePrefix() = %q, want %q", got, sys.ErrRouterPrefixMissing)
	}
	if r.Prefix() != "/" || len(*stored) != 0 {
		t.Fatalf("prefix = %q, stored = %v", r.Prefix(), *stored)
	}
}

type failingSearch struct{}

func (failingSearch) Search(context.Context, string) (string, error) {
	return "", errors.New("no results")
}

func TestPlaySearchMiss(t *testing.T) {
	r, out, _ := newTestRouter(t)
	r.search = failingSearch{}

	m := msg("/p some song")
	vc := snowflake.ID(42)
	m.VoiceChannelID = &vc
	r.Handle(context.Background(), m)
	if got, want := out.last(t), fmt.Sprintf(sys.ErrRouterNothingFound, "some song"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}
