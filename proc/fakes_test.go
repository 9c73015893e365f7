package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type fakeSource struct {
	mu       sync.Mutex
	meta     map[string]Metadata
	metaErr  error
	audio    []byte
	audioErr error
	// midErr fails the stream after the first chunk
	midErr error
	// block makes OpenAudio wait for ctx
	block bool
	// gate holds OpenAudio until closed
	gate     chan struct{}
	opens    int
	resolves int
}

func newFakeSource() *fakeSource {
	return &fakeSource{meta: map[string]Metadata{}, audio: []byte("opus-ish bytes")}
}

func (f *fakeSource) ResolveMetadata(_ context.Context, ref string) (Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if f.metaErr != nil {
		return Metadata{}, f.metaErr
	}
	if m, ok := f.meta[ref]; ok {
		return m, nil
	}
	return Metadata{URL: ref, Title: "title of " + ref, Duration: 3 * time.Minute}, nil
}

func (f *fakeSource) resolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolves
}

func (f *fakeSource) OpenAudio(ctx context.Context, _ string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.opens++
	audio, audioErr, midErr, block, gate := f.audio, f.audioErr, f.midErr, f.block, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if audioErr != nil {
		return nil, audioErr
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if midErr != nil {
		return io.NopCloser(io.MultiReader(bytes.NewReader(audio), errReader{midErr})), nil
	}
	return io.NopCloser(bytes.NewReader(audio)), nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConn
	live    int
	maxLive int
	err     error
	// hold stalls the next Connect until closed, ignoring ctx
	hold       chan struct{}
	connecting int
	// overlap is set when a Connect starts while another connection is
	// still open or being opened
	overlap bool
}

func (t *fakeTransport) Connect(_ context.Context, _, _ snowflake.ID) (Connection, error) {
	t.mu.Lock()
	if t.connecting > 0 || t.live > 0 {
		t.overlap = true
	}
	hold := t.hold
	t.hold = nil
	t.connecting++
	t.mu.Unlock()

	if hold != nil {
		<-hold
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.connecting--
	if t.err != nil {
		return nil, t.err
	}
	c := &fakeConn{t: t}
	t.conns = append(t.conns, c)
	t.live++
	if t.live > t.maxLive {
		t.maxLive = t.live
	}
	return c, nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[len(t.conns)-1]
}

func (t *fakeTransport) overlapped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overlap
}

func (t *fakeTransport) peak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxLive
}

type fakeConn struct {
	t *fakeTransport

	mu        sync.Mutex
	players   []*fakePlayer
	destroyed bool
}

func (c *fakeConn) NewPlayer() Player {
	p := &fakePlayer{done: make(chan error, 1)}
	c.mu.Lock()
	c.players = append(c.players, p)
	c.mu.Unlock()
	return p
}

func (c *fakeConn) Destroy(context.Context) error {
	c.mu.Lock()
	already := c.destroyed
	c.destroyed = true
	c.mu.Unlock()
	if !already {
		c.t.mu.Lock()
		c.t.live--
		c.t.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *fakeConn) player() *fakePlayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.players[len(c.players)-1]
}

type fakePlayer struct {
	mu   sync.Mutex
	path string
	once sync.Once
	done chan error
}

func (p *fakePlayer) Play(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	p.mu.Lock()
	p.path = path
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Stop() { p.finish(nil) }

func (p *fakePlayer) Done() <-chan error { return p.done }

func (p *fakePlayer) finish(err error) {
	p.once.Do(func() { p.done <- err })
}

func (p *fakePlayer) playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped.Store(true)
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) idleTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

type fakeNotifier struct {
	results chan Result
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{results: make(chan Result, 16)}
}

func (n *fakeNotifier) Announce(_ Request, res Result) { n.results <- res }

func (n *fakeNotifier) next(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-n.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement")
		return Result{}
	}
}

type harness struct {
	src      *fakeSource
	trans    *fakeTransport
	clock    *fakeClock
	notes    *fakeNotifier
	cache    *CacheStore
	queue    *Queue
	engine   *Engine
	coord    *Coordinator
	settings Settings
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		src:   newFakeSource(),
		trans: &fakeTransport{},
		clock: &fakeClock{},
		notes: newFakeNotifier(),
		cache: NewCacheStore(t.TempDir()),
		queue: NewQueue(),
		settings: Settings{
			MaxDurationMinutes: 10,
			IdleTimeout:        1500 * time.Millisecond,
		},
	}
	h.engine = NewEngine(NewPipeline(h.src, h.cache), h.queue, h.trans, h.settings, h.notes)
	h.engine.afterFunc = h.clock.afterFunc
	h.coord = NewCoordinator(h.engine, &Eligibility{Source: h.src, Settings: h.settings})
	return h
}

func request(ref string) Request {
	return Request{Ref: ref, GuildID: 1, VoiceChannelID: 2, TextChannelID: 3, RequestedBy: "tester"}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func cacheFiles(t *testing.T, c *CacheStore) []string {
	t.Helper()
	entries, err := os.ReadDir(c.Dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadDir() error: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
