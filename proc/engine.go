package proc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/howie/sys"
	"github.com/samber/lo"
)

// State is the playback engine's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateAwaitingDisconnect
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateAwaitingDisconnect:
		return "awaiting-disconnect"
	}
	return "unknown"
}

// Settings are fixed at construction.
type Settings struct {
	MaxDurationMinutes float64
	IdleTimeout        time.Duration
	StreamingEnabled   bool
}

// Transport opens voice connections.
type Transport interface {
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (Connection, error)
}

// Connection is one joined voice channel. Every started playback gets a new
// one; it is never reused.
type Connection interface {
	NewPlayer() Player
	Destroy(ctx context.Context) error
	Destroyed() bool
}

// Player plays one file. Done yields exactly once: nil when the file ended or
// Stop was called, non-nil on a transport or decode fault.
type Player interface {
	Play(path string) error
	Stop()
	Done() <-chan error
}

// Notifier receives results that no caller is waiting for: items started by
// queue advance and faults during playback.
type Notifier interface {
	Announce(req Request, res Result)
}

type nopNotifier struct{}

func (nopNotifier) Announce(Request, Result) {}

type idleTimer interface {
	Stop() bool
}

const destroyTimeout = 10 * time.Second

type session struct {
	conn   Connection
	player Player
	entry  CacheEntry
	item   *QueueItem
}

func (s *session) title() string {
	if name, ok := s.item.DisplayName(); ok {
		return name
	}
	return s.item.Ref()
}

// Engine owns the single playback session. All transitions happen under mu;
// downloads and connects run unlocked and are discarded when the generation
// moved on while they were in flight.
//
// The transport keys connections by guild, so a late destroy of an old
// connection would drop a newer one. voiceMu serializes connect with the
// stale-load destroy, and every other destroy is registered in retiring
// under mu before it runs; Connect waits for all of them.
type Engine struct {
	pipeline *Pipeline
	cache    *CacheStore
	queue    *Queue
	trans    Transport
	settings Settings
	notifier Notifier

	afterFunc func(time.Duration, func()) idleTimer

	mu         sync.Mutex
	state      State
	sess       *session
	loading    *QueueItem
	gen        uint64
	timer      idleTimer
	loadCancel context.CancelFunc
	retiring   []chan struct{}

	voiceMu sync.Mutex
}

func NewEngine(p *Pipeline, q *Queue, t Transport, s Settings, n Notifier) *Engine {
	if n == nil {
		n = nopNotifier{}
	}
	return &Engine{
		pipeline: p,
		cache:    p.Cache,
		queue:    q,
		trans:    t,
		settings: s,
		notifier: n,
		afterFunc: func(d time.Duration, f func()) idleTimer {
			return time.AfterFunc(d, f)
		},
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the title of what is loading or playing.
func (e *Engine) Current() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.state == StatePlaying && e.sess != nil:
		return e.sess.title(), true
	case e.state == StateLoading && e.loading != nil:
		if name, ok := e.loading.DisplayName(); ok {
			return name, true
		}
		return e.loading.Ref(), true
	}
	return "", false
}

// Submit either queues item behind the active session or starts it. When it
// starts, Submit returns once the item is playing or has failed.
func (e *Engine) Submit(item *QueueItem) Result {
	e.mu.Lock()
	if e.state == StateLoading || e.state == StatePlaying {
		pos := e.queue.Enqueue(item)
		e.mu.Unlock()
		name, _ := item.DisplayName()
		sys.LogVoice(sys.MsgVoiceQueued, item.Ref(), pos)
		return Result{Kind: ResultQueued, Title: name, Ref: item.Ref(), Position: pos}
	}
	gen, ctx := e.beginLoadLocked(item)
	e.mu.Unlock()

	return e.load(ctx, gen, item)
}

func (e *Engine) beginLoadLocked(item *QueueItem) (uint64, context.Context) {
	e.stopTimerLocked()
	if e.loadCancel != nil {
		e.loadCancel()
	}
	e.gen++
	ctx, cancel := context.WithCancel(context.Background())
	e.loadCancel = cancel
	e.loading = item
	e.state = StateLoading
	return e.gen, ctx
}

func (e *Engine) load(ctx context.Context, gen uint64, item *QueueItem) Result {
	req := item.Request()

	entry, err := e.pipeline.Download(ctx, item.Ref())
	if err != nil {
		return e.failLoad(gen, item, err)
	}

	e.voiceMu.Lock()
	defer e.voiceMu.Unlock()

	old, ok := e.detachForStart(gen)
	if !ok {
		sys.LogVoice(sys.MsgVoiceStaleLoad, item.Ref())
		e.cache.Remove(entry)
		return e.cancelled(item)
	}
	if old != nil {
		e.destroy(old.conn)
	}
	if err := e.awaitRetired(ctx); err != nil {
		e.cache.Remove(entry)
		return e.failLoad(gen, item, err)
	}

	conn, err := e.trans.Connect(ctx, req.GuildID, req.VoiceChannelID)
	if err != nil {
		e.cache.Remove(entry)
		return e.failLoad(gen, item, &TransportError{Op: "connect", Err: err})
	}
	player := conn.NewPlayer()
	if err := player.Play(entry.Path); err != nil {
		e.destroy(conn)
		e.cache.Remove(entry)
		return e.failLoad(gen, item, &TransportError{Op: "play", Err: err})
	}

	s := &session{conn: conn, player: player, entry: entry, item: item}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		sys.LogVoice(sys.MsgVoiceStaleLoad, item.Ref())
		player.Stop()
		e.destroy(conn)
		e.cache.Remove(entry)
		return e.cancelled(item)
	}
	e.sess = s
	e.state = StatePlaying
	e.loading = nil
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	e.mu.Unlock()

	sys.LogVoice(sys.MsgVoicePlaying, s.title(), req.VoiceChannelID)
	go e.watch(gen, s)

	return Result{Kind: ResultPlaying, Title: s.title(), Ref: item.Ref()}
}

// detachForStart hands the previous idle session to the caller so it can be
// torn down before the new connection is made.
func (e *Engine) detachForStart(gen uint64) (*session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return nil, false
	}
	old := e.sess
	e.sess = nil
	return old, true
}

func (e *Engine) failLoad(gen uint64, item *QueueItem, err error) Result {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return e.cancelled(item)
	}
	old := e.sess
	e.sess = nil
	e.loading = nil
	e.state = StateIdle
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	var done chan struct{}
	if old != nil {
		done = e.retireLocked()
	}
	e.mu.Unlock()

	if old != nil {
		go e.retire(old.conn, done)
	}

	res := Result{Ref: item.Ref(), Err: err}
	res.Title, _ = item.DisplayName()
	var (
		fe *FetchError
		de *DownloadError
		te *TransportError
	)
	switch {
	case errors.As(err, &fe):
		res.Kind = ResultFetchFailed
	case errors.As(err, &de):
		res.Kind = ResultDownloadFailed
	case errors.As(err, &te):
		res.Kind = ResultTransportFailed
	case errors.Is(err, context.Canceled):
		res.Kind = ResultCancelled
		res.Err = ErrCancelled
	default:
		res.Kind = ResultDownloadFailed
	}
	return res
}

func (e *Engine) cancelled(item *QueueItem) Result {
	name, _ := item.DisplayName()
	return Result{Kind: ResultCancelled, Title: name, Ref: item.Ref(), Err: ErrCancelled}
}

func (e *Engine) watch(gen uint64, s *session) {
	if err := <-s.player.Done(); err != nil {
		e.onPlayerError(gen, s, err)
		return
	}
	e.onFinished(gen, s)
}

func (e *Engine) onFinished(gen uint64, s *session) {
	e.mu.Lock()
	if gen != e.gen || e.sess != s {
		e.mu.Unlock()
		return
	}
	sys.LogVoice(sys.MsgVoiceFinished, s.title())
	e.cache.RemoveAsync(s.entry)

	if next, ok := e.queue.DequeueNext(); ok {
		ngen, ctx := e.beginLoadLocked(next)
		e.mu.Unlock()

		sys.LogVoice(sys.MsgVoiceAdvance, next.Ref())
		res := e.load(ctx, ngen, next)
		e.notifier.Announce(next.Request(), res)
		return
	}

	e.state = StateAwaitingDisconnect
	e.armTimerLocked(gen)
	e.mu.Unlock()
	sys.LogVoice(sys.MsgVoiceIdleArmed, e.settings.IdleTimeout)
}

func (e *Engine) onPlayerError(gen uint64, s *session, err error) {
	e.mu.Lock()
	if gen != e.gen || e.sess != s {
		e.mu.Unlock()
		return
	}
	e.sess = nil
	e.state = StateIdle
	done := e.retireLocked()
	e.mu.Unlock()

	sys.LogVoice(sys.MsgVoicePlayerError, s.title(), err)
	go e.retire(s.conn, done)
	e.cache.RemoveAsync(s.entry)
	e.notifier.Announce(s.item.Request(), Result{
		Kind:  ResultTransportFailed,
		Title: s.title(),
		Ref:   s.item.Ref(),
		Err:   &TransportError{Op: "play", Err: err},
	})
}

func (e *Engine) armTimerLocked(gen uint64) {
	e.stopTimerLocked()
	e.timer = e.afterFunc(e.settings.IdleTimeout, func() { e.onIdleTimeout(gen) })
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) onIdleTimeout(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != StateAwaitingDisconnect || e.sess == nil || e.sess.conn.Destroyed() {
		e.mu.Unlock()
		sys.LogDebug(sys.MsgVoiceStaleTimer)
		return
	}
	s := e.sess
	e.sess = nil
	e.state = StateIdle
	e.timer = nil
	done := e.retireLocked()
	e.mu.Unlock()

	e.retire(s.conn, done)
	sys.LogVoice(sys.MsgVoiceIdleDisconnect)
}

// Skip stops the current player. The watcher then takes the ordinary
// completion path, so the queue advances as if the file had ended.
func (e *Engine) Skip() (string, error) {
	e.mu.Lock()
	if e.state != StatePlaying || e.sess == nil {
		e.mu.Unlock()
		return "", ErrNotPlaying
	}
	s := e.sess
	e.mu.Unlock()

	sys.LogVoice(sys.MsgVoiceSkip, s.title())
	s.player.Stop()
	return s.title(), nil
}

// Teardown drops the session from any state and cancels an in-flight load.
// When clearQueue is set the pending queue is emptied too. Connection
// teardown runs in the background.
func (e *Engine) Teardown(clearQueue bool) int {
	e.mu.Lock()
	s, done, cleared := e.teardownLocked(clearQueue)
	e.mu.Unlock()

	e.release(s, done)
	return cleared
}

// Disconnected is called when the voice connection was dropped from outside.
// Events caused by our own teardown find the engine idle or loading and are
// ignored.
func (e *Engine) Disconnected() bool {
	e.mu.Lock()
	live := (e.state == StatePlaying || e.state == StateAwaitingDisconnect) &&
		e.sess != nil && !e.sess.conn.Destroyed()
	if !live {
		e.mu.Unlock()
		return false
	}
	s, done, _ := e.teardownLocked(false)
	e.mu.Unlock()

	e.release(s, done)
	return true
}

func (e *Engine) teardownLocked(clearQueue bool) (*session, chan struct{}, int) {
	e.gen++
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	e.stopTimerLocked()
	s := e.sess
	e.sess = nil
	e.loading = nil
	e.state = StateIdle
	cleared := 0
	if clearQueue {
		cleared = e.queue.Clear()
	}
	var done chan struct{}
	if s != nil {
		done = e.retireLocked()
	}
	return s, done, cleared
}

func (e *Engine) release(s *session, done chan struct{}) {
	if s == nil {
		return
	}
	s.player.Stop()
	go e.retire(s.conn, done)
	e.cache.RemoveAsync(s.entry)
}

// retireLocked registers a destroy that has not started yet.
func (e *Engine) retireLocked() chan struct{} {
	done := make(chan struct{})
	e.retiring = append(e.retiring, done)
	return done
}

func (e *Engine) retire(conn Connection, done chan struct{}) {
	defer close(done)
	e.destroy(conn)
}

// awaitRetired blocks until every registered destroy has finished.
func (e *Engine) awaitRetired(ctx context.Context) error {
	e.mu.Lock()
	pending := append([]chan struct{}(nil), e.retiring...)
	e.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	e.retiring = lo.Filter(e.retiring, func(done chan struct{}, _ int) bool {
		select {
		case <-done:
			return false
		default:
			return true
		}
	})
	e.mu.Unlock()
	return nil
}

func (e *Engine) destroy(conn Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := conn.Destroy(ctx); err != nil {
		sys.LogError(sys.MsgVoiceDestroyFail, err)
	}
}

