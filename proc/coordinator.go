package proc

import (
	"context"

	"github.com/leeineian/howie/sys"
)

type ResultKind int

const (
	ResultPlaying ResultKind = iota
	ResultQueued
	ResultRejected
	ResultFetchFailed
	ResultDownloadFailed
	ResultTransportFailed
	ResultCancelled
	ResultSkipped
	ResultNotPlaying
	ResultExited
	ResultMoved
	ResultBounds
)

// Result is the structured outcome of a coordinator call. Rendering it into a
// chat message is left to the caller.
type Result struct {
	Kind     ResultKind
	Title    string
	Ref      string
	Position int
	Verdict  Verdict
	Cleared  int
	Err      error
}

// Coordinator is the entry point for play, skip, exit and queue requests.
type Coordinator struct {
	engine      *Engine
	queue       *Queue
	cache       *CacheStore
	eligibility *Eligibility
	source      MediaSource
}

func NewCoordinator(e *Engine, el *Eligibility) *Coordinator {
	return &Coordinator{
		engine:      e,
		queue:       e.queue,
		cache:       e.cache,
		eligibility: el,
		source:      el.Source,
	}
}

// Submit checks eligibility and hands an accepted request to the engine.
// A rejected request leaves the queue and the engine untouched.
func (c *Coordinator) Submit(ctx context.Context, req Request) Result {
	v := c.eligibility.Check(ctx, req.Ref)
	if !v.Accepted() {
		return Result{Kind: ResultRejected, Ref: req.Ref, Verdict: v, Err: &EligibilityError{Verdict: v}}
	}

	item := NewQueueItem(req)
	if v.Meta.Title != "" {
		item.SetDisplayName(v.Meta.Title)
	} else {
		go item.Resolve(context.WithoutCancel(ctx), c.source)
	}
	return c.engine.Submit(item)
}

// Skip ends the current item; the queue then advances normally.
func (c *Coordinator) Skip() Result {
	title, err := c.engine.Skip()
	if err != nil {
		return Result{Kind: ResultNotPlaying, Err: err}
	}
	return Result{Kind: ResultSkipped, Title: title}
}

// Exit tears everything down, empties the queue and purges the cache.
func (c *Coordinator) Exit(ctx context.Context) Result {
	cleared := c.engine.Teardown(true)
	sys.LogVoice(sys.MsgVoiceExit)
	if err := c.cache.PurgeAll(); err != nil {
		sys.LogError(sys.MsgCacheDeleteFail, c.cache.Dir, err)
	}
	return Result{Kind: ResultExited, Cleared: cleared}
}

// PlayNext moves the item at the 1-based position to the head of the queue.
func (c *Coordinator) PlayNext(position int) Result {
	item, err := c.queue.InsertAt(position)
	if err != nil {
		return Result{Kind: ResultBounds, Position: position, Err: err}
	}
	name, ok := item.DisplayName()
	if !ok {
		name = PendingName
	}
	return Result{Kind: ResultMoved, Title: name, Ref: item.Ref(), Position: 1}
}

// Disconnected reports an external disconnect of the bot's voice connection.
func (c *Coordinator) Disconnected() bool {
	return c.engine.Disconnected()
}

func (c *Coordinator) Queue() []QueueEntry { return c.queue.Snapshot() }

func (c *Coordinator) State() State { return c.engine.State() }

// NowPlaying returns the title of the loading or playing item.
func (c *Coordinator) NowPlaying() (string, bool) { return c.engine.Current() }
