package proc

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/howie/sys"
)

// PendingName is shown for items whose title has not been resolved yet.
const PendingName = "Loading..."

// Request is a play request as handed over by the command router.
type Request struct {
	Ref            string
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  snowflake.ID
	RequestedBy    string
}

// QueueItem is a deferred request. The reference never changes; the display
// name is filled in later and may be read before it is known.
type QueueItem struct {
	req Request

	mu   sync.RWMutex
	name string
}

func NewQueueItem(req Request) *QueueItem {
	return &QueueItem{req: req}
}

func (i *QueueItem) Ref() string { return i.req.Ref }

func (i *QueueItem) Request() Request { return i.req }

// DisplayName returns the title, or ok=false while it is still pending.
func (i *QueueItem) DisplayName() (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.name, i.name != ""
}

func (i *QueueItem) SetDisplayName(name string) {
	i.mu.Lock()
	i.name = name
	i.mu.Unlock()
}

// Resolve fetches the title from src. Failures leave the name pending.
func (i *QueueItem) Resolve(ctx context.Context, src MediaSource) {
	meta, err := src.ResolveMetadata(ctx, i.req.Ref)
	if err != nil {
		sys.LogVoice(sys.MsgVoiceResolveName, i.req.Ref, err)
		return
	}
	if meta.Title != "" {
		i.SetDisplayName(meta.Title)
	}
}
