package proc

import (
	"context"
	"io"
	"time"
)

// Metadata describes a remote audio source.
type Metadata struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
	IsLive   bool
}

// MediaSource resolves references to metadata and audio-only bytes. Errors
// are expected to be *FetchError; callers wrap anything else.
type MediaSource interface {
	ResolveMetadata(ctx context.Context, ref string) (Metadata, error)
	OpenAudio(ctx context.Context, ref string) (io.ReadCloser, error)
}
