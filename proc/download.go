package proc

import (
	"context"
	"errors"
	"io"

	"github.com/leeineian/howie/sys"
)

// Pipeline downloads one reference per call into a fresh cache entry.
type Pipeline struct {
	Source MediaSource
	Cache  *CacheStore
}

func NewPipeline(src MediaSource, cache *CacheStore) *Pipeline {
	return &Pipeline{Source: src, Cache: cache}
}

// readErr tags errors coming from the source side of the copy.
type readErr struct{ err error }

type sourceReader struct{ r io.Reader }

func (s sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, readErr{err}
	}
	return n, err
}

func (e readErr) Error() string { return e.err.Error() }

// Download streams ref into a new entry. On any failure the partial file is
// removed and either a *FetchError or a *DownloadError is returned.
func (p *Pipeline) Download(ctx context.Context, ref string) (CacheEntry, error) {
	entry := p.Cache.Stage(".webm")

	rc, err := p.Source.OpenAudio(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return CacheEntry{}, ctx.Err()
		}
		return CacheEntry{}, wrapFetch(ref, err)
	}
	defer rc.Close()

	f, err := p.Cache.Create(entry)
	if err != nil {
		return CacheEntry{}, &DownloadError{Path: entry.Path, Err: err}
	}

	_, copyErr := io.Copy(f, sourceReader{rc})
	closeErr := f.Close()

	if copyErr == nil {
		copyErr = ctx.Err()
	}
	if copyErr != nil {
		p.Cache.Abort(entry)
		sys.LogVoice(sys.MsgVoiceDownloadFailed, ref, copyErr)
		if ctx.Err() != nil {
			return CacheEntry{}, ctx.Err()
		}
		var re readErr
		if errors.As(copyErr, &re) {
			return CacheEntry{}, wrapFetch(ref, re.err)
		}
		return CacheEntry{}, &DownloadError{Path: entry.Path, Err: copyErr}
	}
	if closeErr != nil {
		p.Cache.Abort(entry)
		return CacheEntry{}, &DownloadError{Path: entry.Path, Err: closeErr}
	}
	if err := p.Cache.Commit(entry); err != nil {
		p.Cache.Abort(entry)
		return CacheEntry{}, &DownloadError{Path: entry.Path, Err: err}
	}

	sys.LogVoice(sys.MsgVoiceDownloadComplete, entry.Path)
	return entry, nil
}
