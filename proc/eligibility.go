package proc

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// Reason is one cause for rejecting a request.
type Reason string

const (
	ReasonLive                 Reason = "live-content"
	ReasonOverDuration         Reason = "over-duration"
	ReasonPlaylist             Reason = "playlist-reference"
	ReasonFetchError           Reason = "fetch-error"
	ReasonStreamingUnsupported Reason = "streaming-unsupported"
)

// Verdict is the outcome of an eligibility check. It is accepted only when no
// reason was collected.
type Verdict struct {
	Reasons  []Reason
	Limit    float64 // configured max duration in minutes
	Meta     Metadata
	FetchErr error
}

func (v Verdict) Accepted() bool { return len(v.Reasons) == 0 }

func (v Verdict) Has(r Reason) bool { return lo.Contains(v.Reasons, r) }

func (v Verdict) String() string {
	if v.Accepted() {
		return "accepted"
	}
	parts := lo.Map(v.Reasons, func(r Reason, _ int) string {
		if r == ReasonOverDuration {
			return fmt.Sprintf("%s (limit %g min)", r, v.Limit)
		}
		return string(r)
	})
	return strings.Join(parts, ", ")
}

// Eligibility decides whether a reference may be downloaded.
type Eligibility struct {
	Source   MediaSource
	Settings Settings
}

// Check collects every metadata-based reason instead of stopping at the
// first. Streaming and playlist references are rejected without a fetch.
func (e *Eligibility) Check(ctx context.Context, ref string) Verdict {
	v := Verdict{Limit: e.Settings.MaxDurationMinutes}
	if e.Settings.StreamingEnabled {
		v.Reasons = append(v.Reasons, ReasonStreamingUnsupported)
		return v
	}

	if IsPlaylistReference(ref) {
		v.Reasons = append(v.Reasons, ReasonPlaylist)
		return v
	}

	meta, err := e.Source.ResolveMetadata(ctx, ref)
	if err != nil {
		v.FetchErr = wrapFetch(ref, err)
		v.Reasons = append(v.Reasons, ReasonFetchError)
		return v
	}
	v.Meta = meta

	if meta.IsLive {
		v.Reasons = append(v.Reasons, ReasonLive)
	}
	if meta.Duration.Minutes() > e.Settings.MaxDurationMinutes {
		v.Reasons = append(v.Reasons, ReasonOverDuration)
	}
	return v
}

// IsPlaylistReference reports whether ref points at a playlist rather than a
// single video. A watch URL carrying both v= and list= plays the video.
func IsPlaylistReference(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Host == "" {
		return false
	}
	path := strings.TrimSuffix(u.Path, "/")
	if strings.HasSuffix(path, "/playlist") || strings.Contains(path, "/sets/") {
		return true
	}
	q := u.Query()
	return q.Get("list") != "" && q.Get("v") == "" && !strings.Contains(u.Host, "youtu.be")
}
