package home

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leeineian/howie/proc"
)

const (
	maxQueueLines = 15
	maxTitleLen   = 80
)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func titleOf(res proc.Result) string {
	if res.Title != "" {
		return truncate(res.Title, maxTitleLen)
	}
	return "<" + res.Ref + ">"
}

func reasonText(r proc.Reason, v proc.Verdict) string {
	switch r {
	case proc.ReasonStreamingUnsupported:
		return "Streaming is not a completed feature yet, please use caching for now"
	case proc.ReasonLive:
		return "Playing live streams is not yet allowed"
	case proc.ReasonOverDuration:
		return fmt.Sprintf("Video is over the maximum allowed video duration of %g minutes", v.Limit)
	case proc.ReasonPlaylist:
		return "Playlists aren't supported, send a link to a single video"
	case proc.ReasonFetchError:
		return "Couldn't look that link up"
	}
	return string(r)
}

// renderResult turns a coordinator result into chat text.
func renderResult(res proc.Result) string {
	switch res.Kind {
	case proc.ResultPlaying:
		return "🎶 Now playing **" + titleOf(res) + "**"
	case proc.ResultQueued:
		return fmt.Sprintf("➕ Added **%s** to the queue (position %d)", titleOf(res), res.Position)
	case proc.ResultRejected:
		lines := make([]string, 0, len(res.Verdict.Reasons))
		for _, r := range res.Verdict.Reasons {
			lines = append(lines, "❌ "+reasonText(r, res.Verdict))
		}
		return strings.Join(lines, "\n")
	case proc.ResultFetchFailed:
		return "❌ Couldn't fetch audio for " + titleOf(res)
	case proc.ResultDownloadFailed:
		return "❌ Download failed for " + titleOf(res)
	case proc.ResultTransportFailed:
		return "❌ Lost the voice connection while playing " + titleOf(res)
	case proc.ResultCancelled:
		return "⏹️ Request for " + titleOf(res) + " was cancelled"
	case proc.ResultSkipped:
		return "⏭️ Skipped **" + titleOf(res) + "**"
	case proc.ResultNotPlaying:
		return "Nothing is playing right now."
	case proc.ResultExited:
		if res.Cleared > 0 {
			return fmt.Sprintf("👋 Bye! Dropped %d queued songs.", res.Cleared)
		}
		return "👋 Bye!"
	case proc.ResultMoved:
		return "⏫ **" + titleOf(res) + "** will play next"
	case proc.ResultBounds:
		var be *proc.BoundsError
		if errors.As(res.Err, &be) {
			return fmt.Sprintf("There is no song at position %d (queue has %d).", be.Position, be.Len)
		}
		return fmt.Sprintf("There is no song at position %d.", res.Position)
	}
	return ""
}

// renderQueue lists the current item and the pending queue.
func renderQueue(now string, playing bool, entries []proc.QueueEntry) string {
	var sb strings.Builder
	if playing {
		sb.WriteString("**Now Playing:** " + truncate(now, maxTitleLen) + "\n\n")
	}
	if len(entries) == 0 {
		if !playing {
			return "The queue is empty."
		}
		sb.WriteString("*Queue is empty*")
		return sb.String()
	}
	sb.WriteString("**Up Next:**\n")
	for i, e := range entries {
		if i >= maxQueueLines {
			fmt.Fprintf(&sb, "*...and %d more*", len(entries)-maxQueueLines)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", e.Position, truncate(e.DisplayName, maxTitleLen))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func helpText(prefix string) string {
	return fmt.Sprintf(`Current commands:
%[1]sp [youtube url or search] Plays/adds youtube audio to queue
%[1]ss Skips song
%[1]sq Shows the queue
%[1]sn [position] Moves a queued song to play next
%[1]sx Force disconnect bot from voice channel
%[1]sprefix [new prefix] Changes the command prefix
%[1]sh Show help`, prefix)
}
