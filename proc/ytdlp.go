package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/howie/sys"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

const searchTimeout = 5 * time.Second

// YTDLPSource resolves and streams references through the yt-dlp binary.
type YTDLPSource struct{}

func NewYTDLPSource() *YTDLPSource {
	return &YTDLPSource{}
}

// ResolveMetadata asks yt-dlp for a single tab separated line describing ref.
func (y *YTDLPSource) ResolveMetadata(ctx context.Context, ref string) (Metadata, error) {
	res, err := ytdlp.New().
		Print("%(webpage_url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(is_live)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", ref)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return Metadata{}, &FetchError{Ref: ref, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(res.Stderr))}
		}
		return Metadata{}, &FetchError{Ref: ref, Err: err}
	}
	meta, ok := parseMetadataLine(res.Stdout)
	if !ok {
		return Metadata{}, &FetchError{Ref: ref, Err: errors.New("failed to parse metadata")}
	}
	return meta, nil
}

func parseMetadataLine(out string) (Metadata, bool) {
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 5 {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		return Metadata{
			URL:      ps[0],
			Title:    ps[1],
			Uploader: ps[2],
			Duration: d,
			IsLive:   strings.EqualFold(ps[4], "true"),
		}, true
	}
	return Metadata{}, false
}

// OpenAudio starts yt-dlp writing the best audio-only format to stdout. The
// returned reader reports the process exit status once the output ends.
func (y *YTDLPSource) OpenAudio(ctx context.Context, ref string) (io.ReadCloser, error) {
	cmd := ytdlp.New().
		Format("bestaudio[ext=webm]/bestaudio").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, ref)

	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	s := &ytdlpStream{cmd: cmd}
	cmd.Stderr = &s.stderr

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	s.out = out
	return s, nil
}

type ytdlpStream struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr bytes.Buffer

	once    sync.Once
	waitErr error
}

func (s *ytdlpStream) wait() error {
	s.once.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			s.waitErr = fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.waitErr
}

func (s *ytdlpStream) Read(p []byte) (int, error) {
	n, err := s.out.Read(p)
	if err == io.EOF {
		if werr := s.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (s *ytdlpStream) Close() error {
	s.out.Close()
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.wait()
	return nil
}

// Search turns a free-text query into a watch URL. YouTube search is tried
// first and YouTube Music is the fallback.
func (y *YTDLPSource) Search(ctx context.Context, query string) (string, error) {
	sys.LogVoice(sys.MsgVoiceSearch, query)
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	c := ytsearch.NewClient(nil)
	r, err := c.Search(ctx, query)
	if err == nil {
		for _, v := range r.Results {
			if v.VideoID != "" {
				return "https://www.youtube.com/watch?v=" + v.VideoID, nil
			}
		}
	}

	sys.LogVoice(sys.MsgVoiceSearchFallback, query)
	tr, terr := ytmusic.TrackSearch(query).Next()
	if terr != nil {
		return "", &FetchError{Ref: query, Err: errors.Join(err, terr)}
	}
	for _, v := range tr.Tracks {
		if v.VideoID != "" {
			return "https://music.youtube.com/watch?v=" + v.VideoID, nil
		}
	}
	return "", &FetchError{Ref: query, Err: errors.New("no results")}
}
