package proc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/howie/sys"
)

var (
	errProviderClosed = errors.New("opus provider closed")
	errSenderStalled  = errors.New("voice sender stopped pulling frames")
)

// senderStallLimit is how long the voice sender may go without asking for a
// frame before the player gives up. disgo pulls every 20ms while connected.
const senderStallLimit = 5 * time.Second

// DiscordTransport joins voice channels through the disgo voice manager.
type DiscordTransport struct {
	client *bot.Client
}

func NewDiscordTransport(client *bot.Client) *DiscordTransport {
	return &DiscordTransport{client: client}
}

func (d *DiscordTransport) Connect(ctx context.Context, guildID, channelID snowflake.ID) (Connection, error) {
	conn := d.client.VoiceManager.CreateConn(guildID)
	if err := conn.Open(ctx, channelID, false, false); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return &discordConn{conn: conn}, nil
}

type discordConn struct {
	conn      voice.Conn
	destroyed atomic.Bool
}

func (c *discordConn) NewPlayer() Player {
	ctx, cancel := context.WithCancel(context.Background())
	return &discordPlayer{
		conn:   c.conn,
		frames: make(chan []byte, 100),
		done:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *discordConn) Destroy(ctx context.Context) error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	c.conn.SetOpusFrameProvider(nil)
	c.conn.Close(ctx)
	return nil
}

func (c *discordConn) Destroyed() bool { return c.destroyed.Load() }

// discordPlayer transcodes one file and feeds the opus packets to the voice
// connection. It implements voice.OpusFrameProvider.
type discordPlayer struct {
	conn   voice.Conn
	frames chan []byte
	done   chan error
	ctx    context.Context
	cancel context.CancelFunc

	once     sync.Once
	errMu    sync.Mutex
	runErr   error
	lastPull atomic.Int64
}

func (p *discordPlayer) Play(path string) error {
	t := newOpusTranscoder()
	if err := t.Open(path); err != nil {
		t.Close()
		return err
	}

	go func() {
		defer t.Close()
		err := t.Transcode(p.ctx, p.push)
		if err != nil && p.ctx.Err() == nil {
			sys.LogVoice(sys.MsgVoiceTranscoderFailed, path, err)
			p.errMu.Lock()
			p.runErr = err
			p.errMu.Unlock()
		}
		p.push(nil)
	}()

	p.lastPull.Store(time.Now().UnixNano())
	p.conn.SetOpusFrameProvider(p)
	p.conn.SetSpeaking(p.ctx, voice.SpeakingFlagMicrophone)
	go p.watchSender(time.Second, senderStallLimit)
	return nil
}

// watchSender fails the player once the sender has not pulled a frame for
// limit. A dead UDP connection stops the sender loop without telling the
// provider.
func (p *discordPlayer) watchSender(every, limit time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(time.Unix(0, p.lastPull.Load())) > limit {
				sys.LogVoice(sys.MsgVoiceSenderStalled, limit)
				p.finish(errSenderStalled)
				return
			}
		}
	}
}

func (p *discordPlayer) push(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

func (p *discordPlayer) finish(err error) {
	p.once.Do(func() {
		p.cancel()
		p.done <- err
	})
}

func (p *discordPlayer) Stop() {
	p.finish(nil)
	p.conn.SetOpusFrameProvider(nil)
}

func (p *discordPlayer) Done() <-chan error { return p.done }

func (p *discordPlayer) ProvideOpusFrame() ([]byte, error) {
	p.lastPull.Store(time.Now().UnixNano())
	select {
	case f := <-p.frames:
		if f == nil {
			p.errMu.Lock()
			err := p.runErr
			p.errMu.Unlock()
			p.finish(err)
			return nil, io.EOF
		}
		return f, nil
	case <-p.ctx.Done():
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return nil, nil
	}
}

// Close completes voice.OpusFrameProvider. disgo's default sender never calls
// it; a sender that stops is caught by watchSender.
func (p *discordPlayer) Close() {
	p.finish(errProviderClosed)
}
