package proc

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestPlayer() *discordPlayer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &discordPlayer{
		frames: make(chan []byte, 4),
		done:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	p.lastPull.Store(time.Now().UnixNano())
	return p
}

func TestStalledSenderFailsPlayer(t *testing.T) {
	p := newTestPlayer()
	p.lastPull.Store(time.Now().Add(-time.Minute).UnixNano())

	go p.watchSender(5*time.Millisecond, time.Second)

	select {
	case err := <-p.Done():
		if !errors.Is(err, errSenderStalled) {
			t.Fatalf("Done() = %v, want errSenderStalled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled sender was not detected")
	}
}

func TestPulledPlayerKeepsPlaying(t *testing.T) {
	p := newTestPlayer()
	go p.watchSender(5*time.Millisecond, 500*time.Millisecond)

	p.frames <- []byte{0xf8}
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := p.ProvideOpusFrame(); err != nil {
			t.Fatalf("ProvideOpusFrame() error: %v", err)
		}
	}

	select {
	case err := <-p.Done():
		t.Fatalf("player finished while pulled: %v", err)
	default:
	}

	p.finish(nil)
	if err := <-p.Done(); err != nil {
		t.Fatalf("Done() = %v, want nil", err)
	}
}

func TestEndOfStreamReportsTranscodeError(t *testing.T) {
	p := newTestPlayer()
	p.runErr = errors.New("decode failed")
	p.frames <- nil

	if _, err := p.ProvideOpusFrame(); err == nil {
		t.Fatal("ProvideOpusFrame() at end of stream returned no error")
	}
	if err := <-p.Done(); err == nil || err.Error() != "decode failed" {
		t.Fatalf("Done() = %v, want decode failed", err)
	}
}
