// Package wavfile provides an audio.Capture implementation that replays a WAV
// file as a stream of PCM frames.
//
// It exists for two reasons: it lets the pipeline run end-to-end without a
// physical microphone (useful for demos and batch translation of recordings),
// and it gives tests a realistic capture source with deterministic timestamps.
// Frames are sliced at a fixed cadence (default 20 ms) and can optionally be
// paced in real time so downstream silence detection behaves as it would live.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/canning1295/RealTimeTranslate/pkg/audio"
)

const defaultFrameDuration = 20 * time.Millisecond

// Option is a functional option for configuring a Capture.
type Option func(*Capture)

// WithFrameDuration sets the duration of each emitted frame. Default is 20 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.frameDur = d
		}
	}
}

// WithRealtime enables wall-clock pacing: frames are emitted at their natural
// cadence instead of as fast as the consumer can drain them.
func WithRealtime(enabled bool) Option {
	return func(c *Capture) { c.realtime = enabled }
}

// Capture replays a WAV file as an audio.Capture. One Capture replays one
// file once; create a new Capture to replay again.
type Capture struct {
	path     string
	frameDur time.Duration
	realtime bool

	mu      sync.Mutex
	frames  chan audio.AudioFrame
	cancel  context.CancelFunc
	started bool
	stopped bool
	done    chan struct{}
}

// Compile-time assertion that Capture satisfies audio.Capture.
var _ audio.Capture = (*Capture)(nil)

// New creates a Capture that will replay the WAV file at path.
// The file is not opened until Start is called.
func New(path string, opts ...Option) (*Capture, error) {
	if path == "" {
		return nil, errors.New("wavfile: path must not be empty")
	}
	c := &Capture{
		path:     path,
		frameDur: defaultFrameDuration,
		frames:   make(chan audio.AudioFrame, 64),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start opens and decodes the WAV file and begins emitting frames on the
// Frames channel. The channel is closed when the file is exhausted, Stop is
// called, or ctx is cancelled.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return errors.New("wavfile: already started or stopped")
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("wavfile: open %q: %w", c.path, err)
	}
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		f.Close()
		return fmt.Errorf("wavfile: decode %q: %w", c.path, err)
	}
	f.Close()
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return fmt.Errorf("wavfile: %q has no usable format information", c.path)
	}

	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true

	go c.emit(ctx, samples, buf.Format.SampleRate, buf.Format.NumChannels)
	return nil
}

// emit slices samples into frames and delivers them until the stream ends or
// ctx is cancelled.
func (c *Capture) emit(ctx context.Context, samples []int16, sampleRate, channels int) {
	defer close(c.frames)
	defer close(c.done)

	perFrame := int(int64(sampleRate) * int64(c.frameDur) / int64(time.Second) * int64(channels))
	if perFrame <= 0 {
		perFrame = channels
	}

	var ticker *time.Ticker
	if c.realtime {
		ticker = time.NewTicker(c.frameDur)
		defer ticker.Stop()
	}

	ts := time.Duration(0)
	for off := 0; off < len(samples); off += perFrame {
		end := off + perFrame
		if end > len(samples) {
			end = len(samples)
		}
		frame := audio.AudioFrame{
			Samples:    samples[off:end],
			SampleRate: sampleRate,
			Channels:   channels,
			Timestamp:  ts,
		}
		ts += frame.Duration()

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
		select {
		case c.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// Frames returns the frame delivery channel.
func (c *Capture) Frames() <-chan audio.AudioFrame {
	return c.frames
}

// Stop ends the replay. Safe to call multiple times.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-c.done
	} else {
		close(c.frames)
	}
	return nil
}
