package chunker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/canning1295/RealTimeTranslate/pkg/audio"
)

// State is the current mode of the chunking state machine.
type State int

const (
	// StateIdle: no buffer is open; silent frames are discarded.
	StateIdle State = iota

	// StateAccumulating: a buffer is open and speech has been seen at least once.
	StateAccumulating

	// StateTrailingSilence: a buffer is open but power has been below the
	// speech threshold; the buffer closes once silence persists long enough.
	StateTrailingSilence
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateTrailingSilence:
		return "trailing_silence"
	default:
		return "unknown"
	}
}

// UtteranceBuffer is one completed span of speech, from onset to confirmed
// silence (or flush-on-stop). Sequence numbers are assigned at close time and
// are strictly increasing with no gaps within a session.
//
// Ownership transfers to the coordinator on emission; the chunker retains no
// reference to the samples.
type UtteranceBuffer struct {
	// Seq is the utterance sequence number, starting at 1.
	Seq uint64

	// Samples holds the utterance audio as signed 16-bit PCM.
	Samples []int16

	// SampleRate and Channels describe the sample data.
	SampleRate int
	Channels   int

	// Start is the timestamp of the first frame in the buffer.
	Start time.Duration

	// Duration is the total play length of the buffer.
	Duration time.Duration
}

// Config holds the tuning knobs for a [Chunker]. Zero-value fields are
// replaced with defaults by [New].
type Config struct {
	// SpeechThreshold is the power level at or above which a frame counts as
	// speech. Default: -40 dB.
	SpeechThreshold PowerSample

	// SilenceDuration is how long power must stay below SpeechThreshold after
	// the last speech frame before the open buffer closes. Default: 500 ms.
	SilenceDuration time.Duration

	// MinUtterance is the duration below which a closed buffer counts as
	// degenerate (e.g., a single-frame misfire). Degenerate buffers are still
	// forwarded unless DropShort is set; rejecting noise is the transcription
	// stage's call, not a hidden chunker policy.
	// Default: 0 (nothing is degenerate).
	MinUtterance time.Duration

	// DropShort discards degenerate buffers instead of forwarding them.
	// Discarded buffers consume no sequence number, so emitted sequence
	// numbers stay gap-free.
	DropShort bool

	// PowerWindow is the trailing smoothing window of the level meter, in
	// frames. Default: 3.
	PowerWindow int

	// InitialCapacity pre-sizes the utterance sample buffer, in samples.
	// Default: one second of 16 kHz mono audio.
	InitialCapacity int

	// QueueDepth is the buffer depth of the emission queue read by the
	// coordinator. Default: 16.
	QueueDepth int
}

// withDefaults returns cfg with zero values replaced.
func (cfg Config) withDefaults() Config {
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = -40
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 500 * time.Millisecond
	}
	if cfg.PowerWindow <= 0 {
		cfg.PowerWindow = defaultPowerWindow
	}
	if cfg.InitialCapacity <= 0 {
		cfg.InitialCapacity = defaultBufferCapacity
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 16
	}
	return cfg
}

// Chunker is the VAD state machine. Push one frame at a time; completed
// utterance buffers appear on the Utterances channel. Push and Stop must be
// called from a single goroutine (the capture loop); Utterances may be read
// from any goroutine.
//
// All silence-duration decisions are keyed off frame timestamps, never the
// wall clock, so a replayed stream chunks identically every run.
type Chunker struct {
	cfg   Config
	meter *Meter

	state      State
	buf        *SampleBuffer
	sampleRate int
	channels   int
	start      time.Duration // timestamp of first frame in the open buffer
	end        time.Duration // end timestamp of the newest appended frame
	lastSpeech time.Duration // end timestamp of the newest speech frame

	seq uint64
	out chan *UtteranceBuffer

	stopOnce sync.Once
}

// New creates a Chunker with the given configuration.
func New(cfg Config) *Chunker {
	cfg = cfg.withDefaults()
	return &Chunker{
		cfg:   cfg,
		meter: NewMeter(cfg.PowerWindow),
		buf:   NewSampleBuffer(cfg.InitialCapacity),
		out:   make(chan *UtteranceBuffer, cfg.QueueDepth),
	}
}

// Utterances returns the emission queue. The channel is closed by [Chunker.Stop].
func (c *Chunker) Utterances() <-chan *UtteranceBuffer {
	return c.out
}

// State returns the current machine state.
func (c *Chunker) State() State {
	return c.state
}

// Push feeds one frame through the state machine. Processing is O(1)
// amortised per frame; the only potentially slow path is an emission into a
// full queue, which is logged before blocking.
func (c *Chunker) Push(frame audio.AudioFrame) {
	power := c.meter.Power(frame)
	speech := power >= c.cfg.SpeechThreshold
	frameEnd := frame.Timestamp + frame.Duration()

	switch c.state {
	case StateIdle:
		if !speech {
			// No buffer exists; discarding silence here is what keeps the
			// chunker from accumulating dead air indefinitely.
			return
		}
		c.openBuffer(frame)
		c.lastSpeech = frameEnd
		c.state = StateAccumulating

	case StateAccumulating, StateTrailingSilence:
		// The frame always joins the open buffer first, so the trailing
		// silence that confirms the boundary is part of the utterance.
		c.appendFrame(frame)
		if speech {
			c.lastSpeech = frameEnd
			c.state = StateAccumulating
			return
		}
		c.state = StateTrailingSilence
		if frameEnd-c.lastSpeech > c.cfg.SilenceDuration {
			c.closeBuffer()
		}
	}
}

// Stop flushes any open buffer regardless of silence state and closes the
// emission queue. Safe to call multiple times.
func (c *Chunker) Stop() {
	c.stopOnce.Do(func() {
		if c.state != StateIdle {
			c.closeBuffer()
		}
		close(c.out)
	})
}

// openBuffer starts a new utterance with frame as its first entry.
func (c *Chunker) openBuffer(frame audio.AudioFrame) {
	c.sampleRate = frame.SampleRate
	c.channels = frame.Channels
	c.start = frame.Timestamp
	c.appendFrame(frame)
}

// appendFrame copies frame samples into the open buffer.
func (c *Chunker) appendFrame(frame audio.AudioFrame) {
	c.buf.Append(frame.Samples)
	c.end = frame.Timestamp + frame.Duration()
}

// closeBuffer emits the open buffer (unless it is degenerate and DropShort is
// set) and resets to Idle.
func (c *Chunker) closeBuffer() {
	duration := c.end - c.start
	degenerate := c.cfg.MinUtterance > 0 && duration < c.cfg.MinUtterance

	if degenerate && c.cfg.DropShort {
		slog.Debug("discarding degenerate utterance buffer",
			"duration", duration, "min_utterance", c.cfg.MinUtterance)
		c.buf.Reset()
		c.reset()
		return
	}

	c.seq++
	ub := &UtteranceBuffer{
		Seq:        c.seq,
		Samples:    c.buf.Take(),
		SampleRate: c.sampleRate,
		Channels:   c.channels,
		Start:      c.start,
		Duration:   duration,
	}
	c.reset()

	select {
	case c.out <- ub:
	default:
		slog.Warn("utterance queue full; capture will stall until the coordinator catches up",
			"seq", ub.Seq, "queue_depth", cap(c.out))
		c.out <- ub
	}
}

// reset returns the machine to Idle between utterances.
func (c *Chunker) reset() {
	c.state = StateIdle
	c.start = 0
	c.end = 0
	c.lastSpeech = 0
	c.meter.Reset()
}
