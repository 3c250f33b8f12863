// Package chunker turns a continuous stream of audio frames into discrete
// utterance buffers using energy-based voice-activity detection.
//
// The package has three parts: [Meter] derives a smoothed power value from
// each frame, [SampleBuffer] is the growable arena that holds an open
// utterance's samples, and [Chunker] is the state machine that decides where
// utterances begin and end. Emitted [UtteranceBuffer] values carry strictly
// increasing, gap-free sequence numbers and are handed to the coordinator
// over a buffered queue so frame processing never waits on downstream
// network stages.
package chunker

import (
	"math"

	"github.com/canning1295/RealTimeTranslate/pkg/audio"
)

// PowerSample is a dBFS-like loudness value derived from one audio frame.
// 0 dB corresponds to a full-scale sine; silence approaches [PowerFloor].
type PowerSample float64

// PowerFloor is the value reported for zero-length or all-zero frames.
// Malformed frames are treated as silence rather than failing.
const PowerFloor PowerSample = -100

// defaultPowerWindow is the trailing smoothing window applied by a Meter
// constructed with a non-positive window size. Smoothing over three frames
// suppresses single-frame spikes without noticeably delaying onset detection.
const defaultPowerWindow = 3

// Meter computes smoothed frame power. It keeps a fixed-size trailing window
// of raw power values and reports their mean; no other state is retained.
//
// Meter is not safe for concurrent use — one Meter belongs to one Chunker.
type Meter struct {
	window []PowerSample
	idx    int
	filled int
}

// NewMeter creates a Meter with the given trailing window size.
// Sizes below one select the default window of three frames; a size of one
// disables smoothing entirely.
func NewMeter(windowSize int) *Meter {
	if windowSize < 1 {
		windowSize = defaultPowerWindow
	}
	return &Meter{window: make([]PowerSample, windowSize)}
}

// Power returns the smoothed power of frame in dBFS. Zero-length frames
// contribute [PowerFloor] to the window.
func (m *Meter) Power(frame audio.AudioFrame) PowerSample {
	raw := framePower(frame)

	m.window[m.idx] = raw
	m.idx = (m.idx + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}

	var sum PowerSample
	for i := 0; i < m.filled; i++ {
		sum += m.window[i]
	}
	return sum / PowerSample(m.filled)
}

// Reset clears the smoothing window.
func (m *Meter) Reset() {
	m.idx = 0
	m.filled = 0
}

// framePower computes the raw RMS power of frame in dBFS, clamped to
// [PowerFloor, 0].
func framePower(frame audio.AudioFrame) PowerSample {
	if len(frame.Samples) == 0 {
		return PowerFloor
	}

	var sum float64
	for _, s := range frame.Samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame.Samples)))
	if rms == 0 {
		return PowerFloor
	}

	db := PowerSample(20 * math.Log10(rms))
	if db < PowerFloor {
		return PowerFloor
	}
	if db > 0 {
		return 0
	}
	return db
}
