// Package audio defines the audio frame type and the capture interface that
// feeds the chunking pipeline.
//
// Frames are the atomic unit of audio transport: a capture implementation
// produces them at a fixed cadence, the level meter derives a power value from
// each one, and the chunker assembles them into utterance buffers. Frames are
// ephemeral — once appended to an utterance buffer the chunker owns the
// samples and the frame value must not be reused.
package audio

import "time"

// AudioFrame represents a single frame of PCM audio flowing through the pipeline.
type AudioFrame struct {
	// Samples holds signed 16-bit PCM samples, interleaved when Channels > 1.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for transcription input, 48000 for device capture).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	// The chunker keys all silence-duration decisions off this value rather
	// than the wall clock, so replayed streams behave deterministically.
	Timestamp time.Duration
}

// Duration returns the play length of the frame, or zero for a malformed
// frame (no samples, or a non-positive sample rate).
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 || len(f.Samples) == 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}
