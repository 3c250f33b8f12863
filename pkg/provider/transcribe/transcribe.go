// Package transcribe defines the Client interface for speech-to-text backends.
//
// A transcription client receives one complete utterance of PCM audio and
// returns its text. Unlike streaming STT APIs, the pipeline always submits
// whole utterances — the chunker has already decided the boundaries — so the
// contract is a single blocking call per utterance.
//
// Implementations must be safe for concurrent use and must classify failures
// with the fault package so the retry controller can tell transient from
// permanent errors.
package transcribe

import (
	"context"
	"time"
)

// Request describes one utterance to transcribe.
type Request struct {
	// Samples holds the utterance audio as signed 16-bit PCM, interleaved when
	// Channels > 1.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count of Samples.
	Channels int

	// Language is the BCP-47 source-language hint (e.g., "en-US"). An empty
	// string lets the provider auto-detect, if supported.
	Language string
}

// Duration returns the play length of the request audio.
func (r Request) Duration() time.Duration {
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return 0
	}
	perChannel := len(r.Samples) / r.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(r.SampleRate)
}

// Result is a completed transcription.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64
}

// Client is the abstraction over any speech-to-text backend.
type Client interface {
	// Transcribe converts one utterance of audio into text. The call blocks
	// until the provider responds or ctx is cancelled. Errors are classified
	// per the fault package.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
