// Package synth defines the Client interface for speech-synthesis backends.
//
// A synthesis client turns a completed translation into a stored audio clip
// and returns a reference to it. Synthesis is the only pipeline stage the
// coordinator cancels when a newer utterance supersedes the current one, so
// implementations must honour ctx cancellation promptly and return a
// fault.Cancelled error when interrupted.
package synth

import (
	"context"
	"time"
)

// Request describes one synthesis call.
type Request struct {
	// Text is the target-language text to speak.
	Text string

	// Language is the BCP-47 tag of Text, used for voice selection
	// (e.g., "fr-FR").
	Language string

	// Voice is the provider-specific voice identifier. An empty string selects
	// the provider's default voice for Language.
	Voice string
}

// Clip is a reference to synthesized audio stored by the provider.
type Clip struct {
	// Ref locates the stored audio (a file path for local providers, an
	// object key or URL for remote ones).
	Ref string

	// Duration is the play length of the clip, when known.
	Duration time.Duration

	// SampleRate of the stored audio in Hz, when known.
	SampleRate int
}

// Client is the abstraction over any speech-synthesis backend.
type Client interface {
	// Synthesize produces and stores spoken audio for req, returning a
	// reference to the stored clip. Cancelling ctx aborts the call; the
	// returned error is then classified fault.Cancelled. A request naming an
	// unknown voice fails with fault.VoiceUnavailable — callers may retry with
	// an empty Voice to fall back to the provider default.
	Synthesize(ctx context.Context, req Request) (Clip, error)
}
