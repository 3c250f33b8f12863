// Package translate defines the Client interface for streaming translation
// backends.
//
// A translation client receives a source-language text and produces a lazy,
// finite, non-restartable stream of target-language tokens. The pipeline
// appends tokens to the visible translation as they arrive; on failure it
// discards any partial text and may retry the stream from scratch, so
// implementations need not support resumption.
package translate

import "context"

// Request describes one translation stream to open.
type Request struct {
	// Text is the source text to translate.
	Text string

	// SourceLanguage is the BCP-47 tag of Text (e.g., "en-US"). Informational;
	// providers may auto-detect.
	SourceLanguage string

	// TargetLanguage is the BCP-47 tag to translate into (e.g., "fr-FR").
	TargetLanguage string
}

// Token is one element of a translation stream.
//
// A stream delivers zero or more tokens with Text set, then either closes the
// channel (natural completion) or delivers a final token with Err set and
// closes. Err is classified per the fault package.
type Token struct {
	Text string
	Err  error
}

// Client is the abstraction over any streaming translation backend.
type Client interface {
	// StreamTranslation opens a token stream for req. The returned channel is
	// closed when the translation completes, fails (final token carries the
	// error), or ctx is cancelled. A non-nil error return means the stream
	// could not be opened at all.
	//
	// The caller must drain the channel to avoid leaking the provider's
	// delivery goroutine.
	StreamTranslation(ctx context.Context, req Request) (<-chan Token, error)
}
