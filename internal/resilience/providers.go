package resilience

import (
	"context"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// TranscribeFallback implements [transcribe.Client] with automatic failover
// across multiple transcription backends, each behind its own circuit
// breaker. Typical setup: a local Whisper server as primary with a cloud
// backend as fallback.
type TranscribeFallback struct {
	group *FallbackGroup[transcribe.Client]
}

// Compile-time interface assertion.
var _ transcribe.Client = (*TranscribeFallback)(nil)

// NewTranscribeFallback creates a [TranscribeFallback] with primary as the
// preferred backend.
func NewTranscribeFallback(primary transcribe.Client, primaryName string, cfg FallbackConfig) *TranscribeFallback {
	return &TranscribeFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcription backend.
func (f *TranscribeFallback) AddFallback(name string, client transcribe.Client) {
	f.group.AddFallback(name, client)
}

// Transcribe sends the request to the first healthy backend.
func (f *TranscribeFallback) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	return ExecuteWithResult(f.group, func(c transcribe.Client) (transcribe.Result, error) {
		return c.Transcribe(ctx, req)
	})
}

// TranslateFallback implements [translate.Client] with automatic failover
// across multiple translation backends.
type TranslateFallback struct {
	group *FallbackGroup[translate.Client]
}

// Compile-time interface assertion.
var _ translate.Client = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Client, primaryName string, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional translation backend.
func (f *TranslateFallback) AddFallback(name string, client translate.Client) {
	f.group.AddFallback(name, client)
}

// StreamTranslation opens a token stream from the first healthy backend.
// Only stream setup participates in failover; once a stream is established,
// mid-stream errors are the caller's responsibility.
func (f *TranslateFallback) StreamTranslation(ctx context.Context, req translate.Request) (<-chan translate.Token, error) {
	return ExecuteWithResult(f.group, func(c translate.Client) (<-chan translate.Token, error) {
		return c.StreamTranslation(ctx, req)
	})
}

// SynthFallback implements [synth.Client] with automatic failover across
// multiple synthesis backends.
type SynthFallback struct {
	group *FallbackGroup[synth.Client]
}

// Compile-time interface assertion.
var _ synth.Client = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary synth.Client, primaryName string, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional synthesis backend.
func (f *SynthFallback) AddFallback(name string, client synth.Client) {
	f.group.AddFallback(name, client)
}

// Synthesize renders the clip with the first healthy backend.
func (f *SynthFallback) Synthesize(ctx context.Context, req synth.Request) (synth.Clip, error) {
	return ExecuteWithResult(f.group, func(c synth.Client) (synth.Clip, error) {
		return c.Synthesize(ctx, req)
	})
}
