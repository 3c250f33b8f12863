// Package pipeline drives each utterance buffer through transcription,
// streaming translation and speech synthesis, and publishes per-utterance
// snapshots to the result sink.
//
// Concurrency model: one goroutine per utterance runs the three stages in
// order, admission to each stage is gated by a FIFO weighted semaphore
// (capacity 1 by default, to respect provider rate limits), and a single
// publisher goroutine owns all sink updates. The publisher buffers events for
// utterances that are not yet the head — the lowest-sequence utterance still
// in flight — so subscribers never see a later utterance's translation
// interleaved with an earlier one's, and terminal states surface strictly in
// sequence order.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/canning1295/RealTimeTranslate/internal/chunker"
	"github.com/canning1295/RealTimeTranslate/internal/observe"
	"github.com/canning1295/RealTimeTranslate/internal/resilience"
	"github.com/canning1295/RealTimeTranslate/internal/sink"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// updateBuffer sizes the channel between utterance goroutines and the
// publisher. Sends fall back to blocking when it fills; the publisher always
// drains until Run returns, so this bounds memory, not correctness.
const updateBuffer = 64

// Config holds the coordinator's tuning knobs. The zero value is usable:
// every stage gets a single-flight gate and the default retry policy.
type Config struct {
	// SourceLanguage hints the transcription language (e.g. "fr").
	SourceLanguage string

	// TargetLanguage is the translation and synthesis language (e.g. "en").
	TargetLanguage string

	// Voice is the preferred synthesis voice. Empty means provider default.
	Voice string

	// DefaultVoice is tried once when Voice is unavailable. Empty means
	// provider default.
	DefaultVoice string

	// TranscribeSlots, TranslateSlots and SynthesizeSlots cap in-flight
	// calls per stage. Excess utterances queue FIFO. Default: 1 each.
	TranscribeSlots int64
	TranslateSlots  int64
	SynthesizeSlots int64

	// TranscribeRetry, TranslateRetry and SynthesizeRetry configure the
	// per-stage retry controller. Zero-value attempt timeouts default to
	// 10s, 15s and 20s respectively.
	TranscribeRetry resilience.RetryConfig
	TranslateRetry  resilience.RetryConfig
	SynthesizeRetry resilience.RetryConfig
}

func (cfg Config) withDefaults() Config {
	if cfg.TranscribeSlots <= 0 {
		cfg.TranscribeSlots = 1
	}
	if cfg.TranslateSlots <= 0 {
		cfg.TranslateSlots = 1
	}
	if cfg.SynthesizeSlots <= 0 {
		cfg.SynthesizeSlots = 1
	}
	if cfg.TranscribeRetry.AttemptTimeout <= 0 {
		cfg.TranscribeRetry.AttemptTimeout = 10 * time.Second
	}
	if cfg.TranslateRetry.AttemptTimeout <= 0 {
		cfg.TranslateRetry.AttemptTimeout = 15 * time.Second
	}
	if cfg.SynthesizeRetry.AttemptTimeout <= 0 {
		cfg.SynthesizeRetry.AttemptTimeout = 20 * time.Second
	}
	return cfg
}

// update is one message to the publisher goroutine. register marks the
// arrival-order announcement Run sends before spawning the utterance
// goroutine; the first registered sequence number seeds the head.
type update struct {
	u        sink.Utterance
	register bool
}

// Coordinator owns all in-flight utterance state between the chunker and the
// result sink.
type Coordinator struct {
	cfg Config

	transcriber transcribe.Client
	translator  translate.Client
	synthesizer synth.Client
	results     *sink.Sink
	metrics     *observe.Metrics

	transcribeGate *semaphore.Weighted
	translateGate  *semaphore.Weighted
	synthGate      *semaphore.Weighted

	transcribeRetry *resilience.Retrier
	translateRetry  *resilience.Retrier
	synthRetry      *resilience.Retrier

	updates chan update
	pubDone chan struct{}
	wg      sync.WaitGroup

	mu           sync.Mutex
	synthCancels map[uint64]context.CancelFunc
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithMetrics overrides the metrics instance (defaults to
// [observe.DefaultMetrics]).
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a Coordinator publishing to results.
func New(transcriber transcribe.Client, translator translate.Client,
	synthesizer synth.Client, results *sink.Sink, cfg Config, opts ...Option) *Coordinator {

	cfg = cfg.withDefaults()
	c := &Coordinator{
		cfg:             cfg,
		transcriber:     transcriber,
		translator:      translator,
		synthesizer:     synthesizer,
		results:         results,
		transcribeGate:  semaphore.NewWeighted(cfg.TranscribeSlots),
		translateGate:   semaphore.NewWeighted(cfg.TranslateSlots),
		synthGate:       semaphore.NewWeighted(cfg.SynthesizeSlots),
		transcribeRetry: resilience.NewRetrier("transcribe", cfg.TranscribeRetry),
		translateRetry:  resilience.NewRetrier("translate", cfg.TranslateRetry),
		synthRetry:      resilience.NewRetrier("synthesize", cfg.SynthesizeRetry),
		updates:         make(chan update, updateBuffer),
		pubDone:         make(chan struct{}),
		synthCancels:    make(map[uint64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Run consumes utterance buffers until the channel closes, then waits for all
// in-flight utterances to reach a terminal state. Cancelling ctx aborts
// in-flight work: queued and running stage calls fail with cancellation and
// their utterances finalize as failed:cancelled.
//
// Run must be called at most once per Coordinator.
func (c *Coordinator) Run(ctx context.Context, buffers <-chan chunker.UtteranceBuffer) {
	go c.publish()

	for buf := range buffers {
		c.metrics.UtterancesChunked.Add(ctx, 1)
		c.metrics.ActiveUtterances.Add(ctx, 1)

		// Announce arrival order to the publisher before the utterance
		// goroutine can race ahead of earlier ones.
		u := sink.Utterance{Seq: buf.Seq, Status: sink.StatusPending}
		c.updates <- update{u: u, register: true}

		c.wg.Add(1)
		go c.process(ctx, buf, u)
	}

	c.wg.Wait()
	close(c.updates)
	<-c.pubDone
}

// publish serialises all sink updates. Events for the head utterance pass
// through immediately; events for later utterances are buffered per sequence
// number and flushed, in order, once every earlier utterance is terminal.
func (c *Coordinator) publish() {
	defer close(c.pubDone)

	var (
		head     uint64
		headSet  bool
		buffered = make(map[uint64][]sink.Utterance)
	)

	// flush surfaces buffered events for the current head, cascading to the
	// next sequence whenever a flushed utterance is already terminal.
	flush := func() {
		for {
			events := buffered[head]
			delete(buffered, head)
			terminal := false
			for _, u := range events {
				c.results.Publish(u)
				if u.Status.Terminal() {
					terminal = true
				}
			}
			if !terminal {
				return
			}
			head++
		}
	}

	for up := range c.updates {
		if up.register && !headSet {
			head, headSet = up.u.Seq, true
		}
		switch {
		case up.u.Seq == head:
			c.results.Publish(up.u)
			if up.u.Status.Terminal() {
				head++
				flush()
			}
		case up.u.Seq > head:
			buffered[up.u.Seq] = append(buffered[up.u.Seq], up.u)
		}
	}
}

// send forwards a snapshot of u to the publisher.
func (c *Coordinator) send(u sink.Utterance) {
	c.updates <- update{u: u}
}

// process runs the three-stage pipeline for one utterance.
func (c *Coordinator) process(ctx context.Context, buf chunker.UtteranceBuffer, u sink.Utterance) {
	defer c.wg.Done()
	start := time.Now()
	ctx, span := observe.UtteranceSpan(ctx, u.Seq)
	defer func() {
		span.End()
		c.metrics.ActiveUtterances.Add(context.Background(), -1)
		c.metrics.RecordFinalized(context.Background(), string(u.Status))
		c.metrics.UtteranceDuration.Record(context.Background(), time.Since(start).Seconds())
	}()

	log := slog.With("seq", u.Seq, "duration", buf.Duration)

	if !c.transcribeStage(ctx, buf, &u, log) {
		return
	}
	if !c.translateStage(ctx, &u, log) {
		return
	}
	c.synthesizeStage(ctx, &u, log)
}

// transcribeStage fills u.SourceText. Returns false when u is terminal.
func (c *Coordinator) transcribeStage(ctx context.Context, buf chunker.UtteranceBuffer, u *sink.Utterance, log *slog.Logger) bool {
	if err := c.transcribeGate.Acquire(ctx, 1); err != nil {
		c.fail(u, sink.StageTranscribe, fault.New(fault.Cancelled, "transcribe", err), log)
		return false
	}
	u.Status = sink.StatusTranscribing
	c.send(*u)

	stageStart := time.Now()
	res, retries, err := resilience.DoWithResult(ctx, c.transcribeRetry,
		func(ctx context.Context) (transcribe.Result, error) {
			return c.transcriber.Transcribe(ctx, transcribe.Request{
				Samples:    buf.Samples,
				SampleRate: buf.SampleRate,
				Channels:   buf.Channels,
				Language:   c.cfg.SourceLanguage,
			})
		})
	c.transcribeGate.Release(1)
	u.Retries += retries
	c.metrics.RecordRetries(ctx, string(sink.StageTranscribe), retries)
	c.metrics.RecordStageDuration(ctx, string(sink.StageTranscribe), time.Since(stageStart).Seconds())
	if err != nil {
		c.fail(u, sink.StageTranscribe, err, log)
		return false
	}

	u.SourceText = res.Text
	log.Debug("utterance transcribed", "text_len", len(res.Text), "confidence", res.Confidence)
	return true
}

// translateStage streams the translation into u.Translation, forwarding each
// token to the publisher. Partial text is cleared before any retry so a
// subscriber never sees a stale prefix from a failed attempt.
func (c *Coordinator) translateStage(ctx context.Context, u *sink.Utterance, log *slog.Logger) bool {
	if err := c.translateGate.Acquire(ctx, 1); err != nil {
		c.fail(u, sink.StageTranslate, fault.New(fault.Cancelled, "translate", err), log)
		return false
	}
	u.Status = sink.StatusTranslating
	c.send(*u)

	stageStart := time.Now()
	text, retries, err := resilience.DoWithResult(ctx, c.translateRetry,
		func(attemptCtx context.Context) (string, error) {
			stream, err := c.translator.StreamTranslation(attemptCtx, translate.Request{
				Text:           u.SourceText,
				SourceLanguage: c.cfg.SourceLanguage,
				TargetLanguage: c.cfg.TargetLanguage,
			})
			if err != nil {
				return "", err
			}
			u.Translation = ""
			for {
				select {
				case tok, ok := <-stream:
					if !ok {
						return u.Translation, nil
					}
					if tok.Err != nil {
						u.Translation = ""
						c.send(*u)
						return "", tok.Err
					}
					u.Translation += tok.Text
					c.send(*u)
				case <-attemptCtx.Done():
					u.Translation = ""
					c.send(*u)
					return "", fault.New(fault.Cancelled, "translate", attemptCtx.Err())
				}
			}
		})
	c.translateGate.Release(1)
	u.Retries += retries
	c.metrics.RecordRetries(ctx, string(sink.StageTranslate), retries)
	c.metrics.RecordStageDuration(ctx, string(sink.StageTranslate), time.Since(stageStart).Seconds())
	if err != nil {
		c.fail(u, sink.StageTranslate, err, log)
		return false
	}

	u.Translation = text
	u.TranslationDone = true
	log.Debug("utterance translated", "translation_len", len(text))
	return true
}

// synthesizeStage renders u.Translation to audio and finalizes u. A newer
// utterance cancels any older in-flight synthesis before taking its place; an
// utterance superseded that way still finalizes as done, just without an
// audio reference.
func (c *Coordinator) synthesizeStage(ctx context.Context, u *sink.Utterance, log *slog.Logger) {
	c.cancelSynthesesBefore(u.Seq)

	if err := c.synthGate.Acquire(ctx, 1); err != nil {
		c.fail(u, sink.StageSynthesize, fault.New(fault.Cancelled, "synthesize", err), log)
		return
	}
	u.Status = sink.StatusSynthesizing
	c.send(*u)

	synthCtx, cancel := context.WithCancel(ctx)
	c.registerSynth(u.Seq, cancel)

	stageStart := time.Now()
	clip, retries, err := resilience.DoWithResult(synthCtx, c.synthRetry,
		func(attemptCtx context.Context) (synth.Clip, error) {
			req := synth.Request{
				Text:     u.Translation,
				Language: c.cfg.TargetLanguage,
				Voice:    c.cfg.Voice,
			}
			clip, err := c.synthesizer.Synthesize(attemptCtx, req)
			if err != nil && fault.KindOf(err) == fault.VoiceUnavailable && req.Voice != c.cfg.DefaultVoice {
				log.Warn("voice unavailable, retrying with default voice",
					"voice", req.Voice, "default_voice", c.cfg.DefaultVoice)
				req.Voice = c.cfg.DefaultVoice
				clip, err = c.synthesizer.Synthesize(attemptCtx, req)
			}
			return clip, err
		})
	c.unregisterSynth(u.Seq)
	cancel()
	c.synthGate.Release(1)
	u.Retries += retries
	c.metrics.RecordRetries(ctx, string(sink.StageSynthesize), retries)
	c.metrics.RecordStageDuration(ctx, string(sink.StageSynthesize), time.Since(stageStart).Seconds())

	if err != nil {
		if fault.IsCancelled(err) && ctx.Err() == nil {
			// Superseded by a newer utterance. The text survives; only the
			// audio is skipped.
			u.Status = sink.StatusDone
			c.send(*u)
			log.Debug("synthesis superseded by newer utterance")
			return
		}
		c.fail(u, sink.StageSynthesize, err, log)
		return
	}

	u.AudioRef = clip.Ref
	u.Status = sink.StatusDone
	c.send(*u)
	log.Info("utterance completed", "audio_ref", clip.Ref, "retries", u.Retries)
}

// fail finalizes u. Externally requested cancellation (session abort) maps to
// failed:cancelled; everything else maps to failed:<stage> with the fault
// kind recorded.
func (c *Coordinator) fail(u *sink.Utterance, stage sink.Stage, err error, log *slog.Logger) {
	kind := fault.KindOf(err)
	if kind == fault.Cancelled {
		u.Status = sink.StatusCancelled
	} else {
		u.Status = sink.Failed(stage)
		c.metrics.RecordProviderError(context.Background(), string(stage), kind.String())
	}
	u.ErrKind = kind.String()
	c.send(*u)
	log.Warn("utterance failed", "stage", stage, "kind", kind, "error", err)
}

// registerSynth records the cancel function for an in-flight synthesis.
func (c *Coordinator) registerSynth(seq uint64, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synthCancels[seq] = cancel
}

// unregisterSynth removes the cancel function once synthesis finished.
func (c *Coordinator) unregisterSynth(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.synthCancels, seq)
}

// cancelSynthesesBefore cancels every in-flight synthesis with a sequence
// number below seq.
func (c *Coordinator) cancelSynthesesBefore(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s, cancel := range c.synthCancels {
		if s < seq {
			cancel()
		}
	}
}
