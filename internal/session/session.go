// Package session wires one end-to-end translation run: capture feeds the
// chunker, the chunker feeds the pipeline coordinator, and the coordinator
// publishes finalized utterances into the result sink. The session owns the
// lifetime of all of them and persists the finished run to the history store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canning1295/RealTimeTranslate/internal/chunker"
	"github.com/canning1295/RealTimeTranslate/internal/config"
	"github.com/canning1295/RealTimeTranslate/internal/observe"
	"github.com/canning1295/RealTimeTranslate/internal/pipeline"
	"github.com/canning1295/RealTimeTranslate/internal/sink"
	"github.com/canning1295/RealTimeTranslate/pkg/audio"
	"github.com/canning1295/RealTimeTranslate/pkg/history"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// Config holds everything a [Session] needs: the providers, the audio source,
// and the tuning for the chunker and the pipeline.
type Config struct {
	// ID identifies the session. Generated when empty.
	ID string

	// Capture is the audio source. Required.
	Capture audio.Capture

	// Transcriber, Translator, and Synthesizer are the stage providers.
	// All three are required.
	Transcriber transcribe.Client
	Translator  translate.Client
	Synthesizer synth.Client

	// History receives the finished session record. Optional; when nil the
	// session is not persisted.
	History history.Store

	// StopPolicy selects drain or abort semantics for [Session.Stop].
	// Default: drain.
	StopPolicy config.StopPolicy

	// Chunker and Pipeline tune the VAD state machine and the coordinator.
	Chunker  chunker.Config
	Pipeline pipeline.Config

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Session is one capture-to-sink translation run. Create with [New], drive
// with [Session.Start] and [Session.Stop].
//
// All exported methods are safe for concurrent use.
type Session struct {
	id      string
	cfg     Config
	chunk   *chunker.Chunker
	coord   *pipeline.Coordinator
	results *sink.Sink
	metrics *observe.Metrics

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// New validates cfg and assembles a Session. The pipeline's language pair and
// voice come from cfg.Pipeline.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.Capture == nil:
		return nil, errors.New("session: capture is required")
	case cfg.Transcriber == nil:
		return nil, errors.New("session: transcriber is required")
	case cfg.Translator == nil:
		return nil, errors.New("session: translator is required")
	case cfg.Synthesizer == nil:
		return nil, errors.New("session: synthesizer is required")
	}
	if cfg.StopPolicy == "" {
		cfg.StopPolicy = config.StopDrain
	}
	if !cfg.StopPolicy.IsValid() {
		return nil, fmt.Errorf("session: invalid stop policy %q", cfg.StopPolicy)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	results := sink.New()
	return &Session{
		id:      cfg.ID,
		cfg:     cfg,
		chunk:   chunker.New(cfg.Chunker),
		coord: pipeline.New(cfg.Transcriber, cfg.Translator, cfg.Synthesizer,
			results, cfg.Pipeline, pipeline.WithMetrics(cfg.Metrics)),
		results: results,
		metrics: cfg.Metrics,
		done:    make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Results returns the sink holding this session's utterances. Subscribers
// receive a replay of existing state followed by live updates.
func (s *Session) Results() *sink.Sink { return s.results }

// Done is closed once the pipeline has finalized every utterance and shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start begins capture and pipeline processing. It returns once the run is
// going; processing continues in the background until [Session.Stop] or until
// the capture source ends on its own (end of file).
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("session %s: already started", s.id)
	}

	// The run outlives the Start call; only Stop or abort ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if err := s.cfg.Capture.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("session %s: start capture: %w", s.id, err)
	}

	s.started = true
	s.startedAt = time.Now().UTC()
	s.cancel = cancel
	s.metrics.ActiveSessions.Add(runCtx, 1)

	buffers := make(chan chunker.UtteranceBuffer)

	// Capture loop: single goroutine owns Push and Stop, per the chunker's
	// contract. A closed frame channel is the end-of-stream signal.
	go func() {
		for frame := range s.cfg.Capture.Frames() {
			s.chunk.Push(frame)
		}
		s.chunk.Stop()
	}()

	// Bridge completed utterance buffers into the coordinator.
	go func() {
		for ub := range s.chunk.Utterances() {
			buffers <- *ub
		}
		close(buffers)
	}()

	go func() {
		defer close(s.done)
		s.coord.Run(runCtx, buffers)
		s.metrics.ActiveSessions.Add(context.WithoutCancel(runCtx), -1)
	}()

	slog.Info("session started",
		"session_id", s.id,
		"source_language", s.cfg.Pipeline.SourceLanguage,
		"target_language", s.cfg.Pipeline.TargetLanguage,
		"voice", s.cfg.Pipeline.Voice,
		"stop_policy", s.cfg.StopPolicy,
	)
	return nil
}

// Stop ends the session according to its stop policy: drain stops capture and
// waits for in-flight utterances to finish, abort cancels them. In both cases
// Stop blocks until the pipeline has shut down (or ctx expires), persists the
// run to the history store, and closes the result sink.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("session %s: not started", s.id)
	}
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.cfg.StopPolicy == config.StopAbort {
		s.cancel()
	}
	if err := s.cfg.Capture.Stop(); err != nil {
		slog.Warn("session: capture stop error", "session_id", s.id, "err", err)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		// Force the pipeline down before giving up on the wait.
		s.cancel()
		<-s.done
		slog.Warn("session: drain deadline expired; in-flight utterances were aborted",
			"session_id", s.id)
	}
	s.cancel()

	endedAt := time.Now().UTC()
	final := s.results.All()
	s.persist(ctx, final, endedAt)
	s.results.Close()

	var done, failed int
	for _, u := range final {
		if u.Status == sink.StatusDone {
			done++
		} else {
			failed++
		}
	}
	slog.Info("session stopped",
		"session_id", s.id,
		"utterances", len(final),
		"done", done,
		"failed", failed,
		"duration", endedAt.Sub(s.startedAt),
	)
	return nil
}

// persist writes the finished run to the history store, if one is configured.
func (s *Session) persist(ctx context.Context, final []sink.Utterance, endedAt time.Time) {
	if s.cfg.History == nil {
		return
	}

	rec := history.SessionRecord{
		ID:             s.id,
		SourceLanguage: s.cfg.Pipeline.SourceLanguage,
		TargetLanguage: s.cfg.Pipeline.TargetLanguage,
		Voice:          s.cfg.Pipeline.Voice,
		StartedAt:      s.startedAt,
		EndedAt:        endedAt,
		Utterances:     make([]history.UtteranceRecord, 0, len(final)),
	}
	for _, u := range final {
		rec.Utterances = append(rec.Utterances, history.UtteranceRecord{
			Seq:         u.Seq,
			SourceText:  u.SourceText,
			Translation: u.Translation,
			AudioRef:    u.AudioRef,
			Status:      string(u.Status),
			ErrKind:     u.ErrKind,
			Retries:     u.Retries,
		})
	}

	// Persistence should survive an already-cancelled stop context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.cfg.History.SaveSession(saveCtx, rec); err != nil {
		slog.Warn("session: history save error", "session_id", s.id, "err", err)
	}
}
