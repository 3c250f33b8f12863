package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/canning1295/RealTimeTranslate/internal/chunker"
	"github.com/canning1295/RealTimeTranslate/internal/config"
	"github.com/canning1295/RealTimeTranslate/internal/observe"
	"github.com/canning1295/RealTimeTranslate/internal/pipeline"
	"github.com/canning1295/RealTimeTranslate/internal/resilience"
	"github.com/canning1295/RealTimeTranslate/pkg/audio"
	"github.com/canning1295/RealTimeTranslate/pkg/history"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// ManagerConfig holds the dependencies and per-session template for a [Manager].
type ManagerConfig struct {
	// NewCapture creates the audio source for each session. Required: capture
	// sources are single-use (a file is replayed once), so every session gets
	// a fresh one.
	NewCapture func() (audio.Capture, error)

	Transcriber transcribe.Client
	Translator  translate.Client
	Synthesizer synth.Client

	// History is handed to every session. Optional.
	History history.Store

	StopPolicy config.StopPolicy
	Chunker    chunker.Config
	Pipeline   pipeline.Config
	Metrics    *observe.Metrics
}

// Manager runs at most one session at a time and applies hot-reloaded tuning
// (voice, chunker knobs) to subsequently started sessions.
// All exported methods are safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	cfg    ManagerConfig
	active *Session
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Start creates and starts a new session. It returns an error if one is
// already running.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, fmt.Errorf("session manager: a session is already active (id=%s)", m.active.ID())
	}
	if m.cfg.NewCapture == nil {
		return nil, fmt.Errorf("session manager: no capture factory configured")
	}

	capture, err := m.cfg.NewCapture()
	if err != nil {
		return nil, fmt.Errorf("session manager: create capture: %w", err)
	}

	sess, err := New(Config{
		Capture:     capture,
		Transcriber: m.cfg.Transcriber,
		Translator:  m.cfg.Translator,
		Synthesizer: m.cfg.Synthesizer,
		History:     m.cfg.History,
		StopPolicy:  m.cfg.StopPolicy,
		Chunker:     m.cfg.Chunker,
		Pipeline:    m.cfg.Pipeline,
		Metrics:     m.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	m.active = sess
	return sess, nil
}

// Stop ends the active session. Returns an error if none is running.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	sess := m.active
	m.active = nil
	m.mu.Unlock()

	if sess == nil {
		return fmt.Errorf("session manager: no active session to stop")
	}
	return sess.Stop(ctx)
}

// Active returns the running session, or false if none is running.
func (m *Manager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	return m.active, true
}

// Apply updates the manager's session template from a config hot-reload.
// Changes take effect for sessions started afterwards; the active session,
// if any, keeps its tuning.
func (m *Manager) Apply(d config.ConfigDiff) {
	if !d.Any() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d.VoiceChanged {
		m.cfg.Pipeline.Voice = d.NewVoice
		slog.Info("session manager: voice updated for future sessions", "voice", d.NewVoice)
	}
	if d.ChunkerChanged {
		m.cfg.Chunker = ChunkerConfigFrom(d.NewChunker)
		slog.Info("session manager: chunker tuning updated for future sessions")
	}
}

// ChunkerConfigFrom maps the YAML chunker block onto the chunker's own config.
func ChunkerConfigFrom(c config.ChunkerConfig) chunker.Config {
	return chunker.Config{
		SpeechThreshold: chunker.PowerSample(c.SpeechThresholdDB),
		SilenceDuration: c.SilenceDuration.Std(),
		MinUtterance:    c.MinUtterance.Std(),
		DropShort:       c.DropShort,
		PowerWindow:     c.PowerWindow,
		QueueDepth:      c.QueueDepth,
	}
}

// PipelineConfigFrom maps the YAML session and pipeline blocks onto the
// coordinator's config.
func PipelineConfigFrom(s config.SessionConfig, p config.PipelineConfig) pipeline.Config {
	return pipeline.Config{
		SourceLanguage:  s.SourceLanguage,
		TargetLanguage:  s.TargetLanguage,
		Voice:           s.Voice,
		DefaultVoice:    s.DefaultVoice,
		TranscribeSlots: p.Transcribe.Slots,
		TranslateSlots:  p.Translate.Slots,
		SynthesizeSlots: p.Synthesize.Slots,
		TranscribeRetry: retryConfigFrom(p.Transcribe),
		TranslateRetry:  retryConfigFrom(p.Translate),
		SynthesizeRetry: retryConfigFrom(p.Synthesize),
	}
}

func retryConfigFrom(s config.StageConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxRetries:     s.MaxRetries,
		BaseDelay:      s.BaseDelay.Std(),
		MaxDelay:       s.MaxDelay.Std(),
		AttemptTimeout: s.AttemptTimeout.Std(),
	}
}
