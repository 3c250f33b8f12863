package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcribe": {"openai", "whisper"},
	"translate":  {"openai"},
	"synthesize": {"elevenlabs"},
	"capture":    {"wavfile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Session
	if cfg.Session.SourceLanguage == "" {
		errs = append(errs, errors.New("session.source_language is required"))
	}
	if cfg.Session.TargetLanguage == "" {
		errs = append(errs, errors.New("session.target_language is required"))
	}
	if cfg.Session.SourceLanguage != "" && cfg.Session.SourceLanguage == cfg.Session.TargetLanguage {
		errs = append(errs, fmt.Errorf("session.source_language and session.target_language are both %q; nothing to translate", cfg.Session.SourceLanguage))
	}
	if cfg.Session.StopPolicy != "" && !cfg.Session.StopPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("session.stop_policy %q is invalid; valid values: drain, abort", cfg.Session.StopPolicy))
	}
	if cfg.Session.Voice == "" {
		slog.Warn("session.voice is empty; synthesis will use the provider's default voice")
	}

	// Capture
	validateProviderName("capture", cfg.Capture.Source)
	if cfg.Capture.Source == "wavfile" && cfg.Capture.Path == "" {
		errs = append(errs, errors.New("capture.path is required when capture.source is wavfile"))
	}
	if cfg.Capture.FrameDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.frame_duration %s must not be negative", cfg.Capture.FrameDuration.Std()))
	}

	// Chunker
	if cfg.Chunker.SpeechThresholdDB > 0 {
		errs = append(errs, fmt.Errorf("chunker.speech_threshold_db %.1f must be zero or negative (dBFS)", cfg.Chunker.SpeechThresholdDB))
	}
	if cfg.Chunker.SilenceDuration < 0 {
		errs = append(errs, fmt.Errorf("chunker.silence_duration %s must not be negative", cfg.Chunker.SilenceDuration.Std()))
	}
	if cfg.Chunker.MinUtterance < 0 {
		errs = append(errs, fmt.Errorf("chunker.min_utterance %s must not be negative", cfg.Chunker.MinUtterance.Std()))
	}
	if cfg.Chunker.PowerWindow < 0 {
		errs = append(errs, fmt.Errorf("chunker.power_window %d must not be negative", cfg.Chunker.PowerWindow))
	}
	if cfg.Chunker.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("chunker.queue_depth %d must not be negative", cfg.Chunker.QueueDepth))
	}
	if cfg.Chunker.DropShort && cfg.Chunker.MinUtterance == 0 {
		slog.Warn("chunker.drop_short is set but chunker.min_utterance is zero; no buffer will ever be dropped")
	}

	// Pipeline stages
	validateStage(&errs, "transcribe", cfg.Pipeline.Transcribe)
	validateStage(&errs, "translate", cfg.Pipeline.Translate)
	validateStage(&errs, "synthesize", cfg.Pipeline.Synthesize)

	// Providers — each stage needs a primary; fallback names get typo warnings.
	validateChain(&errs, "transcribe", cfg.Providers.Transcribe)
	validateChain(&errs, "translate", cfg.Providers.Translate)
	validateChain(&errs, "synthesize", cfg.Providers.Synthesize)

	// History availability
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; finished sessions will not be persisted")
	}

	return errors.Join(errs...)
}

// validateStage checks one pipeline stage tuning block.
func validateStage(errs *[]error, stage string, sc StageConfig) {
	if sc.Slots < 0 {
		*errs = append(*errs, fmt.Errorf("pipeline.%s.slots %d must not be negative", stage, sc.Slots))
	}
	if sc.MaxRetries < 0 {
		*errs = append(*errs, fmt.Errorf("pipeline.%s.max_retries %d must not be negative", stage, sc.MaxRetries))
	}
	if sc.BaseDelay < 0 {
		*errs = append(*errs, fmt.Errorf("pipeline.%s.base_delay %s must not be negative", stage, sc.BaseDelay.Std()))
	}
	if sc.MaxDelay < 0 {
		*errs = append(*errs, fmt.Errorf("pipeline.%s.max_delay %s must not be negative", stage, sc.MaxDelay.Std()))
	}
	if sc.AttemptTimeout < 0 {
		*errs = append(*errs, fmt.Errorf("pipeline.%s.attempt_timeout %s must not be negative", stage, sc.AttemptTimeout.Std()))
	}
	if sc.MaxDelay > 0 && sc.BaseDelay > sc.MaxDelay {
		*errs = append(*errs, fmt.Errorf("pipeline.%s.base_delay %s exceeds max_delay %s", stage, sc.BaseDelay.Std(), sc.MaxDelay.Std()))
	}
}

// validateChain checks one provider chain: the primary is required, and every
// name is checked against the known-provider list.
func validateChain(errs *[]error, kind string, chain ProviderChain) {
	if chain.Primary.Name == "" {
		*errs = append(*errs, fmt.Errorf("providers.%s.primary.name is required", kind))
	} else {
		validateProviderName(kind, chain.Primary.Name)
	}
	for i, fb := range chain.Fallbacks {
		if fb.Name == "" {
			*errs = append(*errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
