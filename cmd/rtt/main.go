// Command rtt is the real-time speech translation pipeline: it captures
// audio, chunks it into utterances, transcribes, translates token by token,
// synthesizes the result, and publishes everything through an ordered result
// log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canning1295/RealTimeTranslate/internal/app"
	"github.com/canning1295/RealTimeTranslate/internal/config"
	"github.com/canning1295/RealTimeTranslate/internal/resilience"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
	synthel "github.com/canning1295/RealTimeTranslate/pkg/provider/synth/elevenlabs"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	transcribeoai "github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe/openai"
	transcribewhisper "github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe/whisper"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
	translateoai "github.com/canning1295/RealTimeTranslate/pkg/provider/translate/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "rtt: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "rtt: %v\n", err)
		}
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("rtt starting",
		"config", *configPath,
		"source", cfg.Session.SourceLanguage,
		"target", cfg.Session.TargetLanguage,
		"log_level", string(cfg.Server.LogLevel),
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, app.WithLogLevelVar(logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Hot-reload: reloadable fields (log level, chunker tuning, voice) are
	// applied on the fly; everything else requires a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		application.Apply(config.Diff(old, updated))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("pipeline ready — press Ctrl+C to stop")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with rtt
// into reg. Each factory receives a config.ProviderEntry and constructs the
// matching client.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscribe("whisper", func(entry config.ProviderEntry) (transcribe.Client, error) {
		var opts []transcribewhisper.Option
		if entry.Model != "" {
			opts = append(opts, transcribewhisper.WithModel(entry.Model))
		}
		return transcribewhisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscribe("openai", func(entry config.ProviderEntry) (transcribe.Client, error) {
		var opts []transcribeoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, transcribeoai.WithBaseURL(entry.BaseURL))
		}
		return transcribeoai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Client, error) {
		var opts []translateoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, translateoai.WithBaseURL(entry.BaseURL))
		}
		return translateoai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Synthesis ─────────────────────────────────────────────────────────────

	reg.RegisterSynthesize("elevenlabs", func(entry config.ProviderEntry) (synth.Client, error) {
		var opts []synthel.Option
		if entry.Model != "" {
			opts = append(opts, synthel.WithModel(entry.Model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, synthel.WithOutputFormat(format))
		}
		if dir := optString(entry.Options, "output_dir"); dir != "" {
			opts = append(opts, synthel.WithOutputDir(dir))
		}
		if cfg.Session.DefaultVoice != "" {
			opts = append(opts, synthel.WithDefaultVoice(cfg.Session.DefaultVoice))
		}
		return synthel.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the provider chains named in cfg. A chain with
// fallbacks is wrapped in a failover group with per-provider circuit
// breakers; a chain with only a primary is used directly.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := resilience.FallbackConfig{}

	chain := cfg.Providers.Transcribe
	primary, err := reg.CreateTranscribe(chain.Primary)
	if err != nil {
		return nil, fmt.Errorf("create transcribe provider %q: %w", chain.Primary.Name, err)
	}
	slog.Info("provider created", "kind", "transcribe", "name", chain.Primary.Name)
	if len(chain.Fallbacks) == 0 {
		ps.Transcriber = primary
	} else {
		group := resilience.NewTranscribeFallback(primary, chain.Primary.Name, fbCfg)
		for _, entry := range chain.Fallbacks {
			fb, err := reg.CreateTranscribe(entry)
			if err != nil {
				return nil, fmt.Errorf("create transcribe fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, fb)
			slog.Info("fallback registered", "kind", "transcribe", "name", entry.Name)
		}
		ps.Transcriber = group
	}

	tchain := cfg.Providers.Translate
	tprimary, err := reg.CreateTranslate(tchain.Primary)
	if err != nil {
		return nil, fmt.Errorf("create translate provider %q: %w", tchain.Primary.Name, err)
	}
	slog.Info("provider created", "kind", "translate", "name", tchain.Primary.Name)
	if len(tchain.Fallbacks) == 0 {
		ps.Translator = tprimary
	} else {
		group := resilience.NewTranslateFallback(tprimary, tchain.Primary.Name, fbCfg)
		for _, entry := range tchain.Fallbacks {
			fb, err := reg.CreateTranslate(entry)
			if err != nil {
				return nil, fmt.Errorf("create translate fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, fb)
			slog.Info("fallback registered", "kind", "translate", "name", entry.Name)
		}
		ps.Translator = group
	}

	schain := cfg.Providers.Synthesize
	sprimary, err := reg.CreateSynthesize(schain.Primary)
	if err != nil {
		return nil, fmt.Errorf("create synthesize provider %q: %w", schain.Primary.Name, err)
	}
	slog.Info("provider created", "kind", "synthesize", "name", schain.Primary.Name)
	if len(schain.Fallbacks) == 0 {
		ps.Synthesizer = sprimary
	} else {
		group := resilience.NewSynthFallback(sprimary, schain.Primary.Name, fbCfg)
		for _, entry := range schain.Fallbacks {
			fb, err := reg.CreateSynthesize(entry)
			if err != nil {
				return nil, fmt.Errorf("create synthesize fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, fb)
			slog.Info("fallback registered", "kind", "synthesize", "name", entry.Name)
		}
		ps.Synthesizer = group
	}

	return ps, nil
}

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
