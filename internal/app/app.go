// Package app wires configuration, providers, history persistence, the
// session manager, and the metrics/health HTTP endpoint into a runnable
// application. main() stays thin: it parses flags, builds providers from the
// registry, and hands everything to [New].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/canning1295/RealTimeTranslate/internal/config"
	"github.com/canning1295/RealTimeTranslate/internal/health"
	"github.com/canning1295/RealTimeTranslate/internal/observe"
	"github.com/canning1295/RealTimeTranslate/internal/session"
	"github.com/canning1295/RealTimeTranslate/internal/sink"
	"github.com/canning1295/RealTimeTranslate/pkg/audio"
	"github.com/canning1295/RealTimeTranslate/pkg/audio/wavfile"
	"github.com/canning1295/RealTimeTranslate/pkg/history"
	"github.com/canning1295/RealTimeTranslate/pkg/history/postgres"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// Providers bundles the pipeline's provider clients. The cmd layer builds
// them from the registry (wrapped in fallback groups when the config names
// fallbacks) before constructing the App.
type Providers struct {
	Transcriber transcribe.Client
	Translator  translate.Client
	Synthesizer synth.Client
}

// App owns the application-level lifecycle: the HTTP endpoint, the history
// store, and the session manager.
type App struct {
	cfg      *config.Config
	manager  *session.Manager
	metrics  *observe.Metrics
	history  history.Store
	server   *http.Server
	logLevel *slog.LevelVar

	// ownsHistory is set when the App opened the store itself and must
	// close it on shutdown.
	ownsHistory bool

	newCapture func(config.CaptureConfig) (audio.Capture, error)

	shutdownOTel func(context.Context) error
}

// Option is a functional option for [New].
type Option func(*App)

// WithHistory injects a pre-built history store instead of dialing the
// configured Postgres DSN. The caller keeps ownership of the store.
func WithHistory(store history.Store) Option {
	return func(a *App) {
		a.history = store
	}
}

// WithLogLevelVar hands the App the level var backing the process logger so
// config hot-reloads can retune verbosity.
func WithLogLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) {
		a.logLevel = lv
	}
}

// WithCaptureFactory overrides how audio sources are created. Used in tests
// to feed synthetic frames instead of reading a file.
func WithCaptureFactory(f func(config.CaptureConfig) (audio.Capture, error)) Option {
	return func(a *App) {
		a.newCapture = f
	}
}

// WithMetrics injects pre-built instruments and skips global telemetry
// initialisation. The Prometheus exporter registers collectors on the
// process-wide default registry, so tests constructing several Apps must use
// this to avoid duplicate registration.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// defaultCapture builds the audio source named by the capture config.
func defaultCapture(cfg config.CaptureConfig) (audio.Capture, error) {
	switch cfg.Source {
	case "wavfile", "":
		var opts []wavfile.Option
		if d := cfg.FrameDuration.Std(); d > 0 {
			opts = append(opts, wavfile.WithFrameDuration(d))
		}
		if cfg.Realtime {
			opts = append(opts, wavfile.WithRealtime(true))
		}
		return wavfile.New(cfg.Path, opts...)
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}

// New assembles the application from a validated config and built providers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Transcriber == nil || providers.Translator == nil || providers.Synthesizer == nil {
		return nil, errors.New("app: transcribe, translate and synthesize providers are all required")
	}

	a := &App{cfg: cfg, newCapture: defaultCapture}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "rtt"})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.shutdownOTel = shutdownOTel

		metrics, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: create metrics: %w", err)
		}
		a.metrics = metrics
	}

	if a.history == nil && cfg.History.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.History.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: open history store: %w", err)
		}
		a.history = store
		a.ownsHistory = true
		slog.Info("history persistence enabled")
	}

	captureCfg := cfg.Capture
	a.manager = session.NewManager(session.ManagerConfig{
		NewCapture: func() (audio.Capture, error) {
			return a.newCapture(captureCfg)
		},
		Transcriber: providers.Transcriber,
		Translator:  providers.Translator,
		Synthesizer: providers.Synthesizer,
		History:     a.history,
		StopPolicy:  cfg.Session.StopPolicy,
		Chunker:     session.ChunkerConfigFrom(cfg.Chunker),
		Pipeline:    session.PipelineConfigFrom(cfg.Session, cfg.Pipeline),
		Metrics:     a.metrics,
	})

	if cfg.Server.ListenAddr != "" {
		a.server = a.buildServer()
	}

	return a, nil
}

// Manager exposes the session manager, mainly for tests.
func (a *App) Manager() *session.Manager { return a.manager }

// buildServer assembles the /metrics, /healthz and /readyz endpoint.
func (a *App) buildServer() *http.Server {
	checkers := []health.Checker{
		{
			Name: "session",
			Check: func(context.Context) error {
				if _, ok := a.manager.Active(); !ok {
					return errors.New("no active session")
				}
				return nil
			},
		},
	}
	if pg, ok := a.history.(*postgres.Store); ok {
		checkers = append(checkers, health.Checker{Name: "database", Check: pg.Ping})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	return &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the HTTP endpoint and the translation session, then blocks
// until the session completes (input exhausted) or ctx is cancelled. The
// session is stopped with the configured policy in both cases.
func (a *App) Run(ctx context.Context) error {
	if a.server != nil {
		go func() {
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = a.server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
		slog.Info("serving metrics and health", "addr", a.cfg.Server.ListenAddr)
	}

	sess, err := a.manager.Start(ctx)
	if err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}
	slog.Info("session started",
		"id", sess.ID(),
		"source", a.cfg.Session.SourceLanguage,
		"target", a.cfg.Session.TargetLanguage,
	)

	sub := sess.Results().Subscribe(64)
	go logResults(sub)

	select {
	case <-sess.Done():
		slog.Info("input exhausted, finishing session", "id", sess.ID())
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := a.manager.Stop(stopCtx); err != nil {
		return fmt.Errorf("app: stop session: %w", err)
	}
	return nil
}

// logResults prints each utterance once it reaches a terminal state. The
// subscription channel closes when the session's sink closes.
func logResults(sub *sink.Subscription) {
	seenTerminal := make(map[uint64]bool)
	for ev := range sub.C {
		u := ev.Utterance
		if !u.Status.Terminal() || seenTerminal[u.Seq] {
			continue
		}
		seenTerminal[u.Seq] = true
		if u.Status == sink.StatusDone {
			slog.Info("utterance translated",
				"seq", u.Seq,
				"source", u.SourceText,
				"translation", u.Translation,
				"audio", u.AudioRef,
				"retries", u.Retries,
			)
		} else {
			slog.Warn("utterance failed",
				"seq", u.Seq,
				"status", string(u.Status),
				"kind", u.ErrKind,
				"source", u.SourceText,
			)
		}
	}
}

// Apply reacts to a config hot-reload diff: log level takes effect
// immediately, session tuning applies to subsequently started sessions.
func (a *App) Apply(d config.ConfigDiff) {
	if !d.Any() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
	a.manager.Apply(d)
}

// Shutdown stops the HTTP endpoint, closes the history store, and flushes
// telemetry. The session is assumed to have been stopped by [App.Run].
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.ownsHistory {
		if pg, ok := a.history.(*postgres.Store); ok {
			pg.Close()
		}
	}
	if a.shutdownOTel != nil {
		if err := a.shutdownOTel(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
