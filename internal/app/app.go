// Package app wires the teddy bear backend subsystems into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects the
// telemetry providers, the relay bridge, and the HTTP server; Run serves
// until the context is cancelled; Shutdown tears everything down in order.
//
// For testing, inject a mock upstream dialer via [WithDialer]. When no
// option is provided, New creates the real OpenAI dialer from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IhateCreatingUserNames2/TEddyBear/internal/config"
	"github.com/IhateCreatingUserNames2/TEddyBear/internal/observe"
	"github.com/IhateCreatingUserNames2/TEddyBear/internal/relay"
	"github.com/IhateCreatingUserNames2/TEddyBear/internal/server"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/realtime"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/realtime/openai"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDialer injects an upstream dialer instead of creating one from config.
func WithDialer(d realtime.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	dialer realtime.Dialer
	bridge *relay.Bridge
	srv    *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
	stopErr  error
}

// New creates an App by wiring telemetry, the relay bridge, and the HTTP
// server together. Initialisation is fully synchronous; nothing listens
// until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	a.closers = append(a.closers, otelShutdown)
	metrics := observe.DefaultMetrics()

	if a.dialer == nil {
		dialOpts := []openai.Option{openai.WithModel(cfg.Upstream.Model)}
		if cfg.Upstream.BaseURL != "" {
			dialOpts = append(dialOpts, openai.WithBaseURL(cfg.Upstream.BaseURL))
		}
		a.dialer = openai.New(cfg.Upstream.APIKey, dialOpts...)
	}

	a.bridge = relay.New(a.dialer, relay.Config{
		Voice:        cfg.Upstream.Voice,
		Instructions: cfg.Upstream.Instructions,
		Watchdog:     cfg.Upstream.Watchdog(),
	}, relay.WithMetrics(metrics))

	srv := server.New(a.bridge,
		server.WithMetrics(metrics),
		server.WithReadyCheck("upstream_config", func(context.Context) error {
			if cfg.Upstream.APIKey == "" {
				return errors.New("upstream api key not configured")
			}
			return nil
		}),
	)
	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and
// returns.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("teddy backend listening",
			"addr", a.cfg.Server.ListenAddr,
			"model", a.cfg.Upstream.Model,
			"voice", a.cfg.Upstream.Voice)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("app: drain http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Shutdown flushes telemetry and releases resources. Safe to call more than
// once; later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}
