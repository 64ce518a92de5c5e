// Package app wires all lead scoring subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithMetrics) and the
// [Providers] struct. When an option is not provided, New uses the global
// implementations.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/leadscore/internal/agent"
	"github.com/MrWong99/leadscore/internal/config"
	"github.com/MrWong99/leadscore/internal/health"
	"github.com/MrWong99/leadscore/internal/observe"
	"github.com/MrWong99/leadscore/internal/resilience"
	"github.com/MrWong99/leadscore/internal/scoring"
	"github.com/MrWong99/leadscore/internal/tools"
	"github.com/MrWong99/leadscore/internal/tools/leadscoring"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry.
type Providers struct {
	LLM llm.Provider
}

// App owns all subsystem lifetimes and serves the scoring API.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	provider *resilience.BreakerProvider
	tools    *tools.Registry
	loop     *agent.Loop
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records all telemetry into m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: tool registration
// (including the import of every configured MCP server), agent assembly, and
// HTTP routing. Any failure aborts startup.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Tools ─────────────────────────────────────────────────────────
	if err := a.initTools(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 2. Agent ─────────────────────────────────────────────────────────
	if err := a.initAgent(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init agent: %w", err)
	}

	// ── 3. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTools registers the built-in Lead_Scoring tool and imports the tools of
// every configured MCP server.
func (a *App) initTools(ctx context.Context) error {
	a.tools = tools.New(
		tools.WithDefaultTimeout(a.cfg.Agent.ToolTimeout),
		tools.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.tools.Close)

	if err := a.tools.Register(leadscoring.Tool()); err != nil {
		return err
	}
	for _, srv := range a.cfg.ToolServers() {
		if err := a.tools.RegisterServer(ctx, srv); err != nil {
			return err
		}
		slog.Info("mcp server registered", "name", srv.Name, "transport", srv.Transport)
	}
	slog.Info("tools ready", "count", a.tools.Len())
	return nil
}

// initAgent wraps the LLM provider in a circuit breaker and assembles the
// orchestration loop.
func (a *App) initAgent() error {
	name := a.cfg.Provider.Name
	a.provider = resilience.NewBreakerProvider(name, a.providers.LLM, resilience.CircuitBreakerConfig{
		MaxFailures:  a.cfg.Breaker.MaxFailures,
		ResetTimeout: a.cfg.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("provider circuit breaker state changed",
				"provider", name,
				"from", from,
				"to", to,
			)
		},
	})
	if !a.provider.Capabilities().SupportsToolCalling {
		slog.Warn("model does not support tool calling; readiness will fail",
			"provider", name, "model", a.cfg.Provider.Model)
	}

	reasoner :=agent.NewLLMReasoner(a.provider, a.tools.Definitions(),
		agent.WithReasoningTimeout(a.cfg.Provider.Timeout),
		agent.WithTemperature(a.cfg.Provider.Temperature),
		agent.WithMaxTokens(a.cfg.Provider.MaxTokens),
		agent.WithProviderName(name),
		agent.WithReasonerMetrics(a.metrics),
	)

	policy, err := agent.ParseToolErrorPolicy(a.cfg.Agent.ToolErrors)
	if err != nil {
		return err
	}
	a.loop, err = agent.NewLoop(reasoner, a.tools,
		agent.WithMaxIterations(a.cfg.Agent.MaxIterations),
		agent.WithToolErrorPolicy(policy),
		agent.WithParallelTools(a.cfg.Agent.ParallelTools),
		agent.WithMetrics(a.metrics),
	)
	return err
}

// initHTTP mounts the scoring, health, and metrics routes.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	scoring.NewHandler(a.loop).Register(mux)
	health.New([]health.Checker{
		health.ProviderCheck(a.cfg.Provider.Name, a.cfg.Provider.Model, a.provider.Capabilities),
		health.BreakerCheck(a.provider.Breaker()),
		health.ToolsCheck(a.tools.Len),
	}).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	a.handler = observe.Middleware(a.metrics, "/healthz", "/readyz", "/metrics")(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
// It returns ctx.Err() on cancellation; in-flight requests are drained by
// [App.Shutdown].
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is like [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight scoring runs, and
// then tears down all subsystems in order. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs every registered closer, ignoring errors. Used when New
// fails part-way.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
