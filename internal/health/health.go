// Package health serves the liveness and readiness endpoints of the lead
// scoring service.
//
// /healthz answers as long as the process serves HTTP and reports uptime.
// /readyz runs every registered [Checker] concurrently and answers 503 when
// any of them fails, so load balancers stop routing scoring requests to an
// instance whose reasoning provider is unusable.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

// Status values used in response bodies.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// errTimedOut is reported for a checker that did not return before its
// deadline, whether or not it honoured ctx.
var errTimedOut = errors.New("timed out")

// Checker inspects one dependency of the service. Check returns a short
// human-readable detail (for example the breaker state) and a non-nil error
// when the dependency makes the service unready.
type Checker struct {
	Name  string
	Check func(ctx context.Context) (detail string, err error)
}

// CheckResult is the per-checker entry of a readiness response.
type CheckResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report is the body of both endpoints. Checks is only set by /readyz.
type Report struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime,omitempty"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithCheckTimeout bounds each checker individually. Non-positive values are
// ignored.
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler serves /healthz and /readyz. The checker set is fixed at
// construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
	started  time.Time
}

// New returns a Handler evaluating checkers on every readiness request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  defaultCheckTimeout,
		started:  time.Now(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{
		Status: StatusOK,
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readyz reports readiness.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	code := http.StatusOK
	if rep.Status != StatusOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Evaluate runs all checkers concurrently and aggregates their results. A
// slow checker costs at most the per-check timeout.
func (h *Handler) Evaluate(ctx context.Context) Report {
	results := make([]CheckResult, len(h.checkers))

	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			results[i] = h.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(results))}
	for i, c := range h.checkers {
		if results[i].Status != StatusOK {
			rep.Status = StatusFail
		}
		rep.Checks[c.Name] = results[i]
	}
	return rep
}

func (h *Handler) run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type outcome struct {
		detail string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		detail, err := c.Check(ctx)
		done <- outcome{detail, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = errTimedOut
	}

	if out.err != nil {
		slog.Warn("readiness check failed", "check", c.Name, "err", out.err)
		return CheckResult{Status: StatusFail, Detail: out.detail, Error: out.err.Error()}
	}
	return CheckResult{Status: StatusOK, Detail: out.detail}
}

// writeJSON writes v with status. The header is committed before encoding, so
// an encode failure can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("health: encode response", "err", err)
	}
}
