package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrWong99/leadscore/internal/agent"
	"github.com/MrWong99/leadscore/internal/observe"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// defaultMaxBodyBytes caps the size of a scoring request body.
const defaultMaxBodyBytes = 1 << 20

// Runner executes one agent run. It is satisfied by *agent.Loop.
type Runner interface {
	Run(ctx context.Context, seed []llm.Message) (*agent.Result, error)
}

// response is the JSON body of every /score reply.
type response struct {
	Classification string `json:"classification,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Handler serves POST /score.
type Handler struct {
	runner       Runner
	maxBodyBytes int64
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxBodyBytes caps the request body size. Non-positive values are
// ignored. Default: 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler returns a [Handler] that scores leads with runner.
func NewHandler(runner Runner, opts ...Option) *Handler {
	h := &Handler{runner: runner, maxBodyBytes: defaultMaxBodyBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the POST /score route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /score", h)
}

// ServeHTTP reads the lead, runs the agent, and answers with the
// classification. Body problems are rejected with 400 (413 when too large)
// before any run starts; every run failure answers 500 with the error text.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(ctx, w, http.StatusRequestEntityTooLarge, response{Error: "request body too large"})
			return
		}
		writeJSON(ctx, w, http.StatusBadRequest, response{Error: "read request body: " + err.Error()})
		return
	}

	seed, err := Seed(body)
	if err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, response{Error: err.Error()})
		return
	}

	res, err := h.runner.Run(ctx, seed)
	if err != nil {
		log.Error("lead scoring failed", "err", err)
		writeJSON(ctx, w, http.StatusInternalServerError, response{Error: err.Error()})
		return
	}

	log.Info("lead scored",
		"classification", res.Classification,
		"iterations", res.Iterations,
	)
	writeJSON(ctx, w, http.StatusOK, response{Classification: res.Classification})
}

// writeJSON encodes v as JSON and writes it with the given status code. The
// status is committed before encoding, so an encode failure is only logged.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observe.Logger(ctx).Error("scoring: encode response", "status", status, "err", err)
	}
}
