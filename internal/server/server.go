// Package server exposes the HTTP surface of the teddy bear backend: the
// talk endpoint that relays one utterance upstream, plus health and metrics
// endpoints.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IhateCreatingUserNames2/TEddyBear/internal/observe"
	"github.com/IhateCreatingUserNames2/TEddyBear/internal/relay"
)

// Relay is the exchange the talk endpoint delegates to. Implemented by
// [relay.Bridge].
type Relay interface {
	Exchange(ctx context.Context, audioB64 string) (string, error)
}

// maxBodyBytes caps the talk request body. A minute of 24 kHz PCM16 encoded
// as base64 inside JSON stays well under this.
const maxBodyBytes = 16 << 20

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetrics overrides the [observe.Metrics] instance used by the server.
// Mainly useful in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithReadyCheck registers a named readiness check evaluated by /readyz.
func WithReadyCheck(name string, check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.checks = append(s.checks, readyCheck{name: name, check: check})
	}
}

type readyCheck struct {
	name  string
	check func(ctx context.Context) error
}

// Server routes HTTP requests to the relay. Safe for concurrent use.
type Server struct {
	relay   Relay
	metrics *observe.Metrics
	checks  []readyCheck
}

// New creates a [Server] backed by the given relay.
func New(r Relay, opts ...Option) *Server {
	s := &Server{relay: r}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the full HTTP handler with tracing and metrics middleware
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/talk", s.handleTalk)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

// talkRequest is one captured utterance from the client.
type talkRequest struct {
	// Audio is base64-encoded PCM16 little-endian mono samples.
	Audio string `json:"audio"`

	// SampleRate is the capture sample rate in Hz. Informational; the
	// upstream resamples as needed.
	SampleRate int `json:"sampleRate"`
}

// talkResponse carries the reply audio, base64-encoded PCM16.
type talkResponse struct {
	Audio string `json:"audio"`
}

// errorResponse is the JSON body of every non-2xx talk response.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// handleTalk accepts one utterance and blocks until the relay produces the
// reply audio or fails.
func (s *Server) handleTalk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	var req talkRequest
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Details: "request body must be a JSON object",
		})
		return
	}
	if req.Audio == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Details: "no audio data provided",
		})
		return
	}

	s.metrics.Utterances.Add(ctx, 1)
	log.Info("utterance received", "audio_b64_len", len(req.Audio), "sample_rate", req.SampleRate)

	reply, err := s.relay.Exchange(ctx, req.Audio)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   relay.Classify(err),
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, talkResponse{Audio: reply})
}

// handleHealthz is a liveness probe. A running process that can serve HTTP
// is considered alive.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz evaluates the registered readiness checks in order and
// returns 503 when any fails.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	status := http.StatusOK
	overall := "ok"

	for _, c := range s.checks {
		if err := c.check(r.Context()); err != nil {
			checks[c.name] = "fail: " + err.Error()
			status = http.StatusServiceUnavailable
			overall = "fail"
		} else {
			checks[c.name] = "ok"
		}
	}

	writeJSON(w, status, struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}{Status: overall, Checks: checks})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

var _ Relay = (*relay.Bridge)(nil)
