package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/IhateCreatingUserNames2/TEddyBear/internal/observe"
	"github.com/IhateCreatingUserNames2/TEddyBear/internal/relay"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/realtime"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/realtime/mock"
)

// stubRelay records the audio it was asked to exchange and returns canned
// results.
type stubRelay struct {
	reply    string
	err      error
	gotAudio string
	calls    int
}

func (s *stubRelay) Exchange(_ context.Context, audioB64 string) (string, error) {
	s.calls++
	s.gotAudio = audioB64
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, r Relay, opts ...Option) http.Handler {
	t.Helper()
	opts = append([]Option{WithMetrics(newTestMetrics(t))}, opts...)
	return New(r, opts...).Handler()
}

func postTalk(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/talk", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestTalk_Success(t *testing.T) {
	rl := &stubRelay{reply: "UkVQTFk="}
	h := newTestServer(t, rl)

	rec := postTalk(t, h, `{"audio":"QUJD","sampleRate":16000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[talkResponse](t, rec)
	if resp.Audio != "UkVQTFk=" {
		t.Errorf("audio = %q, want relay reply", resp.Audio)
	}
	if rl.gotAudio != "QUJD" {
		t.Errorf("relay received %q, want request audio", rl.gotAudio)
	}
}

func TestTalk_MissingAudio(t *testing.T) {
	rl := &stubRelay{reply: "x"}
	h := newTestServer(t, rl)

	rec := postTalk(t, h, `{"sampleRate":16000}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "invalid_request" {
		t.Errorf("error = %q, want invalid_request", resp.Error)
	}
	if rl.calls != 0 {
		t.Errorf("relay called %d times, want 0", rl.calls)
	}
}

func TestTalk_MalformedJSON(t *testing.T) {
	h := newTestServer(t, &stubRelay{})

	rec := postTalk(t, h, `{"audio": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTalk_RelayFailureClassified(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantError string
	}{
		{"timeout", fmt.Errorf("relay: %w after 15s", relay.ErrTimeout), "timeout"},
		{"connect", fmt.Errorf("relay: %w: dial tcp: refused", relay.ErrConnect), "connect_error"},
		{"upstream", fmt.Errorf("relay: %w: rate_limited", relay.ErrUpstream), "upstream_error"},
		{"other", errors.New("boom"), "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, &stubRelay{err: tc.err})

			rec := postTalk(t, h, `{"audio":"QUJD"}`)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			resp := decodeBody[errorResponse](t, rec)
			if resp.Error != tc.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tc.wantError)
			}
			if resp.Details != tc.err.Error() {
				t.Errorf("details = %q, want full error text", resp.Details)
			}
		})
	}
}

func TestTalk_UpstreamMessageReachesClient(t *testing.T) {
	err := fmt.Errorf("relay: %w: rate_limited", relay.ErrUpstream)
	h := newTestServer(t, &stubRelay{err: err})

	rec := postTalk(t, h, `{"audio":"QUJD"}`)
	if !strings.Contains(rec.Body.String(), "rate_limited") {
		t.Errorf("body %q does not carry the upstream message", rec.Body.String())
	}
}

func TestTalk_GETNotAllowed(t *testing.T) {
	h := newTestServer(t, &stubRelay{})

	req := httptest.NewRequest("GET", "/api/talk", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, &stubRelay{})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %q, want ok status", rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	failing := errors.New("api key missing")
	tests := []struct {
		name       string
		checkErr   error
		wantStatus int
	}{
		{"passing", nil, http.StatusOK},
		{"failing", failing, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, &stubRelay{},
				WithReadyCheck("upstream", func(context.Context) error { return tc.checkErr }))

			req := httptest.NewRequest("GET", "/readyz", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.checkErr != nil && !strings.Contains(rec.Body.String(), "api key missing") {
				t.Errorf("body = %q, want check failure text", rec.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &stubRelay{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestTalk_EndToEndThroughBridge drives the whole server → bridge → mock
// upstream path over a real HTTP round trip.
func TestTalk_EndToEndThroughBridge(t *testing.T) {
	conn := mock.NewConn()
	conn.Emit(realtime.ServerEvent{Type: realtime.EventSessionCreated})
	conn.Emit(realtime.ServerEvent{Type: realtime.EventResponseAudioDelta, Delta: "AAA"})
	conn.Emit(realtime.ServerEvent{Type: realtime.EventResponseAudioDelta, Delta: "BBB"})
	conn.Emit(realtime.ServerEvent{Type: realtime.EventResponseDone})

	m := newTestMetrics(t)
	bridge := relay.New(&mock.Dialer{Conn: conn}, relay.Config{Voice: "alloy"}, relay.WithMetrics(m))
	ts := httptest.NewServer(New(bridge, WithMetrics(m)).Handler())
	defer ts.Close()

	body := bytes.NewBufferString(`{"audio":"aW5wdXQ=","sampleRate":16000}`)
	resp, err := http.Post(ts.URL+"/api/talk", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var tr talkResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Audio != "AAABBB" {
		t.Errorf("audio = %q, want AAABBB", tr.Audio)
	}
}
