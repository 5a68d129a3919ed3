// Package relay bridges one captured utterance to an OpenAI-compatible
// realtime websocket session and collects the spoken reply.
//
// Each [Bridge.Exchange] call owns exactly one upstream session: it dials,
// configures the session once, submits the utterance, gathers the audio
// fragments of the response, and closes the connection. A single watchdog
// window is armed before the dial and is never reset; it bounds the connect
// and the response together, so a wedged handshake and a silent session both
// fail with [ErrTimeout].
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IhateCreatingUserNames2/TEddyBear/internal/observe"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/realtime"
)

// Sentinel errors classifying exchange failures. Use [errors.Is] to match.
var (
	// ErrConnect indicates the upstream websocket dial failed.
	ErrConnect = errors.New("upstream connect failed")

	// ErrTimeout indicates the watchdog fired before the response completed.
	ErrTimeout = errors.New("upstream response timed out")

	// ErrUpstream indicates the upstream reported an error or the connection
	// dropped mid-exchange.
	ErrUpstream = errors.New("upstream error")
)

// defaultWatchdog bounds a whole exchange, connect included.
const defaultWatchdog = 15 * time.Second

// state tracks where an exchange is in its lifecycle.
type state int

const (
	stateConnecting state = iota
	stateConfiguring
	stateAwaitingResponse
	stateDone
	stateRejected
)

// String returns the human-readable name of the state.
func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConfiguring:
		return "session_configuring"
	case stateAwaitingResponse:
		return "awaiting_response"
	case stateDone:
		return "done"
	case stateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Config holds the session parameters applied to every exchange.
type Config struct {
	// Voice is the upstream voice name, e.g. "alloy".
	Voice string

	// Instructions is the system prompt establishing the bear's persona.
	Instructions string

	// Modalities requested from the upstream. Default: audio and text.
	Modalities []string

	// Watchdog bounds the time from session open to response completion.
	// Default: 15s.
	Watchdog time.Duration
}

// Option is a functional option for configuring a [Bridge].
type Option func(*Bridge)

// WithMetrics overrides the [observe.Metrics] instance used by the bridge.
// Mainly useful in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// Bridge relays utterances to a realtime API. Safe for concurrent use; each
// Exchange call is fully independent.
type Bridge struct {
	dialer  realtime.Dialer
	cfg     Config
	metrics *observe.Metrics
}

// New creates a [Bridge] that dials upstream sessions through dialer.
func New(dialer realtime.Dialer, cfg Config, opts ...Option) *Bridge {
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = defaultWatchdog
	}
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []string{"audio", "text"}
	}
	b := &Bridge{dialer: dialer, cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// exchange carries the mutable state of one Exchange call.
type exchange struct {
	audio      string
	state      state
	configured bool
	fragments  []string
}

// Exchange relays one base64 PCM16 utterance upstream and returns the
// response audio as a single base64 string, fragments concatenated in
// arrival order. The returned error wraps [ErrConnect], [ErrTimeout], or
// [ErrUpstream] depending on the failure class.
func (b *Bridge) Exchange(ctx context.Context, audioB64 string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "relay.exchange")
	defer span.End()

	log := observe.Logger(ctx)
	b.metrics.ActiveRelays.Add(ctx, 1)
	defer b.metrics.ActiveRelays.Add(ctx, -1)
	start := time.Now()

	ex := &exchange{audio: audioB64, state: stateConnecting}

	// Armed once for the whole exchange, never reset. The dial shares the
	// window via the derived deadline so a stuck connect cannot pin the
	// exchange.
	watchdog := time.NewTimer(b.cfg.Watchdog)
	defer watchdog.Stop()
	dialCtx, cancelDial := context.WithTimeout(ctx, b.cfg.Watchdog)
	defer cancelDial()

	dialStart := time.Now()
	conn, err := b.dialer.Dial(dialCtx)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("relay: %w: connect did not complete within %s", ErrTimeout, b.cfg.Watchdog)
		} else {
			err = fmt.Errorf("relay: %w: %v", ErrConnect, err)
		}
		b.settle(ctx, ex, start, err)
		return "", err
	}
	b.metrics.UpstreamConnectDuration.Record(ctx, time.Since(dialStart).Seconds())
	log.Debug("upstream session opened", "state", ex.state, "watchdog", b.cfg.Watchdog)

	reply, err := b.run(ctx, conn, ex, watchdog.C)
	if err != nil {
		_ = conn.Close(realtime.CloseAbnormal, "exchange failed")
		b.settle(ctx, ex, start, err)
		return "", err
	}
	_ = conn.Close(realtime.CloseNormal, "response complete")
	b.settle(ctx, ex, start, nil)
	return reply, nil
}

// settle records the final outcome of an exchange exactly once.
func (b *Bridge) settle(ctx context.Context, ex *exchange, start time.Time, err error) {
	if ex.state == stateDone || ex.state == stateRejected {
		return
	}
	b.metrics.RelayDuration.Record(ctx, time.Since(start).Seconds())
	if err == nil {
		ex.state = stateDone
		b.metrics.RecordExchange(ctx, "ok")
		return
	}
	ex.state = stateRejected
	class := Classify(err)
	b.metrics.RecordExchange(ctx, class)
	b.metrics.RecordRelayError(ctx, class)
	observe.Logger(ctx).Error("relay exchange failed", "class", class, "err", err)
}

// run drives the event loop until the response completes, the watchdog
// fires, or the context is cancelled.
func (b *Bridge) run(ctx context.Context, conn realtime.Conn, ex *exchange, watchdog <-chan time.Time) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-watchdog:
			return "", fmt.Errorf("relay: %w after %s", ErrTimeout, b.cfg.Watchdog)

		case evt, ok := <-conn.Events():
			if !ok {
				if err := conn.Err(); err != nil {
					return "", fmt.Errorf("relay: %w: %v", ErrUpstream, err)
				}
				return "", fmt.Errorf("relay: %w: connection closed before response completed", ErrUpstream)
			}
			b.metrics.RecordUpstreamEvent(ctx, evt.Type)
			done, err := b.handleEvent(ctx, conn, ex, evt)
			if err != nil {
				return "", err
			}
			if done {
				return strings.Join(ex.fragments, ""), nil
			}
		}
	}
}

// handleEvent applies one server event to the exchange state machine.
// Returns done=true when the response has fully arrived.
func (b *Bridge) handleEvent(ctx context.Context, conn realtime.Conn, ex *exchange, evt realtime.ServerEvent) (done bool, err error) {
	log := observe.Logger(ctx)

	switch evt.Type {
	case realtime.EventSessionCreated:
		if ex.configured {
			// Duplicate session.created must not re-send the configuration.
			log.Debug("ignoring duplicate session.created")
			return false, nil
		}
		ex.configured = true
		ex.state = stateConfiguring
		if err := b.configure(ctx, conn, ex); err != nil {
			return false, err
		}
		ex.state = stateAwaitingResponse
		log.Debug("session configured", "state", ex.state)

	case realtime.EventResponseAudioDelta:
		ex.fragments = append(ex.fragments, evt.Delta)

	case realtime.EventResponseTextDelta:
		// Transcript deltas are informational only.
		log.Debug("response text delta", "len", len(evt.Delta))

	case realtime.EventResponseDone:
		log.Debug("response complete", "fragments", len(ex.fragments))
		return true, nil

	case realtime.EventError, realtime.EventSessionError:
		return false, fmt.Errorf("relay: %w: %s", ErrUpstream, evt.ErrorMessage())

	default:
		log.Debug("ignoring upstream event", "type", evt.Type)
	}
	return false, nil
}

// configure sends the session parameters, the user utterance, and the
// response request. Called exactly once per exchange.
func (b *Bridge) configure(ctx context.Context, conn realtime.Conn, ex *exchange) error {
	update := realtime.NewSessionUpdate(b.cfg.Voice, b.cfg.Instructions)
	if err := conn.Send(ctx, update); err != nil {
		return fmt.Errorf("relay: %w: send session.update: %v", ErrUpstream, err)
	}
	if err := conn.Send(ctx, realtime.NewUserAudioItem(ex.audio)); err != nil {
		return fmt.Errorf("relay: %w: send conversation item: %v", ErrUpstream, err)
	}
	if err := conn.Send(ctx, realtime.NewResponseCreate(b.cfg.Modalities...)); err != nil {
		return fmt.Errorf("relay: %w: send response.create: %v", ErrUpstream, err)
	}
	return nil
}

// Classify maps an exchange error to its failure class, used both as a
// metric attribute and as the error field of HTTP responses.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrConnect):
		return "connect_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "internal"
	}
}
