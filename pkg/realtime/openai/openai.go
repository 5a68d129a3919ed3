// Package openai implements the realtime.Dialer interface for OpenAI's
// Realtime API.
//
// It establishes a bidirectional WebSocket connection to the Realtime endpoint
// and exchanges JSON events according to the Realtime API protocol. The bearer
// credential and the protocol-version marker are supplied as connection
// headers; the model is selected via the URL query string.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/realtime"
)

// Compile-time assertions that the exported types satisfy the realtime
// interfaces.
var _ realtime.Dialer = (*Dialer)(nil)
var _ realtime.Conn = (*conn)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// eventBuf is the buffer depth of the inbound event channel.
	eventBuf = 64
)

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(d *Dialer) { d.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(d *Dialer) { d.baseURL = url }
}

// Dialer opens OpenAI Realtime sessions.
type Dialer struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Dialer with the given API key and options.
func New(apiKey string, opts ...Option) *Dialer {
	d := &Dialer{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial implements [realtime.Dialer]. The returned Conn starts its background
// read loop immediately.
func (d *Dialer) Dial(ctx context.Context) (realtime.Conn, error) {
	wsURL := fmt.Sprintf("%s?model=%s", d.baseURL, d.model)

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + d.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:     ws,
		events: make(chan realtime.ServerEvent, eventBuf),
		ctx:    connCtx,
		cancel: cancel,
	}
	go c.readLoop()

	return c, nil
}

// conn is one live WebSocket session.
type conn struct {
	ws     *websocket.Conn
	events chan realtime.ServerEvent

	mu     sync.Mutex
	errVal error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// readLoop reads inbound frames, decodes them, and forwards them on the event
// channel. It owns the channel and closes it on exit. Frames that fail to
// decode are skipped.
func (c *conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.setErr(err)
			return
		}

		var evt realtime.ServerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		select {
		case c.events <- evt:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

// Events implements [realtime.Conn].
func (c *conn) Events() <-chan realtime.ServerEvent { return c.events }

// Err implements [realtime.Conn].
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Send implements [realtime.Conn]. It marshals event and writes it as one
// text message.
func (c *conn) Send(ctx context.Context, event any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("openai: connection closed")
	}
	c.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("openai: marshal event: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("openai: write event: %w", err)
	}
	return nil
}

// Close implements [realtime.Conn]. Idempotent.
func (c *conn) Close(status realtime.CloseStatus, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	code := websocket.StatusNormalClosure
	if status == realtime.CloseAbnormal {
		code = websocket.StatusInternalError
	}
	return c.ws.Close(code, reason)
}
