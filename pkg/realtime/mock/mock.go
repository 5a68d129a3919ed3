// Package mock provides test doubles for the realtime package interfaces.
//
// Use Dialer to verify how sessions are opened and to inject a scripted Conn.
// Use Conn to feed ServerEvents to the code under test and to inspect the
// client events it sent.
//
// Example:
//
//	conn := mock.NewConn()
//	dialer := &mock.Dialer{Conn: conn}
//	conn.Emit(realtime.ServerEvent{Type: realtime.EventSessionCreated})
package mock

import (
	"context"
	"sync"

	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/realtime"
)

// Dialer is a mock implementation of realtime.Dialer.
type Dialer struct {
	mu sync.Mutex

	// Conn is returned by Dial. If nil, Dial returns a new default Conn.
	Conn realtime.Conn

	// DialErr, if non-nil, is returned as the error from Dial.
	DialErr error

	// DialCalls is the number of times Dial was called.
	DialCalls int
}

// Dial records the call and returns Conn, DialErr.
func (d *Dialer) Dial(_ context.Context) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialCalls++
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if d.Conn != nil {
		return d.Conn, nil
	}
	return NewConn(), nil
}

// Ensure Dialer implements realtime.Dialer at compile time.
var _ realtime.Dialer = (*Dialer)(nil)

// CloseCall records a single invocation of Conn.Close.
type CloseCall struct {
	Status realtime.CloseStatus
	Reason string
}

// Conn is a scripted mock implementation of realtime.Conn. Feed inbound
// events with Emit and finish the stream with CloseEvents.
type Conn struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// ErrVal is returned by Err.
	ErrVal error

	// Sent records every event passed to Send, in order.
	Sent []any

	// CloseCalls records every call to Close, in order.
	CloseCalls []CloseCall

	events     chan realtime.ServerEvent
	eventsOnce sync.Once
}

// NewConn creates a Conn with a buffered event stream.
func NewConn() *Conn {
	return &Conn{events: make(chan realtime.ServerEvent, 64)}
}

// Emit queues one inbound event for the code under test.
func (c *Conn) Emit(evt realtime.ServerEvent) {
	c.events <- evt
}

// CloseEvents closes the inbound stream, simulating a dropped socket.
// Idempotent.
func (c *Conn) CloseEvents() {
	c.eventsOnce.Do(func() { close(c.events) })
}

// Events implements realtime.Conn.
func (c *Conn) Events() <-chan realtime.ServerEvent { return c.events }

// Send records the event and returns SendErr.
func (c *Conn) Send(_ context.Context, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, event)
	return nil
}

// Err returns ErrVal.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ErrVal
}

// Close records the call. Always returns nil.
func (c *Conn) Close(status realtime.CloseStatus, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls = append(c.CloseCalls, CloseCall{Status: status, Reason: reason})
	return nil
}

// SentEvents returns a copy of the recorded Send arguments. Thread-safe.
func (c *Conn) SentEvents() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.Sent))
	copy(out, c.Sent)
	return out
}

// Ensure Conn implements realtime.Conn at compile time.
var _ realtime.Conn = (*Conn)(nil)
