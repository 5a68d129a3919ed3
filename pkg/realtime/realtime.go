// Package realtime defines the event vocabulary and connection interfaces for
// the upstream realtime speech-to-speech protocol.
//
// The protocol is JSON over a bidirectional socket. Outbound client events are
// typed structs ([SessionUpdate], [ConversationItemCreate], [ResponseCreate]),
// each stamped with a unique event ID. Inbound traffic is decoded into
// [ServerEvent]; event types the bridge does not consume are passed through
// untouched so unknown types can be skipped forward-compatibly.
//
// The [Conn] and [Dialer] interfaces exist so that the relay bridge can be
// tested against a scripted connection (see the mock sub-package) without a
// live upstream.
package realtime

import (
	"context"

	"github.com/google/uuid"
)

// Server event types consumed by the relay bridge. Anything else is skipped.
const (
	// EventSessionCreated signals the upstream session is ready to configure.
	EventSessionCreated = "session.created"

	// EventResponseAudioDelta carries one base64 audio fragment.
	EventResponseAudioDelta = "response.audio.delta"

	// EventResponseTextDelta carries a text fragment; ignored by the bridge.
	EventResponseTextDelta = "response.text.delta"

	// EventResponseDone is the terminal event: no further fragments follow.
	EventResponseDone = "response.done"

	// EventError and EventSessionError are terminal failure events.
	EventError        = "error"
	EventSessionError = "session.error"
)

// ErrorDetail is the nested error object of an upstream error event:
// {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ServerEvent is one inbound protocol event. Only the fields relevant to the
// consumed event types are decoded; the rest of the payload is dropped.
type ServerEvent struct {
	Type string `json:"type"`

	// Delta is the base64 fragment of response.audio.delta and
	// response.text.delta events.
	Delta string `json:"delta,omitempty"`

	// Error carries the detail object of an error event.
	Error *ErrorDetail `json:"error,omitempty"`

	// Message carries the top-level reason of a session.error event.
	Message string `json:"message,omitempty"`
}

// ErrorMessage extracts the human-readable failure reason from a terminal
// error event, falling back to "unknown upstream error".
func (e ServerEvent) ErrorMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return "unknown upstream error"
}

// ── Client events ─────────────────────────────────────────────────────────────

// SessionParams configures the upstream session's voice and behaviour.
type SessionParams struct {
	Voice             string `json:"voice,omitempty"`
	Instructions      string `json:"instructions,omitempty"`
	InputAudioFormat  string `json:"input_audio_format"`
	OutputAudioFormat string `json:"output_audio_format"`
}

// SessionUpdate is the session.update client event.
type SessionUpdate struct {
	EventID string        `json:"event_id,omitempty"`
	Type    string        `json:"type"`
	Session SessionParams `json:"session"`
}

// NewSessionUpdate builds a session.update event selecting the given voice
// identity and behavioural instructions, with PCM16 audio in both directions.
func NewSessionUpdate(voice, instructions string) SessionUpdate {
	return SessionUpdate{
		EventID: newEventID(),
		Type:    "session.update",
		Session: SessionParams{
			Voice:             voice,
			Instructions:      instructions,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	}
}

// ContentPart is one content element of a conversation item.
type ContentPart struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
	Text  string `json:"text,omitempty"`
}

// ConversationItem is the item payload of conversation.item.create.
type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ConversationItemCreate is the conversation.item.create client event.
type ConversationItemCreate struct {
	EventID string           `json:"event_id,omitempty"`
	Type    string           `json:"type"`
	Item    ConversationItem `json:"item"`
}

// NewUserAudioItem builds a conversation.item.create event carrying one user
// message whose content is the already base64-encoded input utterance.
func NewUserAudioItem(audioB64 string) ConversationItemCreate {
	return ConversationItemCreate{
		EventID: newEventID(),
		Type:    "conversation.item.create",
		Item: ConversationItem{
			Type: "message",
			Role: "user",
			Content: []ContentPart{
				{Type: "input_audio", Audio: audioB64},
			},
		},
	}
}

// ResponseParams selects the modalities of the requested response.
type ResponseParams struct {
	Modalities []string `json:"modalities,omitempty"`
}

// ResponseCreate is the response.create client event.
type ResponseCreate struct {
	EventID  string         `json:"event_id,omitempty"`
	Type     string         `json:"type"`
	Response ResponseParams `json:"response"`
}

// NewResponseCreate builds a response.create event requesting the given
// output modalities.
func NewResponseCreate(modalities ...string) ResponseCreate {
	return ResponseCreate{
		EventID:  newEventID(),
		Type:     "response.create",
		Response: ResponseParams{Modalities: modalities},
	}
}

// newEventID returns a short unique client event identifier.
func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// ── Connection interfaces ─────────────────────────────────────────────────────

// CloseStatus selects the close code used when releasing a connection.
type CloseStatus int

const (
	// CloseNormal signals a normal closure after a completed exchange.
	CloseNormal CloseStatus = iota

	// CloseAbnormal signals the exchange failed or timed out.
	CloseAbnormal
)

// Conn is one live bidirectional session with the upstream service. A Conn is
// bound to exactly one exchange and is never reused.
type Conn interface {
	// Events returns the inbound event stream. The channel is closed when the
	// socket fails or is closed; Err reports the cause.
	Events() <-chan ServerEvent

	// Send marshals event and writes it as one text message. event must be
	// one of the typed client events of this package.
	Send(ctx context.Context, event any) error

	// Err returns the first error that terminated the inbound stream, or nil.
	Err() error

	// Close releases the socket with the given status. Safe to call more
	// than once.
	Close(status CloseStatus, reason string) error
}

// Dialer opens new upstream sessions.
type Dialer interface {
	// Dial establishes one new session. The returned Conn is ready to
	// receive events immediately.
	Dial(ctx context.Context) (Conn, error)
}
