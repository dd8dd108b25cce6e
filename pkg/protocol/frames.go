// Package protocol defines the WebSocket wire types exchanged between
// clients and the event gateway.
package protocol

import "encoding/json"

// FrameType identifies the type of WebSocket frame.
type FrameType string

const (
	// Handshake
	FrameTypeHello    FrameType = "hello"
	FrameTypeHelloAck FrameType = "hello_ack"

	// Heartbeat
	FrameTypePing FrameType = "ping"
	FrameTypePong FrameType = "pong"

	// Events
	FrameTypeEvent      FrameType = "event"
	FrameTypeEventBatch FrameType = "event_batch"

	// Presence
	FrameTypePresence FrameType = "presence"

	// Lifecycle and errors
	FrameTypeConnectionClosing FrameType = "connection_closing"
	FrameTypeError             FrameType = "error"
)

// Frame is the base structure for all WebSocket frames.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello is the first frame a client sends after the WebSocket upgrade.
// Exactly one of Credential or ReconnectToken should be set; a reconnect
// token that fails validation falls back to the credential path.
type Hello struct {
	Credential     string `json:"credential,omitempty"`
	ReconnectToken string `json:"reconnect_token,omitempty"`
}

// Member summarizes an online room member.
type Member struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// HelloAck is sent by the server after successful admission. Roster is
// the current online-member list of the joined wedding room.
type HelloAck struct {
	ConnectionID        string   `json:"connection_id"`
	HeartbeatIntervalMs int      `json:"heartbeat_interval_ms"`
	ReconnectToken      string   `json:"reconnect_token"`
	Roster              []Member `json:"roster"`
}

// EventIn is the inbound event payload: {type, payload}.
type EventIn struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventOut is a single outbound event, enriched with sender identity
// and a server-side timestamp.
type EventOut struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name"`
	SenderRole string          `json:"sender_role"`
	Timestamp  int64           `json:"timestamp"`
}

// EventBatch carries a flushed batch of normal-priority events.
type EventBatch struct {
	Events []EventOut `json:"events"`
}

// Presence announces a user coming online or going offline in the room.
type Presence struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Online      bool   `json:"online"`
}

// Ping is sent by the server to check client liveness.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong is sent by the client in response to Ping.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// ConnectionClosing is sent by the server before closing the connection.
type ConnectionClosing struct {
	Reason string `json:"reason"`
	Code   int    `json:"code"`
}

// Error is sent by the server to report an error.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// NewFrame creates a Frame with the given type and payload.
func NewFrame(frameType FrameType, payload interface{}) (*Frame, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &Frame{
		Type:    frameType,
		Payload: payloadBytes,
	}, nil
}

// ParsePayload unmarshals the frame payload into the given struct.
func (f *Frame) ParsePayload(v interface{}) error {
	if f.Payload == nil {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}
