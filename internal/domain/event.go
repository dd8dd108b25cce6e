package domain

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Priority determines how an event moves through the gateway.
type Priority string

const (
	// PriorityNormal events are eligible for batching.
	PriorityNormal Priority = "normal"
	// PriorityUrgent events bypass the batching pipeline entirely.
	PriorityUrgent Priority = "urgent"
)

// EventType identifies the kind of event a client emits.
type EventType string

const (
	EventChatMessage  EventType = "chat_message"
	EventTyping       EventType = "typing"
	EventPresencePing EventType = "presence_ping"
	EventTaskUpdate   EventType = "task_update"
	EventMusicRequest EventType = "music_request"
	EventMicRequest   EventType = "mic_request"
	EventEmergency    EventType = "emergency"
)

// knownEventTypes maps each accepted event type to its priority.
var knownEventTypes = map[EventType]Priority{
	EventChatMessage:  PriorityNormal,
	EventTyping:       PriorityNormal,
	EventPresencePing: PriorityNormal,
	EventTaskUpdate:   PriorityNormal,
	EventMusicRequest: PriorityNormal,
	EventMicRequest:   PriorityNormal,
	EventEmergency:    PriorityUrgent,
}

// PriorityFor returns the delivery priority for an event type.
// Unknown types are treated as normal so a client cannot reach the
// urgent path by inventing a type name.
func PriorityFor(t EventType) Priority {
	if p, ok := knownEventTypes[t]; ok {
		return p
	}
	return PriorityNormal
}

// IsKnownEventType checks whether the gateway accepts events of type t.
func IsKnownEventType(t EventType) bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Event is a single client-emitted event scoped to a wedding.
// SenderName and SenderRole are enrichment fields stamped by the gateway
// before fan-out; clients never supply them.
type Event struct {
	Type               EventType       `json:"type"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	SenderConnectionID string          `json:"sender_connection_id"`
	SenderUserID       string          `json:"sender_user_id"`
	SenderName         string          `json:"sender_name"`
	SenderRole         string          `json:"sender_role"`
	WeddingID          string          `json:"wedding_id"`
	Timestamp          int64           `json:"timestamp"`
	Priority           Priority        `json:"priority"`
}

// Validate checks size and content limits. A failing event is dropped by
// the batching pipeline; it never stalls the rest of its batch.
func (e *Event) Validate() error {
	if !IsKnownEventType(e.Type) {
		return fmt.Errorf("event type %q: %w", e.Type, ErrValidationFailed)
	}
	if e.WeddingID == "" {
		return fmt.Errorf("event missing wedding ID: %w", ErrValidationFailed)
	}
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return fmt.Errorf("event payload is not valid JSON: %w", ErrValidationFailed)
	}
	if utf8.RuneCount(e.Payload) > MaxEventPayloadChars {
		return fmt.Errorf("payload of %d chars: %w", utf8.RuneCount(e.Payload), ErrPayloadTooLarge)
	}
	return nil
}
