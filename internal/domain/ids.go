// Package domain contains pure business logic and types.
// No external dependencies allowed - this is the innermost ring of the
// architecture; adapters and the gateway depend on it, never the reverse.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// WeddingID is a value object identifying a tenant. All events and room
// membership are scoped to exactly one wedding.
type WeddingID struct {
	value string
}

// NewWeddingID creates a WeddingID from a raw string, validating it is a valid UUID.
func NewWeddingID(raw string) (WeddingID, error) {
	if raw == "" {
		return WeddingID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return WeddingID{}, fmt.Errorf("invalid wedding ID %q: %w", raw, ErrInvalidID)
	}
	return WeddingID{value: raw}, nil
}

// MustWeddingID creates a WeddingID, panicking on invalid input. Use only in tests.
func MustWeddingID(raw string) WeddingID {
	id, err := NewWeddingID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateWeddingID creates a new random WeddingID.
func GenerateWeddingID() WeddingID {
	return WeddingID{value: uuid.NewString()}
}

func (id WeddingID) String() string { return id.value }
func (id WeddingID) IsZero() bool   { return id.value == "" }

// UserID is a value object representing a unique user identifier.
type UserID struct {
	value string
}

// NewUserID creates a UserID from a raw string, validating it is a valid UUID.
func NewUserID(raw string) (UserID, error) {
	if raw == "" {
		return UserID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return UserID{}, fmt.Errorf("invalid user ID %q: %w", raw, ErrInvalidID)
	}
	return UserID{value: raw}, nil
}

// MustUserID creates a UserID, panicking on invalid input. Use only in tests.
func MustUserID(raw string) UserID {
	id, err := NewUserID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateUserID creates a new random UserID.
func GenerateUserID() UserID {
	return UserID{value: uuid.NewString()}
}

func (id UserID) String() string { return id.value }
func (id UserID) IsZero() bool   { return id.value == "" }

// ConnectionID is a value object identifying a single transport connection.
// A user may hold several simultaneously (multiple tabs or devices).
type ConnectionID struct {
	value string
}

// NewConnectionID creates a ConnectionID from a raw string, validating it is a valid UUID.
func NewConnectionID(raw string) (ConnectionID, error) {
	if raw == "" {
		return ConnectionID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return ConnectionID{}, fmt.Errorf("invalid connection ID %q: %w", raw, ErrInvalidID)
	}
	return ConnectionID{value: raw}, nil
}

// MustConnectionID creates a ConnectionID, panicking on invalid input. Use only in tests.
func MustConnectionID(raw string) ConnectionID {
	id, err := NewConnectionID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateConnectionID creates a new random ConnectionID.
func GenerateConnectionID() ConnectionID {
	return ConnectionID{value: uuid.NewString()}
}

func (id ConnectionID) String() string { return id.value }
func (id ConnectionID) IsZero() bool   { return id.value == "" }
