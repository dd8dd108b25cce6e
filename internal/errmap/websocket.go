// Package errmap translates domain errors into transport-level codes.
package errmap

import (
	"errors"

	"github.com/attitudes-vip/event-gateway/internal/domain"
)

// WebSocket close codes per RFC 6455.
// Standard codes: https://datatracker.ietf.org/doc/html/rfc6455#section-7.4
// Application-specific codes use the 4000-4999 range.
const (
	// Standard codes (RFC 6455)
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseServiceRestart  = 1012
	CloseTryAgainLater   = 1013

	// Application-specific codes (4000-4999)
	CloseInvalidEvent     = 4000
	CloseUnauthorized     = 4001
	CloseForbidden        = 4003
	CloseUserNotFound     = 4004
	ClosePayloadTooLarge  = 4013
	CloseRateLimited      = 4029
	CloseHeartbeatTimeout = 4040
)

// WebSocketClose represents a close code and reason for WebSocket termination.
type WebSocketClose struct {
	Code   int
	Reason string
}

// ToWebSocketClose converts a domain error to a WebSocket close code and reason.
func ToWebSocketClose(err error) WebSocketClose {
	if err == nil {
		return WebSocketClose{Code: CloseNormalClosure, Reason: "normal_closure"}
	}

	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return WebSocketClose{Code: CloseUnauthorized, Reason: "auth_required"}

	case errors.Is(err, domain.ErrInvalidToken):
		return WebSocketClose{Code: CloseUnauthorized, Reason: "invalid_token"}

	case errors.Is(err, domain.ErrUserNotFound):
		return WebSocketClose{Code: CloseUserNotFound, Reason: "user_not_found"}

	case errors.Is(err, domain.ErrForbidden):
		return WebSocketClose{Code: CloseForbidden, Reason: "forbidden"}

	case errors.Is(err, domain.ErrRateLimited):
		return WebSocketClose{Code: CloseRateLimited, Reason: "rate_limit_exceeded"}

	case errors.Is(err, domain.ErrConnectionLimit):
		return WebSocketClose{Code: CloseRateLimited, Reason: "connection_limit"}

	case errors.Is(err, domain.ErrSlowConsumer):
		return WebSocketClose{Code: CloseRateLimited, Reason: "slow_consumer"}

	case errors.Is(err, domain.ErrPayloadTooLarge):
		return WebSocketClose{Code: ClosePayloadTooLarge, Reason: "payload_too_large"}

	case errors.Is(err, domain.ErrValidationFailed):
		return WebSocketClose{Code: CloseInvalidEvent, Reason: "validation_failed"}

	case errors.Is(err, domain.ErrEmptyID), errors.Is(err, domain.ErrInvalidID):
		return WebSocketClose{Code: CloseInvalidEvent, Reason: "invalid_id"}

	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrBackplaneUnavailable):
		return WebSocketClose{Code: CloseTryAgainLater, Reason: "service_unavailable"}

	default:
		return WebSocketClose{Code: CloseInternalError, Reason: "internal_error"}
	}
}

// ErrorCode returns the machine-readable error code sent in error frames
// for recoverable per-event failures (the connection stays open).
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "RATE_LIMIT_EXCEEDED"
	case errors.Is(err, domain.ErrPayloadTooLarge), errors.Is(err, domain.ErrValidationFailed):
		return "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrAuthRequired):
		return "AUTH_REQUIRED"
	case errors.Is(err, domain.ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, domain.ErrUserNotFound):
		return "USER_NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// Common close reasons for special cases not directly mapped to domain errors.
var (
	CloseHandshakeTimedOut = WebSocketClose{Code: CloseUnauthorized, Reason: "handshake_timeout"}
	CloseServerShutdown    = WebSocketClose{Code: CloseGoingAway, Reason: "server_shutdown"}
	CloseProtocolViolation = WebSocketClose{Code: CloseProtocolError, Reason: "protocol_error"}
	CloseHeartbeatSilence  = WebSocketClose{Code: CloseHeartbeatTimeout, Reason: "heartbeat_timeout"}
)
