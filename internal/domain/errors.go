package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// ID validation errors
	ErrEmptyID   = errors.New("ID cannot be empty")
	ErrInvalidID = errors.New("invalid ID format")

	// Resource errors
	ErrNotFound = errors.New("resource not found")

	// Admission errors
	ErrAuthRequired = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUserNotFound = errors.New("no user record for authenticated identity")
	ErrForbidden    = errors.New("permission denied")

	// Rate limiting and resource ceilings
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrConnectionLimit = errors.New("connection limit reached")

	// Event validation errors
	ErrValidationFailed = errors.New("event payload failed validation")
	ErrPayloadTooLarge  = errors.New("event payload exceeds size limit")

	// Operational errors
	ErrBackplaneUnavailable = errors.New("broadcast backplane unavailable")
	ErrPersistenceFailure   = errors.New("persistence collaborator failure")
	ErrSlowConsumer         = errors.New("client not consuming events fast enough")
	ErrUnavailable          = errors.New("service temporarily unavailable")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConnectionLimit) ||
		errors.Is(err, ErrBackplaneUnavailable)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrEmptyID,
	ErrInvalidID,
	ErrAuthRequired,
	ErrInvalidToken,
	ErrUserNotFound,
	ErrForbidden,
	ErrValidationFailed,
	ErrPayloadTooLarge,
	ErrNotFound,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAdmissionRefusal returns true if the error is one of the terminal
// admission outcomes: the connection attempt is refused, never queued.
func IsAdmissionRefusal(err error) bool {
	return errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConnectionLimit)
}
