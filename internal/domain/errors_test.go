package domain_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/attitudes-vip/event-gateway/internal/domain"
)

func TestIsRetryable(t *testing.T) {
	t.Run("transient conditions are retryable", func(t *testing.T) {
		assert.True(t, domain.IsRetryable(domain.ErrUnavailable))
		assert.True(t, domain.IsRetryable(domain.ErrRateLimited))
		assert.True(t, domain.IsRetryable(domain.ErrConnectionLimit))
		assert.True(t, domain.IsRetryable(domain.ErrBackplaneUnavailable))
	})

	t.Run("wrapped errors match", func(t *testing.T) {
		err := fmt.Errorf("publish failed: %w", domain.ErrBackplaneUnavailable)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("client errors are not retryable", func(t *testing.T) {
		assert.False(t, domain.IsRetryable(domain.ErrInvalidToken))
		assert.False(t, domain.IsRetryable(domain.ErrValidationFailed))
		assert.False(t, domain.IsRetryable(nil))
	})
}

func TestIsClientError(t *testing.T) {
	t.Run("client-side issues", func(t *testing.T) {
		assert.True(t, domain.IsClientError(domain.ErrAuthRequired))
		assert.True(t, domain.IsClientError(domain.ErrInvalidToken))
		assert.True(t, domain.IsClientError(domain.ErrUserNotFound))
		assert.True(t, domain.IsClientError(domain.ErrPayloadTooLarge))
		assert.True(t, domain.IsClientError(fmt.Errorf("bad event: %w", domain.ErrValidationFailed)))
	})

	t.Run("server-side issues", func(t *testing.T) {
		assert.False(t, domain.IsClientError(domain.ErrPersistenceFailure))
		assert.False(t, domain.IsClientError(domain.ErrBackplaneUnavailable))
		assert.False(t, domain.IsClientError(nil))
	})
}

func TestIsAdmissionRefusal(t *testing.T) {
	t.Run("terminal admission outcomes", func(t *testing.T) {
		assert.True(t, domain.IsAdmissionRefusal(domain.ErrAuthRequired))
		assert.True(t, domain.IsAdmissionRefusal(domain.ErrInvalidToken))
		assert.True(t, domain.IsAdmissionRefusal(domain.ErrUserNotFound))
		assert.True(t, domain.IsAdmissionRefusal(domain.ErrRateLimited))
		assert.True(t, domain.IsAdmissionRefusal(domain.ErrConnectionLimit))
	})

	t.Run("non-admission errors", func(t *testing.T) {
		assert.False(t, domain.IsAdmissionRefusal(domain.ErrSlowConsumer))
		assert.False(t, domain.IsAdmissionRefusal(domain.ErrNotFound))
	})
}
