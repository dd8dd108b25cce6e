package gateway_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attitudes-vip/event-gateway/internal/auth"
	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/domain/domaintest"
	"github.com/attitudes-vip/event-gateway/internal/gateway"
	"github.com/attitudes-vip/event-gateway/internal/store"
)

// fakeResolver serves canned user records and counts lookups.
type fakeResolver struct {
	mu      sync.Mutex
	records map[string]*store.UserRecord
	err     error
	calls   int
}

func (f *fakeResolver) GetByID(ctx context.Context, userID string) (*store.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[userID]
	if !ok {
		return nil, fmt.Errorf("user store: get by id: %w", domain.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeResolver) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type identityFixture struct {
	cache    *gateway.IdentityCache
	minter   *auth.Minter
	resolver *fakeResolver
	clock    *domaintest.FakeClock
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	clock := domaintest.NewFakeClock(time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC))
	secret := "test-signing-secret"

	minter := auth.NewMinter(auth.MinterConfig{
		Secret:   secret,
		TTL:      time.Hour,
		Issuer:   "attitudes.vip",
		Audience: "event-gateway",
		Clock:    clock,
	})
	validator := auth.NewValidator(auth.ValidatorConfig{
		Secret:   secret,
		Issuer:   "attitudes.vip",
		Audience: "event-gateway",
		Clock:    clock,
	})

	resolver := &fakeResolver{records: map[string]*store.UserRecord{
		"user_1": {UserID: "user_1", DisplayName: "Dana", Role: "guest", WeddingID: "wed_1"},
	}}

	cache := gateway.NewIdentityCache(validator, resolver, gateway.IdentityCacheConfig{
		CredentialTTL: 5 * time.Minute,
		UserRecordTTL: 15 * time.Minute,
		Clock:         clock,
	})

	return &identityFixture{cache: cache, minter: minter, resolver: resolver, clock: clock}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credential resolves a full identity", func(t *testing.T) {
		fx := newIdentityFixture(t)
		cred, err := fx.minter.MintCredential("user_1", "wed_1", domain.RoleGuest)
		require.NoError(t, err)

		ident, err := fx.cache.Authenticate(ctx, cred.Token)
		require.NoError(t, err)
		assert.Equal(t, "user_1", ident.UserID)
		assert.Equal(t, "Dana", ident.DisplayName)
		assert.Equal(t, "guest", ident.Role)
		assert.Equal(t, "wed_1", ident.WeddingID)
	})

	t.Run("missing credential is auth required", func(t *testing.T) {
		fx := newIdentityFixture(t)
		_, err := fx.cache.Authenticate(ctx, "")
		assert.ErrorIs(t, err, domain.ErrAuthRequired)
	})

	t.Run("garbage credential is invalid token", func(t *testing.T) {
		fx := newIdentityFixture(t)
		_, err := fx.cache.Authenticate(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("valid credential with no user record is user not found", func(t *testing.T) {
		fx := newIdentityFixture(t)
		cred, err := fx.minter.MintCredential("user_ghost", "wed_1", domain.RoleGuest)
		require.NoError(t, err)

		_, err = fx.cache.Authenticate(ctx, cred.Token)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("store outage is unavailable, not user not found", func(t *testing.T) {
		fx := newIdentityFixture(t)
		fx.resolver.err = fmt.Errorf("dynamodb timeout")
		cred, err := fx.minter.MintCredential("user_1", "wed_1", domain.RoleGuest)
		require.NoError(t, err)

		_, err = fx.cache.Authenticate(ctx, cred.Token)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
		assert.NotErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("role from the credential wins over the record", func(t *testing.T) {
		fx := newIdentityFixture(t)
		cred, err := fx.minter.MintCredential("user_1", "wed_1", domain.RoleStaff)
		require.NoError(t, err)

		ident, err := fx.cache.Authenticate(ctx, cred.Token)
		require.NoError(t, err)
		assert.Equal(t, "staff", ident.Role)
	})
}

func TestAuthenticateCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated credential skips the resolver", func(t *testing.T) {
		fx := newIdentityFixture(t)
		cred, err := fx.minter.MintCredential("user_1", "wed_1", domain.RoleGuest)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			_, err := fx.cache.Authenticate(ctx, cred.Token)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, fx.resolver.lookups())
		assert.Equal(t, 1, fx.cache.CachedCredentials())
	})

	t.Run("expired credential cache revalidates but reuses the record", func(t *testing.T) {
		fx := newIdentityFixture(t)
		cred, err := fx.minter.MintCredential("user_1", "wed_1", domain.RoleGuest)
		require.NoError(t, err)

		_, err = fx.cache.Authenticate(ctx, cred.Token)
		require.NoError(t, err)

		// Past the credential cache TTL, inside the record TTL.
		fx.clock.Advance(6 * time.Minute)
		_, err = fx.cache.Authenticate(ctx, cred.Token)
		require.NoError(t, err)
		assert.Equal(t, 1, fx.resolver.lookups())
	})

	t.Run("credential cache never outlives the credential", func(t *testing.T) {
		fx := newIdentityFixture(t)
		short := auth.NewMinter(auth.MinterConfig{
			Secret:   "test-signing-secret",
			TTL:      time.Minute,
			Issuer:   "attitudes.vip",
			Audience: "event-gateway",
			Clock:    fx.clock,
		})
		cred, err := short.MintCredential("user_1", "wed_1", domain.RoleGuest)
		require.NoError(t, err)

		_, err = fx.cache.Authenticate(ctx, cred.Token)
		require.NoError(t, err)

		// Two minutes later the credential itself is expired; the cache
		// entry must not revive it.
		fx.clock.Advance(2 * time.Minute)
		_, err = fx.cache.Authenticate(ctx, cred.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("sweep evicts expired entries", func(t *testing.T) {
		fx := newIdentityFixture(t)
		cred, err := fx.minter.MintCredential("user_1", "wed_1", domain.RoleGuest)
		require.NoError(t, err)

		_, err = fx.cache.Authenticate(ctx, cred.Token)
		require.NoError(t, err)
		assert.Equal(t, 1, fx.cache.CachedCredentials())

		// Credential entry expires at +5m, record entry at +15m.
		removed := fx.cache.Sweep(fx.clock.Now().Add(6 * time.Minute))
		assert.Equal(t, 1, removed)
		assert.Equal(t, 0, fx.cache.CachedCredentials())

		removed = fx.cache.Sweep(fx.clock.Now().Add(16 * time.Minute))
		assert.Equal(t, 1, removed)
	})
}
