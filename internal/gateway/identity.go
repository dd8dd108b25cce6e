package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/attitudes-vip/event-gateway/internal/auth"
	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/store"
)

// Identity is a validated, resolved connection identity.
type Identity struct {
	UserID      string
	DisplayName string
	Role        string
	WeddingID   string
}

// UserResolver is the consumer-defined slice of the persistence
// collaborator the identity cache needs. *store.UserStore satisfies it.
type UserResolver interface {
	GetByID(ctx context.Context, userID string) (*store.UserRecord, error)
}

// IdentityCacheConfig holds identity cache tuning.
type IdentityCacheConfig struct {
	// CredentialTTL bounds how long a decoded credential is reused
	// without re-verification. Capped by the credential's own expiry.
	CredentialTTL time.Duration

	// UserRecordTTL bounds how long a resolved user record absorbs
	// duplicate persistence lookups.
	UserRecordTTL time.Duration

	Clock domain.Clock
}

type credEntry struct {
	identity  Identity
	expiresAt time.Time
}

type recordEntry struct {
	record    store.UserRecord
	expiresAt time.Time
}

// IdentityCache validates bearer credentials and caches both the decoded
// credential and the resolved user record, so repeated authentications
// with the same credential skip signature verification and the
// persistence round trip until the cache entries expire.
type IdentityCache struct {
	validator *auth.Validator
	users     UserResolver
	cfg       IdentityCacheConfig

	mu      sync.Mutex
	creds   map[string]credEntry
	records map[string]recordEntry
}

// NewIdentityCache creates an identity cache in front of the given
// validator and user resolver.
func NewIdentityCache(validator *auth.Validator, users UserResolver, cfg IdentityCacheConfig) *IdentityCache {
	return &IdentityCache{
		validator: validator,
		users:     users,
		cfg:       cfg,
		creds:     make(map[string]credEntry),
		records:   make(map[string]recordEntry),
	}
}

// Authenticate validates a bearer credential and resolves its identity.
// Failure modes are terminal for the connection attempt:
// domain.ErrAuthRequired (no credential), domain.ErrInvalidToken
// (malformed/expired/bad signature), domain.ErrUserNotFound (no record
// behind a valid credential).
func (ic *IdentityCache) Authenticate(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, domain.ErrAuthRequired
	}

	now := ic.cfg.Clock.Now()

	ic.mu.Lock()
	if e, ok := ic.creds[credential]; ok && now.Before(e.expiresAt) {
		ident := e.identity
		ic.mu.Unlock()
		return &ident, nil
	}
	ic.mu.Unlock()

	claims, err := ic.validator.ValidateCredential(credential)
	if err != nil {
		return nil, err
	}

	rec, err := ic.resolveUser(ctx, claims.Subject, now)
	if err != nil {
		return nil, err
	}

	role := claims.Role
	if role == "" {
		role = rec.Role
	}

	ident := Identity{
		UserID:      claims.Subject,
		DisplayName: rec.DisplayName,
		Role:        role,
		WeddingID:   claims.WeddingID,
	}

	// Never cache a credential past its own expiry.
	credExpiry := now.Add(ic.cfg.CredentialTTL)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(credExpiry) {
		credExpiry = claims.ExpiresAt.Time
	}

	ic.mu.Lock()
	ic.creds[credential] = credEntry{identity: ident, expiresAt: credExpiry}
	ic.mu.Unlock()

	return &ident, nil
}

func (ic *IdentityCache) resolveUser(ctx context.Context, userID string, now time.Time) (*store.UserRecord, error) {
	ic.mu.Lock()
	if e, ok := ic.records[userID]; ok && now.Before(e.expiresAt) {
		rec := e.record
		ic.mu.Unlock()
		return &rec, nil
	}
	ic.mu.Unlock()

	rec, err := ic.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("resolve user %s: %w: %w", userID, domain.ErrUnavailable, err)
	}

	ic.mu.Lock()
	ic.records[userID] = recordEntry{record: *rec, expiresAt: now.Add(ic.cfg.UserRecordTTL)}
	ic.mu.Unlock()

	return rec, nil
}

// CachedCredentials reports the number of live credential entries.
func (ic *IdentityCache) CachedCredentials() int {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return len(ic.creds)
}

// Sweep evicts expired cache entries, returning the number removed.
// Called by the cleanup supervisor.
func (ic *IdentityCache) Sweep(now time.Time) int {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	removed := 0
	for cred, e := range ic.creds {
		if !now.Before(e.expiresAt) {
			delete(ic.creds, cred)
			removed++
		}
	}
	for userID, e := range ic.records {
		if !now.Before(e.expiresAt) {
			delete(ic.records, userID)
			removed++
		}
	}
	return removed
}
