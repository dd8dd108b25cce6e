package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/attitudes-vip/event-gateway/internal/domain"
)

// ReconnectIssuer mints and validates short-lived reconnect tokens.
// A token lets a client resume after a transient disconnect without
// re-running the full admission sequence. Tokens are not single-use;
// they become invalid only when their lifetime expires.
//
// Issued JTIs are tracked per-instance so the cleanup supervisor can
// evict expired bookkeeping; validity itself is stateless (signature +
// expiry), so a token issued by one gateway instance redeems on another.
type ReconnectIssuer struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	clock    domain.Clock

	mu     sync.Mutex
	issued map[string]time.Time // jti -> expiry
}

// ReconnectIssuerConfig holds configuration for creating a ReconnectIssuer.
type ReconnectIssuerConfig struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
	Clock    domain.Clock
}

// NewReconnectIssuer creates a new reconnect token issuer.
func NewReconnectIssuer(cfg ReconnectIssuerConfig) *ReconnectIssuer {
	return &ReconnectIssuer{
		secret:   []byte(cfg.Secret),
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
		issued:   make(map[string]time.Time),
	}
}

// Mint creates a reconnect token for an admitted connection. The claims
// carry display name and role so redemption needs no user store lookup.
func (i *ReconnectIssuer) Mint(userID, weddingID, displayName string, role domain.Role) (string, error) {
	now := i.clock.Now().UTC()
	jti := uuid.NewString()
	expiresAt := now.Add(i.ttl)

	claims := ReconnectClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		WeddingID:   weddingID,
		Role:        string(role),
		DisplayName: displayName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign reconnect token: %w", err)
	}

	i.mu.Lock()
	i.issued[jti] = expiresAt
	i.mu.Unlock()

	return signed, nil
}

// Validate checks a reconnect token's signature and expiry. Callers fall
// back to full credential authentication on any error rather than
// refusing the connection outright.
func (i *ReconnectIssuer) Validate(tokenString string) (*ReconnectClaims, error) {
	var claims ReconnectClaims

	opts := []jwt.ParserOption{
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	}

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.WeddingID == "" {
		return nil, fmt.Errorf("incomplete reconnect claims: %w", domain.ErrInvalidToken)
	}

	return &claims, nil
}

// IssuedCount reports the number of tracked token entries. Used by
// metrics and tests.
func (i *ReconnectIssuer) IssuedCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.issued)
}

// Sweep evicts bookkeeping for tokens whose lifetime has expired and
// returns the number evicted. Called by the cleanup supervisor.
func (i *ReconnectIssuer) Sweep(now time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	evicted := 0
	for jti, expiresAt := range i.issued {
		if now.After(expiresAt) {
			delete(i.issued, jti)
			evicted++
		}
	}
	return evicted
}
