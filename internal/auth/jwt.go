// Package auth validates bearer credentials and issues reconnect tokens.
// Both are HS256 JWTs signed with the gateway's configured secret.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/attitudes-vip/event-gateway/internal/domain"
)

// ErrTokenExpired is returned when a validly signed token has expired.
// Callers can use errors.Is to check for this condition without importing
// the JWT library directly.
var ErrTokenExpired = jwt.ErrTokenExpired

// Validator validates bearer credentials presented at connection time.
type Validator struct {
	secret   []byte
	issuer   string
	audience string
	clock    domain.Clock
}

// ValidatorConfig holds configuration for creating a Validator.
type ValidatorConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Clock    domain.Clock
}

// NewValidator creates a new credential validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// ValidateCredential parses and fully validates a bearer credential.
// All failures map to domain.ErrInvalidToken; the distinction between
// malformed, expired, and badly signed credentials matters only in logs.
func (v *Validator) ValidateCredential(tokenString string) (*Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}

	_, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub claim: %w", domain.ErrInvalidToken)
	}
	if claims.WeddingID == "" {
		return nil, fmt.Errorf("missing wid claim: %w", domain.ErrInvalidToken)
	}

	return &claims, nil
}

func (v *Validator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.secret, nil
}

// MintResult holds the result of minting a credential.
type MintResult struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Minter creates signed bearer credentials. The platform's account
// service is the production issuer; the gateway keeps a minter for
// local development and tests.
type Minter struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	clock    domain.Clock
}

// MinterConfig holds configuration for creating a Minter.
type MinterConfig struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
	Clock    domain.Clock
}

// NewMinter creates a new credential minter.
func NewMinter(cfg MinterConfig) *Minter {
	return &Minter{
		secret:   []byte(cfg.Secret),
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// MintCredential creates a signed HS256 bearer credential for the given
// user, scoped to one wedding.
func (m *Minter) MintCredential(userID, weddingID string, role domain.Role) (MintResult, error) {
	now := m.clock.Now().UTC()
	jti := uuid.NewString()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		WeddingID: weddingID,
		Role:      string(role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return MintResult{}, fmt.Errorf("sign credential: %w", err)
	}

	return MintResult{
		Token:     signed,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}
