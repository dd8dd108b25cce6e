package auth

import "github.com/golang-jwt/jwt/v5"

// Claims represents the JWT claims of a bearer credential. Subject is
// the user ID; the custom claims scope the credential to one wedding.
type Claims struct {
	jwt.RegisteredClaims
	WeddingID string `json:"wid"`
	Role      string `json:"role"`
}

// ReconnectClaims represents the claims of a short-lived reconnect token.
// It carries enough identity to re-admit the holder into its prior
// wedding room without a user record lookup.
type ReconnectClaims struct {
	jwt.RegisteredClaims
	WeddingID   string `json:"wid"`
	Role        string `json:"role"`
	DisplayName string `json:"name"`
}
