package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims is the payload carried inside issued tokens.
type CustomClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates JWTs with an HMAC secret.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), duration: duration}
}

// Generate creates a signed HS256 token for the given identity.
func (t *TokenIssuer) Generate(username string, roles []string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "bananachat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate parses a token string and checks its signature and expiration.
func (t *TokenIssuer) Validate(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
