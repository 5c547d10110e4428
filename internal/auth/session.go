// Package auth issues and verifies the session tokens that identify a device
// to the HTTP surface. Identity here is deliberately thin: a token carries a
// user id and nothing else. There are no credentials to check because pairing
// is trust-based invite codes.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long issued tokens stay valid; zero means no expiry.
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair at runtime and reads the token
// lifetime from TOKEN_EXPIRE_TIME (a Go duration, or "never"/empty for no
// expiry). Restarting the process invalidates outstanding tokens; clients
// just mint a new identity, nothing durable hangs off the token itself.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}

	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "never" || raw == "0" {
		tokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("failed to parse token expire time: %w", err)
	}
	tokenTTL = d
	return nil
}

// CreateToken signs a JWT whose subject is the given user id.
func CreateToken(userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
	}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyToken checks a JWT and returns the user id it carries.
func VerifyToken(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing sub in jwt")
	}

	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id in token: %w", err)
	}
	return id, nil
}
