package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// ShellSubject is the subject every bridge token is issued for
const ShellSubject = "shell"

// IssueToken signs an HS256 token the shell presents as a bearer credential
func IssueToken(secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("bridge secret is empty")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ShellSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(signingKey(secret))
}

// VerifyToken checks signature, algorithm, subject and expiry
func VerifyToken(secret []byte, tokenString string) error {
	if len(secret) == 0 {
		return fmt.Errorf("bridge secret is empty")
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return signingKey(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(ShellSubject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// NewSecret returns a random hex secret for a bridge session
func NewSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// signingKey stretches the configured secret, which is often a short
// passphrase, into a full-size HS256 key.
func signingKey(secret []byte) []byte {
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, secret, []byte("remotely-bridge"), []byte("hs256"))
	if _, err := io.ReadFull(r, key); err != nil {
		panic(err) // unreachable: hkdf yields up to 255 blocks
	}
	return key
}
