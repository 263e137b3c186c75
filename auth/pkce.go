package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	CodeChallengeMethodS256 = "S256"

	verifierEntropyBytes = 32
	stateEntropyBytes    = 16
)

// newCodeVerifier returns 32 random bytes hex encoded, a 64 character
// verifier inside the RFC 7636 length bounds.
func newCodeVerifier(random io.Reader) (string, error) {
	return randomHex(random, verifierEntropyBytes)
}

func newState(random io.Reader) (string, error) {
	return randomHex(random, stateEntropyBytes)
}

// CodeChallengeS256 derives the S256 challenge sent with the authorization
// request.
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomHex(random io.Reader, size int) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("auth: read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
