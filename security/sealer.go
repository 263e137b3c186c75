package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	envelopePrefix    = "apiclient.token.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

var ErrNotSealed = errors.New("security: value is not a sealed envelope")

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type Option func(*AppKeySealer)

func WithKeyID(id string) Option {
	return func(s *AppKeySealer) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			s.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(s *AppKeySealer) {
		if version > 0 {
			s.version = version
		}
	}
}

func WithRandom(random io.Reader) Option {
	return func(s *AppKeySealer) {
		if random != nil {
			s.random = random
		}
	}
}

// AppKeySealer encrypts token strings with AES-GCM under an application key.
// Key material that is not 16, 24 or 32 bytes long is hashed to 32 bytes.
type AppKeySealer struct {
	aead    cipher.AEAD
	keyID   string
	version int
	random  io.Reader
}

func NewAppKeySealer(keyMaterial []byte, opts ...Option) (*AppKeySealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	sealer := &AppKeySealer{
		aead:    aead,
		keyID:   "app-key",
		version: 1,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sealer)
		}
	}
	return sealer, nil
}

func NewAppKeySealerFromString(key string, opts ...Option) (*AppKeySealer, error) {
	return NewAppKeySealer([]byte(key), opts...)
}

// Seal returns the prefixed envelope for value. Empty values stay empty.
func (s *AppKeySealer) Seal(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, []byte(value), s.additionalData())
	data, err := json.Marshal(envelope{
		KeyID:      s.keyID,
		Version:    s.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.RawURLEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawURLEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", fmt.Errorf("security: encode envelope: %w", err)
	}
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// Open reverses Seal. Values without the envelope prefix yield ErrNotSealed.
func (s *AppKeySealer) Open(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !IsSealed(value) {
		return "", ErrNotSealed
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, envelopePrefix))
	if err != nil {
		return "", fmt.Errorf("security: decode envelope: %w", err)
	}
	var parsed envelope
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.Algorithm != envelopeAlgorithm {
		return "", fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}
	if parsed.KeyID != s.keyID || parsed.Version != s.version {
		return "", fmt.Errorf("security: key mismatch: got %s/v%d want %s/v%d", parsed.KeyID, parsed.Version, s.keyID, s.version)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return "", fmt.Errorf("security: decode nonce: %w", err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("security: decode ciphertext: %w", err)
	}
	if len(nonce) != s.aead.NonceSize() {
		return "", fmt.Errorf("security: invalid nonce size")
	}
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, s.additionalData())
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

func (s *AppKeySealer) KeyID() string {
	return s.keyID
}

func (s *AppKeySealer) Version() int {
	return s.version
}

// additionalData binds the ciphertext to the key identity.
func (s *AppKeySealer) additionalData() []byte {
	return []byte(fmt.Sprintf("%s/v%d", s.keyID, s.version))
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, envelopePrefix)
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}
