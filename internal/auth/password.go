package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

type HasherParams struct {
	N       int
	R       int
	P       int
	SaltLen int
	KeyLen  int
}

// DefaultHasherParams follow the scrypt interactive-login recommendation.
var DefaultHasherParams = HasherParams{N: 1 << 14, R: 8, P: 1, SaltLen: 16, KeyLen: 64}

// Hasher stores passwords as base64url(salt):base64url(key).
type Hasher struct {
	p HasherParams
}

func NewHasher(p HasherParams) *Hasher {
	if p.N == 0 {
		p = DefaultHasherParams
	}
	return &Hasher{p: p}
}

func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key, err := h.derive(password, salt)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	return base64URL(salt) + ":" + base64URL(key), nil
}

// Verify fails closed on any malformed stored hash.
func (h *Hasher) Verify(password, stored string) bool {
	saltB64, keyB64, ok := strings.Cut(stored, ":")
	if !ok || saltB64 == "" || keyB64 == "" || strings.Contains(keyB64, ":") {
		return false
	}
	salt, err := base64.RawURLEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	expected, err := base64.RawURLEncoding.DecodeString(keyB64)
	if err != nil {
		return false
	}
	actual, err := h.derive(password, salt)
	if err != nil {
		return false
	}
	// ConstantTimeCompare returns 0 for differing lengths without inspecting content.
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func (h *Hasher) derive(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, h.p.N, h.p.R, h.p.P, h.p.KeyLen)
}
