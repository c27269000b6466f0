// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package keys

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// PlaceholderSecret is the shipped default for jwt.secret. It must be overridden in real deployments.
	PlaceholderSecret = "mySecretKey"

	// MinRecommendedSecretLength is the HS256 key size (RFC 7518 §3.2) below which a secret is reported as weak.
	MinRecommendedSecretLength = 32

	// DefaultAlgorithm is the MAC algorithm used for signing and verification.
	DefaultAlgorithm = "HS256"
)

// ErrNoSecret is returned when no signing secret has been configured.
var ErrNoSecret = errors.New("no signing secret available")

// ApprovedAlgorithms lists the symmetric MAC algorithms a KeyManager may be configured with.
var ApprovedAlgorithms = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// KeyManager holds the process-wide symmetric signing secret.
// It is populated once at startup and only read afterwards.
type KeyManager struct {
	secret    []byte
	algorithm string
}

// NewKeyManager creates a new KeyManager instance using HS256
func NewKeyManager() *KeyManager {
	return &KeyManager{algorithm: DefaultAlgorithm}
}

// SetSecret sets the signing secret from its string form
func (km *KeyManager) SetSecret(secret string) error {
	if secret == "" {
		return ErrNoSecret
	}
	km.secret = []byte(secret)
	return nil
}

// LoadSecret loads the signing secret from a file, ignoring surrounding whitespace
func (km *KeyManager) LoadSecret(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read secret file: %w", err)
	}

	secret := bytes.TrimSpace(data)
	if len(secret) == 0 {
		return fmt.Errorf("secret file %s is empty: %w", path, ErrNoSecret)
	}

	km.secret = secret
	return nil
}

// GenerateSecret generates a random secret of n bytes, base64url encoded
func (km *KeyManager) GenerateSecret(n int) error {
	if n < MinRecommendedSecretLength {
		n = MinRecommendedSecretLength
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}

	km.secret = []byte(base64.RawURLEncoding.EncodeToString(raw))
	return nil
}

// SaveSecret writes the secret to a file readable only by the owner
func (km *KeyManager) SaveSecret(path string) error {
	if len(km.secret) == 0 {
		return ErrNoSecret
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, km.secret, 0600); err != nil {
		return fmt.Errorf("failed to write secret file: %w", err)
	}

	return nil
}

// GetSecret returns the signing secret
func (km *KeyManager) GetSecret() ([]byte, error) {
	if len(km.secret) == 0 {
		return nil, ErrNoSecret
	}
	return km.secret, nil
}

// Weak reports whether the secret is the placeholder or shorter than MinRecommendedSecretLength.
func (km *KeyManager) Weak() bool {
	return string(km.secret) == PlaceholderSecret || len(km.secret) < MinRecommendedSecretLength
}

// SetAlgorithm sets the MAC algorithm to use
func (km *KeyManager) SetAlgorithm(alg string) error {
	if err := ValidateAlgorithm(alg); err != nil {
		return err
	}
	km.algorithm = alg
	return nil
}

// Algorithm returns the configured MAC algorithm
func (km *KeyManager) Algorithm() string {
	return km.algorithm
}

// ValidateAlgorithm checks if the algorithm is an approved symmetric MAC
func ValidateAlgorithm(alg string) error {
	if _, ok := ApprovedAlgorithms[alg]; !ok {
		return fmt.Errorf("algorithm %s is not approved. Approved algorithms: HS256, HS384, HS512", alg)
	}
	return nil
}

// GetSigningMethod returns the jwt signing method for an approved algorithm
func GetSigningMethod(alg string) (jwt.SigningMethod, error) {
	method, ok := ApprovedAlgorithms[alg]
	if !ok {
		return nil, ValidateAlgorithm(alg)
	}
	return method, nil
}
