package token

import (
	"fmt"
	"time"

	"github.com/openchami/tokengate/pkg/keys"
)

const (
	// DefaultExpirationMillis is the default jwt.expiration: 24 hours.
	DefaultExpirationMillis int64 = 86400000

	// DefaultCacheSize is the number of verified tokens kept in memory.
	DefaultCacheSize = 1024
)

// Config holds the jwt.* settings the codec and validator are built from.
type Config struct {
	// Secret is jwt.secret, the HMAC key.
	Secret string `json:"secret"`
	// SecretFile, when set, takes precedence over Secret.
	SecretFile string `json:"secret_file,omitempty"`
	// ExpirationMillis is jwt.expiration, the token lifetime in milliseconds.
	// iat and exp have one-second precision, so it must be a multiple of 1000.
	ExpirationMillis int64 `json:"expiration"`
	// Algorithm is the MAC algorithm, HS256 unless configured otherwise.
	Algorithm string `json:"algorithm,omitempty"`
	// CacheSize bounds the verified-claims cache. Zero disables it.
	CacheSize int `json:"cache_size"`
}

// DefaultConfig returns the defaults of the jwt.* settings
func DefaultConfig() *Config {
	return &Config{
		Secret:           keys.PlaceholderSecret,
		ExpirationMillis: DefaultExpirationMillis,
		Algorithm:        keys.DefaultAlgorithm,
		CacheSize:        DefaultCacheSize,
	}
}

// TTL returns the configured lifetime as a duration
func (c *Config) TTL() time.Duration {
	return time.Duration(c.ExpirationMillis) * time.Millisecond
}

// Validate checks the configuration for values the token manager cannot work with
func (c *Config) Validate() error {
	if c.Secret == "" && c.SecretFile == "" {
		return keys.ErrNoSecret
	}
	if c.ExpirationMillis <= 0 {
		return fmt.Errorf("jwt.expiration must be positive, got %d", c.ExpirationMillis)
	}
	if err := CheckLifetime(c.TTL()); err != nil {
		return fmt.Errorf("jwt.expiration: %w", err)
	}
	if c.Algorithm != "" {
		if err := keys.ValidateAlgorithm(c.Algorithm); err != nil {
			return err
		}
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", c.CacheSize)
	}
	return nil
}

// KeyManager builds the key manager described by the configuration
func (c *Config) KeyManager() (*keys.KeyManager, error) {
	km := keys.NewKeyManager()
	if c.Algorithm != "" {
		if err := km.SetAlgorithm(c.Algorithm); err != nil {
			return nil, err
		}
	}

	if c.SecretFile != "" {
		if err := km.LoadSecret(c.SecretFile); err != nil {
			return nil, err
		}
		return km, nil
	}

	if err := km.SetSecret(c.Secret); err != nil {
		return nil, err
	}
	return km, nil
}
