// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileBasedEngine serves a profile catalog read from a JSON file and reloads it when the file changes.
type FileBasedEngine struct {
	name        string
	version     string
	configPath  string
	profiles    map[string]*PolicyDecision
	lastModTime time.Time
	logger      *DecisionLogger
	stop        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
}

// FileBasedEngineConfig holds the configuration for the file-based policy engine
type FileBasedEngineConfig struct {
	// Name is the human-readable name for this policy engine
	Name string `json:"name"`

	// Version is the version of this policy engine
	Version string `json:"version"`

	// ConfigPath is the path to the profile catalog
	ConfigPath string `json:"config_path"`

	// ReloadInterval is how often to check for catalog changes.
	// If not set, the file is only reloaded lazily on evaluation.
	ReloadInterval *time.Duration `json:"reload_interval,omitempty"`
}

// profileWithString handles string durations during unmarshaling
type profileWithString struct {
	Subject          string   `json:"subject"`
	Roles            []string `json:"roles"`
	Permissions      []string `json:"permissions"`
	AuthLevel        string   `json:"auth_level,omitempty"`
	IdentityProvider string   `json:"idp,omitempty"`
	TokenLifetimeStr string   `json:"token_lifetime,omitempty"`
}

type fileBasedConfigWithStrings struct {
	Version  string                        `json:"version"`
	Profiles map[string]*profileWithString `json:"profiles"`
}

// DefaultFileBasedConfig returns a default configuration for the file-based policy engine
func DefaultFileBasedConfig() *FileBasedEngineConfig {
	return &FileBasedEngineConfig{
		Name:       "file-based-policy-engine",
		Version:    "1.0.0",
		ConfigPath: "/etc/tokengate/profiles.json",
		ReloadInterval: func() *time.Duration {
			d := 5 * time.Minute
			return &d
		}(),
	}
}

// NewFileBasedEngine creates a new file-based policy engine with the given configuration
func NewFileBasedEngine(config *FileBasedEngineConfig) (*FileBasedEngine, error) {
	if config == nil {
		config = DefaultFileBasedConfig()
	}

	if err := validateFileBasedEngineConfig(config); err != nil {
		return nil, fmt.Errorf("invalid file-based policy engine configuration: %w", err)
	}

	engine := &FileBasedEngine{
		name:       config.Name,
		version:    config.Version,
		configPath: config.ConfigPath,
		logger:     NewDecisionLogger(),
		stop:       make(chan struct{}),
	}

	if err := engine.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}

	if config.ReloadInterval != nil {
		go engine.startReloadLoop(*config.ReloadInterval)
	}

	return engine, nil
}

// EvaluatePolicy returns a copy of the named profile, reloading the catalog first if it changed
func (e *FileBasedEngine) EvaluatePolicy(ctx context.Context, profile string) (*PolicyDecision, error) {
	// a failed reload keeps the last good catalog
	_ = e.reloadConfigIfNeeded()

	e.mu.RLock()
	decision, ok := e.profiles[strings.ToLower(profile)]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}
	return copyPolicyDecision(decision), nil
}

// Profiles lists the known profile names
func (e *FileBasedEngine) Profiles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedNames(e.profiles)
}

// GetName returns the name of this policy engine (for logging purposes)
func (e *FileBasedEngine) GetName() string {
	return e.name
}

// GetVersion returns the version of this policy engine (for logging purposes)
func (e *FileBasedEngine) GetVersion() string {
	return e.version
}

// Close stops the reload loop
func (e *FileBasedEngine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// loadConfig loads the profile catalog from the file
func (e *FileBasedEngine) loadConfig() error {
	info, err := os.Stat(e.configPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	profiles, err := LoadProfiles(e.configPath)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.profiles = profiles
	e.lastModTime = info.ModTime()
	e.mu.Unlock()

	return nil
}

// reloadConfigIfNeeded checks if the config file has been modified and reloads if necessary
func (e *FileBasedEngine) reloadConfigIfNeeded() error {
	stat, err := os.Stat(e.configPath)
	if err != nil {
		e.logger.LogConfigChange(e.name, e.configPath, err)
		return err
	}

	e.mu.RLock()
	changed := stat.ModTime().After(e.lastModTime)
	e.mu.RUnlock()

	if !changed {
		return nil
	}

	err = e.loadConfig()
	e.logger.LogConfigChange(e.name, e.configPath, err)
	return err
}

// startReloadLoop periodically checks for config file changes until Close is called
func (e *FileBasedEngine) startReloadLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			_ = e.reloadConfigIfNeeded()
		}
	}
}

// LoadProfiles reads and validates a profile catalog. Durations are written as Go duration strings.
func LoadProfiles(configPath string) (map[string]*PolicyDecision, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw fileBasedConfigWithStrings
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	profiles := make(map[string]*PolicyDecision, len(raw.Profiles))
	for name, p := range raw.Profiles {
		if p == nil {
			profiles[strings.ToLower(name)] = nil
			continue
		}
		decision := &PolicyDecision{
			Subject:          p.Subject,
			Roles:            p.Roles,
			Permissions:      p.Permissions,
			AuthLevel:        p.AuthLevel,
			IdentityProvider: p.IdentityProvider,
		}
		if p.TokenLifetimeStr != "" {
			d, err := time.ParseDuration(p.TokenLifetimeStr)
			if err != nil {
				return nil, fmt.Errorf("invalid token_lifetime '%s' for profile '%s': %w", p.TokenLifetimeStr, name, err)
			}
			decision.TokenLifetime = &d
		}
		profiles[strings.ToLower(name)] = decision
	}

	if err := ValidateProfiles(profiles).Err(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return profiles, nil
}

// SaveProfiles writes a profile catalog in the format LoadProfiles reads
func SaveProfiles(profiles map[string]*PolicyDecision, configPath string) error {
	raw := fileBasedConfigWithStrings{
		Version:  "1",
		Profiles: make(map[string]*profileWithString, len(profiles)),
	}
	for name, d := range profiles {
		p := &profileWithString{
			Subject:          d.Subject,
			Roles:            d.Roles,
			Permissions:      d.Permissions,
			AuthLevel:        d.AuthLevel,
			IdentityProvider: d.IdentityProvider,
		}
		if d.TokenLifetime != nil {
			p.TokenLifetimeStr = d.TokenLifetime.String()
		}
		raw.Profiles[name] = p
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}

	return nil
}

// validateFileBasedEngineConfig validates a file-based policy engine configuration
func validateFileBasedEngineConfig(config *FileBasedEngineConfig) error {
	if config.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if config.Version == "" {
		return fmt.Errorf("version cannot be empty")
	}

	if config.ConfigPath == "" {
		return fmt.Errorf("config_path cannot be empty")
	}

	if _, err := os.Stat(config.ConfigPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", config.ConfigPath)
	}

	if config.ReloadInterval != nil && *config.ReloadInterval <= 0 {
		return fmt.Errorf("reload_interval must be positive")
	}

	return nil
}
