// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"fmt"
	"strings"
)

// StaticEngine serves a fixed catalog of profiles held in memory.
type StaticEngine struct {
	name     string
	version  string
	profiles map[string]*PolicyDecision
}

// StaticEngineConfig holds the configuration for the static policy engine
type StaticEngineConfig struct {
	// Name is the human-readable name for this policy engine
	Name string `json:"name"`

	// Version is the version of this policy engine
	Version string `json:"version"`

	// Profiles maps a token type to the token it mints
	Profiles map[string]*PolicyDecision `json:"profiles"`
}

// DefaultStaticConfig returns a configuration serving DefaultProfiles
func DefaultStaticConfig() *StaticEngineConfig {
	return &StaticEngineConfig{
		Name:     "static-policy-engine",
		Version:  "1.0.0",
		Profiles: DefaultProfiles(),
	}
}

// NewStaticEngine creates a new static policy engine with the given configuration
func NewStaticEngine(config *StaticEngineConfig) (*StaticEngine, error) {
	if config == nil {
		config = DefaultStaticConfig()
	}

	if err := validateStaticConfig(config); err != nil {
		return nil, fmt.Errorf("invalid static policy engine configuration: %w", err)
	}

	engine := &StaticEngine{
		name:     config.Name,
		version:  config.Version,
		profiles: make(map[string]*PolicyDecision, len(config.Profiles)),
	}

	// Copy profiles to avoid external modifications
	for name, decision := range config.Profiles {
		engine.profiles[name] = copyPolicyDecision(decision)
	}

	return engine, nil
}

// EvaluatePolicy returns a copy of the named profile. Names are matched case-insensitively.
func (e *StaticEngine) EvaluatePolicy(ctx context.Context, profile string) (*PolicyDecision, error) {
	decision, ok := e.profiles[strings.ToLower(profile)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}
	return copyPolicyDecision(decision), nil
}

// Profiles lists the known profile names
func (e *StaticEngine) Profiles() []string {
	return sortedNames(e.profiles)
}

// GetName returns the name of this policy engine (for logging purposes)
func (e *StaticEngine) GetName() string {
	return e.name
}

// GetVersion returns the version of this policy engine (for logging purposes)
func (e *StaticEngine) GetVersion() string {
	return e.version
}

// validateStaticConfig validates a static policy engine configuration
func validateStaticConfig(config *StaticEngineConfig) error {
	if config.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if config.Version == "" {
		return fmt.Errorf("version cannot be empty")
	}
	return ValidateProfiles(config.Profiles).Err()
}
