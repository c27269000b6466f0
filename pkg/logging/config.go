// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package logging configures the global zerolog logger and carries request tracing ids through contexts.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)

// Config holds the logging configuration
type Config struct {
	Level       LogLevel  `json:"level"`
	Format      LogFormat `json:"format"`
	ServiceName string    `json:"service_name"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
	Caller      bool      `json:"caller"`

	// Output defaults to stderr
	Output io.Writer `json:"-"`
}

// DefaultConfig returns a default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:       LogLevelInfo,
		Format:      LogFormatConsole,
		ServiceName: "tokengate",
		Environment: "development",
		Version:     "1.0.0",
		Caller:      false,
	}
}

// New builds a logger from config without touching global state.
func New(config *Config) zerolog.Logger {
	if config == nil {
		config = DefaultConfig()
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	if config.Format != LogFormatJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).With().
		Timestamp().
		Str("service", config.ServiceName).
		Str("environment", config.Environment).
		Str("version", config.Version)
	if config.Caller {
		ctx = ctx.Caller()
	}

	return ctx.Logger().Level(ParseLevel(config.Level))
}

// Configure sets up the global logger with the given configuration
func Configure(config *Config) zerolog.Logger {
	if config == nil {
		config = DefaultConfig()
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(config.Level))

	logger := New(config)
	log.Logger = logger
	return logger
}

// ConfigureFromEnv configures logging from LOG_LEVEL, LOG_FORMAT, SERVICE_NAME, ENVIRONMENT and LOG_CALLER.
func ConfigureFromEnv() zerolog.Logger {
	return Configure(ConfigFromEnv(DefaultConfig()))
}

// ConfigFromEnv overlays environment variables on config
func ConfigFromEnv(config *Config) *Config {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = LogLevel(strings.ToLower(level))
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = LogFormat(strings.ToLower(format))
	}

	if serviceName := os.Getenv("SERVICE_NAME"); serviceName != "" {
		config.ServiceName = serviceName
	}

	if environment := os.Getenv("ENVIRONMENT"); environment != "" {
		config.Environment = environment
	}

	if caller := os.Getenv("LOG_CALLER"); caller != "" {
		config.Caller = caller == "true"
	}

	return config
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level LogLevel) zerolog.Level {
	l, err := zerolog.ParseLevel(string(level))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

// GetLogger returns a logger with the given context
func GetLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
