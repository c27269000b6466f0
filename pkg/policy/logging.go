package policy

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DecisionLogger provides structured logging for authorization decisions and catalog changes
type DecisionLogger struct {
	logger zerolog.Logger
}

// NewDecisionLogger creates a logger tagged with the policy component
func NewDecisionLogger() *DecisionLogger {
	return &DecisionLogger{
		logger: log.With().Str("component", "policy").Logger(),
	}
}

// NewDecisionLoggerWith wraps an existing logger
func NewDecisionLoggerWith(logger zerolog.Logger) *DecisionLogger {
	return &DecisionLogger{logger: logger.With().Str("component", "policy").Logger()}
}

// LogDecision records a guard decision. Allows are logged at debug, denials at info.
func (dl *DecisionLogger) LogDecision(guard, subject, path string, req Requirement, decision Decision) {
	event := dl.logger.Debug()
	if !decision.Allowed() {
		event = dl.logger.Info()
	}

	event.
		Str("guard", guard).
		Str("subject", subject).
		Str("path", path).
		Str("requirement", req.String()).
		Str("outcome", decision.Outcome.String())

	if len(decision.Missing) > 0 {
		event.Strs("missing", decision.Missing)
	}

	event.Msg("authorization decision")
}

// LogConfigChange logs when a profile catalog is (re)loaded
func (dl *DecisionLogger) LogConfigChange(engineName, configPath string, err error) {
	event := dl.logger.Info()
	if err != nil {
		event = dl.logger.Error().Err(err)
	}

	event.
		Str("engine", engineName).
		Str("config_path", configPath).
		Msg("policy configuration changed")
}
