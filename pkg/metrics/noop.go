package metrics

import (
	"net/http"
	"time"
)

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NoopMetrics discards every observation.
type NoopMetrics struct{}

// NewNoopMetrics creates a Recorder that records nothing
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordTokenIssued(string, bool) {}
func (n *NoopMetrics) RecordTokenValidation(string, time.Duration) {}
func (n *NoopMetrics) RecordAuthentication(string) {}
func (n *NoopMetrics) RecordDecision(string, string) {}
func (n *NoopMetrics) RecordRateLimited(string) {}
func (n *NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (n *NoopMetrics) Handler() http.Handler { return http.NotFoundHandler() }
