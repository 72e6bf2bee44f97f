// Package audit provides security audit logging for SIEM consumption.
// Events are logged in structured JSON under the "security_audit" logger so
// they can be filtered apart from operational logs.
package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSuspiciousSeedText is logged when libinjection matches seed text.
	EventSuspiciousSeedText SecurityEventType = "suspicious_seed_text"
	// EventProviderAuthFailure is logged when a provider rejects the API key.
	EventProviderAuthFailure SecurityEventType = "provider_auth_failure"
	// EventScriptRejected is logged when a model response fails validation.
	EventScriptRejected SecurityEventType = "script_rejected"
)

// maxLoggedValue bounds seed text copied into audit events.
const maxLoggedValue = 120

// SecurityEvent is an auditable event with the context needed for SIEM
// ingestion.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RunID     string            `json:"run_id"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SuspiciousTextDetails describes seed text that matched an injection pattern.
type SuspiciousTextDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// ProviderAuthDetails identifies the provider that rejected a key. The key
// itself is never part of an event.
type ProviderAuthDetails struct {
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under the "security_audit"
// namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogSuspiciousText records seed text that looks like SQL injection. The text
// is still seeded as a quoted literal, so this is a warning, not a block.
func (a *SecurityAuditor) LogSuspiciousText(runID string, details SuspiciousTextDetails) {
	details.Value = logging.TruncateString(logging.SanitizeText(details.Value), maxLoggedValue)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSuspiciousSeedText,
		RunID:     runID,
		Details:   details,
		Severity:  "warning",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Suspicious seed text detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("run_id", runID),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "warning"),
	)
}

// LogProviderAuthFailure records a provider rejecting the supplied API key.
// Logged at ERROR with "critical" severity since repeated failures can mean a
// leaked or revoked key.
func (a *SecurityAuditor) LogProviderAuthFailure(runID string, details ProviderAuthDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventProviderAuthFailure,
		RunID:     runID,
		Details:   details,
		Severity:  "critical",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("Provider rejected API key",
		zap.String("event_json", string(eventJSON)),
		zap.String("run_id", runID),
		zap.String("model", details.Model),
		zap.String("endpoint", details.Endpoint),
		zap.String("severity", "critical"),
	)
}

// LogScriptRejected records a model response that failed validation and was
// withheld from the caller.
func (a *SecurityAuditor) LogScriptRejected(runID string, defectCounts map[string]int) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventScriptRejected,
		RunID:     runID,
		Details:   defectCounts,
		Severity:  "info",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Seed script rejected",
		zap.String("event_json", string(eventJSON)),
		zap.String("run_id", runID),
		zap.String("severity", "info"),
	)
}
