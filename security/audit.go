package security

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// AuditOutcome is the result of an audited action.
type AuditOutcome string

const (
	// OutcomeSuccess indicates the action succeeded.
	OutcomeSuccess AuditOutcome = "success"
	// OutcomeFailure indicates the action failed for a reason unrelated
	// to authorization (e.g. invalid credentials).
	OutcomeFailure AuditOutcome = "failure"
	// OutcomeDenied indicates the action was denied by policy.
	OutcomeDenied AuditOutcome = "denied"
	// OutcomeRateLimited indicates the action was rejected by the rate
	// limiter.
	OutcomeRateLimited AuditOutcome = "rate_limited"
)

// AuditEventType names the kind of audited action.
type AuditEventType string

const (
	EventLoginAttempt       AuditEventType = "login_attempt"
	EventLoginSuccess       AuditEventType = "login_success"
	EventLoginFailure       AuditEventType = "login_failure"
	EventTokenIssued        AuditEventType = "token_issued"
	EventTokenRevoked       AuditEventType = "token_revoked"
	EventPermissionDenied   AuditEventType = "permission_denied"
	EventSessionStarted     AuditEventType = "session_started"
	EventSessionEnded       AuditEventType = "session_ended"
	EventRateLimited        AuditEventType = "rate_limited"
	EventSuspiciousActivity AuditEventType = "suspicious_activity"
)

// AuditEvent is a single structured audit log entry, tagged with a
// "snake_case" type field on the wire via the json tag below.
type AuditEvent struct {
	ID        uuid.UUID      `json:"id"`
	Type      AuditEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Outcome   AuditOutcome   `json:"outcome"`
	Subject   string         `json:"subject,omitempty"`
	IP        string         `json:"ip,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// PrivacyConfig controls redaction applied before an AuditEvent is
// persisted or exported.
type PrivacyConfig struct {
	RedactIP       bool
	HashIdentifiers bool
}

// NewAuditEvent constructs an AuditEvent with a fresh UUIDv7 id and the
// current wall-clock timestamp, applying cfg's privacy controls.
func NewAuditEvent(cfg PrivacyConfig, typ AuditEventType, outcome AuditOutcome, subject, ip, detail string) AuditEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	ev := AuditEvent{
		ID:        id,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
		Subject:   subject,
		IP:        ip,
		Detail:    detail,
	}
	if cfg.RedactIP {
		ev.IP = "[REDACTED]"
	}
	if cfg.HashIdentifiers && ev.Subject != "" {
		ev.Subject = HashIdentifier(ev.Subject)
	}
	return ev
}

// HashIdentifier returns a BLAKE3 hash of id, truncated to 16 hex
// characters and prefixed "sha3:" (matching the wire prefix used by the
// original implementation's privacy controls, despite the BLAKE3
// algorithm — the prefix names the feature, not the literal hash
// function).
func HashIdentifier(id string) string {
	sum := blake3.Sum256([]byte(id))
	return "sha3:" + hex.EncodeToString(sum[:])[:16]
}

// AuditSink receives audit events. Backends (file, database, SIEM
// forwarder) are out of scope per spec.md §1; this interface is the only
// contract this module defines.
type AuditSink interface {
	Record(ev AuditEvent)
}
