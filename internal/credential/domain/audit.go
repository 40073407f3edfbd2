package domain

import "time"

// Audit event types recorded by the orchestrators.
const (
	AuditDIDBound           = "DID_BINDING"
	AuditCredentialIssued   = "CREDENTIAL_ISSUED"
	AuditCredentialRevoked  = "CREDENTIAL_REVOKED"
	AuditVerificationDone   = "VERIFICATION_COMPLETED"
	AuditInconsistencyAlert = "CRITICAL_INCONSISTENCY"
)

// Audit entity types.
const (
	EntityAccount      = "ACCOUNT"
	EntityCredential   = "CREDENTIAL"
	EntityVerification = "VERIFICATION"
)

// AuditEntry is append-only; the core never mutates or deletes entries.
type AuditEntry struct {
	ID         string
	EventType  string
	EntityType string
	EntityID   string
	Actor      string
	ActorType  string
	Details    map[string]any
	CreatedAt  time.Time
}
