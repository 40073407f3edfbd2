package domain

import (
	"encoding/json"
	"time"
)

// VerificationStatus follows a session from creation to its single terminal
// transition.
type VerificationStatus string

const (
	VerificationPending       VerificationStatus = "pending"
	VerificationProofReceived VerificationStatus = "proof_received"
	VerificationVerified      VerificationStatus = "verified"
	VerificationRejected      VerificationStatus = "rejected"
	VerificationExpired       VerificationStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s VerificationStatus) Terminal() bool {
	return s == VerificationVerified || s == VerificationRejected
}

// ConstraintOperator symbols accepted in verification policies.
var ConstraintOperators = map[string]struct{}{
	"$eq": {}, "$ne": {}, "$gt": {}, "$gte": {}, "$lt": {}, "$lte": {}, "$in": {}, "$nin": {},
}

// PolicyConstraint is one disclosed-attribute predicate, e.g.
// {field: "credentialSubject.graduationYear", operator: "$gte", value: 2020}.
type PolicyConstraint struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// VerificationPolicy declares what a verifier accepts. An empty
// AllowedIssuers list means any issuer is acceptable.
type VerificationPolicy struct {
	AllowedIssuers []string           `json:"allowedIssuers"`
	CredentialType string             `json:"credentialType"`
	SchemaRef      string             `json:"schemaUrl,omitempty"`
	Constraints    []PolicyConstraint `json:"constraints,omitempty"`
}

// VerificationChecks is the aggregate check vector. Verified is the AND of
// all six.
type VerificationChecks struct {
	ProofValid           bool `json:"proof_valid"`
	IssuerAllowed        bool `json:"issuer_allowed"`
	TypeMatches          bool `json:"type_matches"`
	NotRevoked           bool `json:"not_revoked"`
	NotExpired           bool `json:"not_expired"`
	ConstraintsSatisfied bool `json:"constraints_satisfied"`
}

func (c VerificationChecks) All() bool {
	return c.ProofValid && c.IssuerAllowed && c.TypeMatches && c.NotRevoked && c.NotExpired && c.ConstraintsSatisfied
}

// VerificationResult is the aggregated decision recorded on the session.
type VerificationResult struct {
	Verified            bool               `json:"verified"`
	HolderDID           string             `json:"holder_did,omitempty"`
	IssuerDID           string             `json:"issuer_did,omitempty"`
	CredentialID        string             `json:"cred_id,omitempty"`
	VerifiedAt          time.Time          `json:"verified_at"`
	Checks              VerificationChecks `json:"checks"`
	DisclosedAttributes map[string]any     `json:"disclosed_attributes,omitempty"`
	FailureReason       string             `json:"failure_reason,omitempty"`
	Errors              []string           `json:"errors,omitempty"`
}

// VerificationSession tracks one proof-request/response exchange. Policy,
// proof request and response travel as JSON blobs through the store.
type VerificationSession struct {
	ID            string
	VerifierRef   *string
	Policy        VerificationPolicy
	ProofRequest  json.RawMessage
	Status        VerificationStatus
	ProofResponse json.RawMessage
	Result        *VerificationResult
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

func (s VerificationSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
