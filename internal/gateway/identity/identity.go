// Package identity wraps the DID/claims engine: credential document
// construction, state commitments and proof verification. The heavy curve
// math lives in the external prover; this package owns document shape,
// schema validation and the commitment fold.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidClaims = errors.New("identity: claims failed schema validation")
	ErrInvalidProof  = errors.New("identity: proof is structurally invalid")
)

// SchemaDegreeCredential is the credential type this deployment issues.
const SchemaDegreeCredential = "DegreeCredential"

// DegreeClaims is the subject payload of a degree credential.
type DegreeClaims struct {
	University     string `json:"university"`
	Degree         string `json:"degree"`
	Major          string `json:"major"`
	GraduationYear int    `json:"graduationYear"`
	GPA            string `json:"gpa,omitempty"`
	Honors         string `json:"honors,omitempty"`
}

// IssuedCredential is the output of credential construction: the full signed
// document plus the values the anchoring pipeline needs.
type IssuedCredential struct {
	Document        []byte
	CredentialHash  string
	RevocationNonce uint64
	IssuedAt        time.Time
	ExpiresAt       *time.Time
}

// Commitment is the issuer state after folding a new claim in.
type Commitment struct {
	OldRoot string
	NewRoot string
}

// Engine is the claims-engine surface the orchestrators depend on.
type Engine interface {
	// IssueCredential builds and signs the W3C credential document for the
	// holder. Claims must already have passed ValidateSchema.
	IssueCredential(ctx context.Context, holderDID string, claims DegreeClaims, ttl time.Duration) (IssuedCredential, error)

	// FoldIntoCommitment folds the credential hash into the issuer's claim
	// tree and returns old and new roots.
	FoldIntoCommitment(ctx context.Context, credentialHash string) (Commitment, error)

	// PublishStateTransition announces the new issuer state. Callers treat
	// failures as non-fatal; the anchored commitment is already durable.
	PublishStateTransition(ctx context.Context, c Commitment) error

	// VerifyProof checks the groth16 envelope structure and that the public
	// signals belong to the expected circuit layout.
	VerifyProof(ctx context.Context, circuitID string, pubSignals []string, proofData []byte) (bool, error)

	// ValidateSchema checks claims against the credential schema before any
	// issuance work happens.
	ValidateSchema(claims DegreeClaims) error

	// ExtractDisclosedClaims decodes the disclosed attribute set from the
	// proof's public signals.
	ExtractDisclosedClaims(pubSignals []string) map[string]any

	IssuerDID() string
	SchemaRef() string
}
