// Package ledger abstracts the permissioned ledger that anchors credential
// commitments. Only hashes, merkle roots and revocation state live on chain;
// credential content never leaves the content store.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("ledger: credential not found")
	ErrUnavailable = errors.New("ledger: unavailable")
)

// AnchorRequest carries the commitment for one credential.
type AnchorRequest struct {
	CredentialHash  string
	MerkleRoot      string
	HolderDID       string
	IssuerDID       string
	SchemaRef       string
	RevocationNonce uint64
	ExpiresAt       *time.Time
}

// AnchorResult identifies the on-ledger record. CredentialID is assigned by
// the ledger and becomes the primary key everywhere else.
type AnchorResult struct {
	CredentialID string
	TxRef        string
	AnchoredAt   time.Time
}

// Validity is the ledger's answer to a validity query. Reason is set only
// when Valid is false, e.g. "revoked" or "expired".
type Validity struct {
	Valid  bool
	Reason string
}

// Record is the on-ledger view of a credential.
type Record struct {
	CredentialID   string
	CredentialHash string
	MerkleRoot     string
	HolderDID      string
	IssuerDID      string
	IsRevoked      bool
	ExpiresAt      *time.Time
	AnchoredAt     time.Time
}

// Gateway is the ledger client surface the orchestrators depend on. Anchor
// and Revoke are writes and are never retried by the gateway; reads may be.
type Gateway interface {
	// AnchorCredential commits the credential hash and merkle root. This is
	// the point of no return for issuance.
	AnchorCredential(ctx context.Context, req AnchorRequest) (AnchorResult, error)

	// RevokeCredential flips the on-ledger revocation flag. Revoking an
	// already revoked credential fails.
	RevokeCredential(ctx context.Context, credentialID, reason string) error

	// IsValid reports whether the credential is anchored, unrevoked and
	// unexpired at the ledger's clock, with the reason when it is not.
	IsValid(ctx context.Context, credentialID string) (Validity, error)

	// VerifyHash reports whether the given hash matches the anchored one.
	VerifyHash(ctx context.Context, credentialID, credentialHash string) (bool, error)

	GetCredential(ctx context.Context, credentialID string) (Record, error)
	ListByHolder(ctx context.Context, holderDID string) ([]Record, error)
}
