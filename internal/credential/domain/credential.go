package domain

import "time"

// LifecycleStatus tracks how far a credential has travelled towards the
// holder's wallet. It only ever advances.
type LifecycleStatus string

const (
	LifecycleIssued   LifecycleStatus = "issued"
	LifecycleOffered  LifecycleStatus = "offered"
	LifecycleFetched  LifecycleStatus = "fetched"
	LifecycleAccepted LifecycleStatus = "accepted"
	LifecycleRejected LifecycleStatus = "rejected"
)

// rank orders lifecycle states for the monotonic-advance check. Accepted and
// rejected are both terminal.
func (s LifecycleStatus) rank() int {
	switch s {
	case LifecycleIssued:
		return 0
	case LifecycleOffered:
		return 1
	case LifecycleFetched:
		return 2
	case LifecycleAccepted, LifecycleRejected:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next is a forward
// transition. Equal rank is not an advance.
func (s LifecycleStatus) CanAdvanceTo(next LifecycleStatus) bool {
	return next.rank() > s.rank()
}

// CredentialRecord is the durable record of an anchored credential, keyed by
// the ledger-assigned credential id. The record store owns the lifecycle
// status; the ledger owns the authoritative revocation flag.
type CredentialRecord struct {
	ID               string
	CredentialHash   string
	MerkleRoot       string
	LedgerTxRef      string
	HolderDID        string
	AccountID        string
	IssuerDID        string
	CredentialType   string
	SchemaRef        string
	ContentRef       string
	RevocationNonce  uint64
	IssuedAt         time.Time
	ExpiresAt        *time.Time
	IsRevoked        bool
	RevocationReason *string
	RevokedAt        *time.Time
	LifecycleStatus  LifecycleStatus
	OfferedAt        *time.Time
	FetchedAt        *time.Time
	AcknowledgedAt   *time.Time
}
