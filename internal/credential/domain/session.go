package domain

import "time"

// AuthSession tracks one wallet authentication flow from QR scan to account
// binding. DID fields are set exactly once by a successful callback;
// BoundAccountID at most once after that.
type AuthSession struct {
	ID             string
	Nonce          string
	DID            *string
	DIDVerified    bool
	VerifiedAt     *time.Time
	BoundAccountID *string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the session is past its ttl at the given instant.
// Expiry is always evaluated at read time; the sweep is only garbage
// collection.
func (s AuthSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// DIDBinding links a DID to exactly one account. The store enforces the
// one-binding-per-DID invariant with a unique constraint at insert time.
type DIDBinding struct {
	DID       string
	AccountID string
	Status    string
	BoundAt   time.Time
}

const BindingStatusActive = "active"
