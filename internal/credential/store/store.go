package store

import (
	"context"
	"errors"
	"time"

	"github.com/unicred/unicred/internal/credential/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrStaleStatus reports a conditional update that lost to an earlier
	// transition (terminal verification result, duplicate revocation,
	// lifecycle regression).
	ErrStaleStatus = errors.New("store: stale status")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this; sub-repositories keep concerns separate and testable.
type Store interface {
	Accounts() Accounts
	AuthSessions() AuthSessions
	Bindings() Bindings
	Credentials() Credentials
	Verifications() Verifications
	Audit() Audit

	ApplyMigrations() error

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. Use it for multi-step mutations that
	// must be atomic (e.g. DID binding plus session update).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped store.
type Tx interface {
	Accounts() Accounts
	AuthSessions() AuthSessions
	Bindings() Bindings
	Credentials() Credentials
	Verifications() Verifications
	Audit() Audit
}

type Accounts interface {
	Create(ctx context.Context, a domain.Account) error

	// FindByEmail is used by portal login and account binding.
	FindByEmail(ctx context.Context, email string) (domain.Account, error)

	// FindByAccountID looks up by the institutional identifier.
	FindByAccountID(ctx context.Context, accountID string) (domain.Account, error)
}

type AuthSessions interface {
	Create(ctx context.Context, s domain.AuthSession) error
	Get(ctx context.Context, id string) (domain.AuthSession, error)

	// MarkVerified records the one-time DID verification on callback.
	MarkVerified(ctx context.Context, id, did string, at time.Time) error

	// BindAccount links the session to an account after binding succeeds.
	BindAccount(ctx context.Context, id, accountID string) error

	// DeleteExpiredBefore removes sessions whose expiry precedes cutoff and
	// returns the count. Read-time expiry checks make this pure GC.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Bindings interface {
	// Create inserts a binding; a second insert for the same DID fails with
	// ErrAlreadyExists via the unique constraint, never overwrites.
	Create(ctx context.Context, b domain.DIDBinding) error

	GetByDID(ctx context.Context, did string) (domain.DIDBinding, error)
	GetByAccountID(ctx context.Context, accountID string) (domain.DIDBinding, error)
}

type Credentials interface {
	Create(ctx context.Context, rec domain.CredentialRecord) error
	Get(ctx context.Context, id string) (domain.CredentialRecord, error)
	List(ctx context.Context, limit, offset int) ([]domain.CredentialRecord, int64, error)
	ListByHolder(ctx context.Context, holderDID string) ([]domain.CredentialRecord, error)

	// MarkRevoked flips is_revoked exactly once. A second call fails with
	// ErrStaleStatus so callers can surface duplicate revocations.
	MarkRevoked(ctx context.Context, id, reason string, at time.Time) error

	// AdvanceLifecycle moves lifecycle_status forward only; regressions
	// fail with ErrStaleStatus.
	AdvanceLifecycle(ctx context.Context, id string, next domain.LifecycleStatus, at time.Time) error
}

type Verifications interface {
	Create(ctx context.Context, s domain.VerificationSession) error
	Get(ctx context.Context, id string) (domain.VerificationSession, error)

	// Complete records the terminal result. The update is conditioned on a
	// non-terminal status so exactly one callback wins; losers get
	// ErrStaleStatus.
	Complete(ctx context.Context, id string, status domain.VerificationStatus, result domain.VerificationResult, proofResponse []byte) error

	ListByVerifier(ctx context.Context, verifierRef string, limit, offset int) ([]domain.VerificationSession, int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Audit interface {
	// Append writes an immutable entry; nothing updates or deletes them.
	Append(ctx context.Context, e domain.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error)
}
