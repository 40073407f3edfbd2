// Package content stores encrypted credential documents addressed by CID.
// The ledger holds only hashes; the full signed credential lives here,
// AES-256-GCM encrypted under a key derived per holder DID.
package content

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("content: not found")
	// ErrDecrypt covers both corrupted ciphertext and a wrong-holder key;
	// GCM authentication does not distinguish them.
	ErrDecrypt = errors.New("content: decryption failed")
)

// Store is the content gateway the issuance pipeline depends on. Put returns
// the content ref (a CIDv1 over the ciphertext) that gets recorded alongside
// the credential. Pin and Unpin are advisory; failures there never abort
// issuance or revocation.
type Store interface {
	Put(ctx context.Context, payload []byte, holderDID string) (string, error)
	Get(ctx context.Context, ref, holderDID string) ([]byte, error)
	Pin(ctx context.Context, ref string) error
	Unpin(ctx context.Context, ref string) error
}
