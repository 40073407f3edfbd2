package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// InMemory is a process-local ledger used in tests and single-node
// deployments. Credential ids are derived from the anchored hash so they are
// stable across runs with the same input.
type InMemory struct {
	mu      sync.Mutex
	records map[string]*Record
	seq     uint64
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*Record)}
}

func (m *InMemory) AnchorCredential(ctx context.Context, req AnchorRequest) (AnchorResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", req.CredentialHash, req.HolderDID, m.seq)))
	id := "0x" + hex.EncodeToString(sum[:20])
	now := time.Now().UTC()

	m.records[id] = &Record{
		CredentialID:   id,
		CredentialHash: req.CredentialHash,
		MerkleRoot:     req.MerkleRoot,
		HolderDID:      req.HolderDID,
		IssuerDID:      req.IssuerDID,
		ExpiresAt:      req.ExpiresAt,
		AnchoredAt:     now,
	}
	return AnchorResult{
		CredentialID: id,
		TxRef:        fmt.Sprintf("tx-%d", m.seq),
		AnchoredAt:   now,
	}, nil
}

func (m *InMemory) RevokeCredential(ctx context.Context, credentialID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[credentialID]
	if !ok {
		return ErrNotFound
	}
	if rec.IsRevoked {
		return fmt.Errorf("ledger: credential %s already revoked", credentialID)
	}
	rec.IsRevoked = true
	return nil
}

func (m *InMemory) IsValid(ctx context.Context, credentialID string) (Validity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[credentialID]
	if !ok {
		return Validity{Reason: "unknown credential"}, nil
	}
	if rec.IsRevoked {
		return Validity{Reason: "revoked"}, nil
	}
	if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
		return Validity{Reason: "expired"}, nil
	}
	return Validity{Valid: true}, nil
}

func (m *InMemory) VerifyHash(ctx context.Context, credentialID, credentialHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[credentialID]
	if !ok {
		return false, ErrNotFound
	}
	return rec.CredentialHash == credentialHash, nil
}

func (m *InMemory) GetCredential(ctx context.Context, credentialID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[credentialID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (m *InMemory) ListByHolder(ctx context.Context, holderDID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, rec := range m.records {
		if rec.HolderDID == holderDID {
			out = append(out, *rec)
		}
	}
	return out, nil
}
