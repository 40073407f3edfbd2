package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store/drivers/sqlite"
	"github.com/unicred/unicred/internal/gateway/content"
	"github.com/unicred/unicred/internal/gateway/identity"
	"github.com/unicred/unicred/internal/gateway/ledger"
	"github.com/unicred/unicred/pkg/cryptox"
	"github.com/unicred/unicred/pkg/idx"
	"github.com/unicred/unicred/pkg/protocol"
)

const (
	testIssuerDID = "did:iden3:polygon:amoy:issuer"
	testHolderDID = "did:iden3:polygon:amoy:holder1"
	testSchemaRef = "https://schemas.example.edu/degree-v1.json"
	testBaseURL   = "https://credentials.example.edu"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service-test-*")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// testEnv wires every service against in-memory collaborators.
type testEnv struct {
	store    *sqlite.Store
	ledger   *ledger.InMemory
	backend  *content.MemoryBackend
	content  *content.EncryptedStore
	engine   *identity.ClaimsEngine
	auth     *AuthService
	portal   *PortalService
	issuer   *IssuerService
	verifier *VerifierService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	led := ledger.NewInMemory()
	backend := content.NewMemoryBackend()
	cnt := content.NewEncryptedStore("test-content-secret", backend)
	eng := identity.NewClaimsEngine(testIssuerDID, testSchemaRef)

	return &testEnv{
		store:   st,
		ledger:  led,
		backend: backend,
		content: cnt,
		engine:  eng,
		auth: &AuthService{
			Store:           st,
			IssuerDID:       testIssuerDID,
			CallbackBaseURL: testBaseURL,
			SessionTTL:      5 * time.Minute,
		},
		portal: &PortalService{
			Store:     st,
			JWTSecret: []byte("test-jwt-secret"),
			Issuer:    "unicred",
			TokenTTL:  time.Hour,
		},
		issuer: &IssuerService{
			Store:        st,
			Ledger:       led,
			Content:      cnt,
			Engine:       eng,
			FetchBaseURL: testBaseURL,
		},
		verifier: &VerifierService{
			Store:           st,
			Ledger:          led,
			Engine:          eng,
			CallbackBaseURL: testBaseURL,
			SessionTTL:      10 * time.Minute,
		},
	}
}

func (e *testEnv) createAccount(t *testing.T, accountID, email, role, password string) domain.Account {
	t.Helper()

	acct := domain.Account{
		ID:        string(idx.New()),
		AccountID: accountID,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if password != "" {
		hash, err := cryptox.HashPassword(password)
		require.NoError(t, err)
		acct.PasswordHash = hash
	}
	require.NoError(t, e.store.Accounts().Create(context.Background(), acct))
	return acct
}

// bindHolder walks a full auth flow for the holder and binds it to the
// account, returning the auth session id.
func (e *testEnv) bindHolder(t *testing.T, email, password string) string {
	t.Helper()
	ctx := context.Background()

	started, err := e.auth.StartSession(ctx)
	require.NoError(t, err)

	_, err = e.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, testHolderDID))
	require.NoError(t, err)

	_, err = e.auth.BindAccount(ctx, started.Session.ID, testHolderDID, email, password)
	require.NoError(t, err)
	return started.Session.ID
}

func (e *testEnv) issue(t *testing.T, accountID string, claims identity.DegreeClaims, ttl time.Duration) domain.CredentialRecord {
	t.Helper()

	rec, err := e.issuer.IssueCredential(context.Background(), IssueRequest{
		AccountID: accountID,
		Claims:    claims,
		TTL:       ttl,
		Actor:     "registrar@example.edu",
	})
	require.NoError(t, err)
	return rec
}

func degreeClaims() identity.DegreeClaims {
	return identity.DegreeClaims{
		University:     "Example University",
		Degree:         "Bachelor of Science",
		Major:          "Computer Science",
		GraduationYear: 2023,
	}
}

// Wallet message builders --------------------------------------------------

func envelopeJSON(t *testing.T, env protocol.Envelope) []byte {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func authResponse(nonce, holderDID string) []byte {
	raw, _ := json.Marshal(protocol.Envelope{
		ID:   "msg-1",
		Typ:  protocol.MediaTypePlainJSON,
		Type: protocol.TypeAuthResponse,
		From: holderDID,
		Body: json.RawMessage(fmt.Sprintf(`{"message":%q,"scope":[]}`, nonce)),
	})
	return raw
}

func fetchRequest(holderDID, threadID string) []byte {
	raw, _ := json.Marshal(protocol.Envelope{
		ID:       "msg-2",
		Typ:      protocol.MediaTypePlainJSON,
		Type:     protocol.TypeFetchRequest,
		ThreadID: threadID,
		From:     holderDID,
		Body:     json.RawMessage(`{"id":"claim-1"}`),
	})
	return raw
}

func ackMessage(holderDID, status string) []byte {
	raw, _ := json.Marshal(protocol.Envelope{
		ID:   "msg-3",
		Typ:  protocol.MediaTypePlainJSON,
		Type: protocol.TypeAck,
		From: holderDID,
		Body: json.RawMessage(fmt.Sprintf(`{"status":%q}`, status)),
	})
	return raw
}

func zkProof() protocol.ZKProof {
	signals := make([]string, 77)
	for i := range signals {
		signals[i] = "0"
	}
	signals[1] = "21803003425" // userID
	signals[4] = "27752032170" // issuerID

	return protocol.ZKProof{
		PubSignals: signals,
		Proof: protocol.ProofData{
			PiA:      []string{"1", "2", "1"},
			PiB:      [][]string{{"1", "2"}, {"3", "4"}, {"1", "0"}},
			PiC:      []string{"5", "6", "1"},
			Protocol: "groth16",
		},
	}
}

// proofResponseNoVP builds a proof response whose scope carries proof
// material but no verifiable presentation.
func proofResponseNoVP(t *testing.T, holderDID string) []byte {
	t.Helper()

	body := protocol.ProofResponseBody{
		Scope: []protocol.ProofResponseScope{{
			ID:        1,
			CircuitID: protocol.DefaultCircuitID,
			Proof:     zkProof(),
		}},
	}
	rawBody, err := json.Marshal(body)
	require.NoError(t, err)

	return envelopeJSON(t, protocol.Envelope{
		ID:   "msg-5",
		Typ:  protocol.MediaTypeZKPJSON,
		Type: protocol.TypeProofResponse,
		From: holderDID,
		Body: rawBody,
	})
}

// proofResponseBadCircuit builds a proof response for a circuit the engine
// does not accept.
func proofResponseBadCircuit(t *testing.T, holderDID string, subject map[string]any) []byte {
	t.Helper()

	body := protocol.ProofResponseBody{
		Scope: []protocol.ProofResponseScope{{
			ID:        1,
			CircuitID: "credentialAtomicQueryMTPV2",
			Proof:     zkProof(),
			VP: &protocol.VerifiablePresentation{
				Context: []string{protocol.DefaultContext},
				Type:    []string{"VerifiablePresentation"},
				VerifiableCredential: []protocol.PresentedCredential{{
					Issuer:            testIssuerDID,
					Type:              []string{"VerifiableCredential", "DegreeCredential"},
					CredentialSubject: subject,
				}},
			},
		}},
	}
	rawBody, err := json.Marshal(body)
	require.NoError(t, err)

	return envelopeJSON(t, protocol.Envelope{
		ID:   "msg-6",
		Typ:  protocol.MediaTypeZKPJSON,
		Type: protocol.TypeProofResponse,
		From: holderDID,
		Body: rawBody,
	})
}

// proofResponse builds a wallet proof response with a verifiable
// presentation disclosing the given subject attributes.
func proofResponse(t *testing.T, holderDID, credIssuer, credType string, subject map[string]any) []byte {
	t.Helper()

	body := protocol.ProofResponseBody{
		Scope: []protocol.ProofResponseScope{{
			ID:        1,
			CircuitID: protocol.DefaultCircuitID,
			Proof:     zkProof(),
			VP: &protocol.VerifiablePresentation{
				Context: []string{protocol.DefaultContext},
				Type:    []string{"VerifiablePresentation"},
				VerifiableCredential: []protocol.PresentedCredential{{
					Issuer:            credIssuer,
					Type:              []string{"VerifiableCredential", credType},
					CredentialSubject: subject,
				}},
			},
		}},
	}
	rawBody, err := json.Marshal(body)
	require.NoError(t, err)

	return envelopeJSON(t, protocol.Envelope{
		ID:   "msg-4",
		Typ:  protocol.MediaTypeZKPJSON,
		Type: protocol.TypeProofResponse,
		From: holderDID,
		Body: rawBody,
	})
}
