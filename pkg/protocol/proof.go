package protocol

import (
	"errors"

	"github.com/google/uuid"
)

// DefaultCircuitID is the circuit family this deployment requests proofs
// for. The public-signal layout in pubsignals.go is fixed to it.
const DefaultCircuitID = "credentialAtomicQuerySigV2"

// DefaultContext is the JSON-LD context used when a policy does not supply
// its own.
const DefaultContext = "https://www.w3.org/2018/credentials/v1"

// ProofRequestBody asks the wallet for a zero-knowledge proof satisfying
// each scope's query.
type ProofRequestBody struct {
	CallbackURL string              `json:"callbackUrl"`
	Reason      string              `json:"reason"`
	Scope       []ProofRequestScope `json:"scope"`
}

type ProofRequestScope struct {
	ID        int        `json:"id"`
	CircuitID string     `json:"circuitId"`
	Query     ProofQuery `json:"query"`
}

// ProofQuery restricts which credential may satisfy the request. An empty
// AllowedIssuers list means any issuer. CredentialSubject maps field paths
// to operator predicates, e.g. {"graduationYear": {"$gte": 2020}}.
type ProofQuery struct {
	AllowedIssuers    []string                  `json:"allowedIssuers"`
	Context           string                    `json:"context"`
	Type              string                    `json:"type"`
	CredentialSubject map[string]map[string]any `json:"credentialSubject,omitempty"`
}

// ProofResponseBody carries the generated proofs.
type ProofResponseBody struct {
	Scope []ProofResponseScope `json:"scope"`
}

type ProofResponseScope struct {
	ID        int                     `json:"id"`
	CircuitID string                  `json:"circuitId"`
	Proof     ZKProof                 `json:"proof"`
	VP        *VerifiablePresentation `json:"vp,omitempty"`
}

// ZKProof is the groth16 proof envelope. The curve math is an opaque
// collaborator; this package only checks structure.
type ZKProof struct {
	Type       string    `json:"type,omitempty"`
	PubSignals []string  `json:"pub_signals"`
	Proof      ProofData `json:"proof"`
}

type ProofData struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol,omitempty"`
}

// VerifiablePresentation carries the selectively disclosed attributes that
// accompany a proof.
type VerifiablePresentation struct {
	Context              []string              `json:"@context,omitempty"`
	Type                 []string              `json:"type,omitempty"`
	VerifiableCredential []PresentedCredential `json:"verifiableCredential,omitempty"`
}

type PresentedCredential struct {
	Issuer            string         `json:"issuer,omitempty"`
	Type              []string       `json:"type,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject,omitempty"`
}

// NewProofRequest builds a proof request envelope from a verifier policy.
// Each constraint becomes a predicate keyed by its field path under the
// query's credentialSubject.
func NewProofRequest(callbackURL, reason, verifierDID, credentialType string, allowedIssuers []string, constraints map[string]map[string]any) *Envelope {
	if allowedIssuers == nil {
		allowedIssuers = []string{}
	}
	query := ProofQuery{
		AllowedIssuers: allowedIssuers,
		Context:        DefaultContext,
		Type:           credentialType,
	}
	if len(constraints) > 0 {
		query.CredentialSubject = constraints
	}
	return &Envelope{
		ID:       uuid.NewString(),
		Typ:      MediaTypePlainJSON,
		Type:     TypeProofRequest,
		ThreadID: uuid.NewString(),
		From:     verifierDID,
		Body: marshalBody(ProofRequestBody{
			CallbackURL: callbackURL,
			Reason:      reason,
			Scope: []ProofRequestScope{{
				ID:        1,
				CircuitID: DefaultCircuitID,
				Query:     query,
			}},
		}),
	}
}

// ParseProofResponse validates an inbound envelope as a proof response and
// decodes its body. The sender DID must be present and the scope non-empty.
func ParseProofResponse(raw []byte) (*Envelope, *ProofResponseBody, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := env.Validate(TypeProofResponse); err != nil {
		return nil, nil, err
	}
	if env.From == "" {
		return nil, nil, errors.New("protocol: proof response missing sender DID")
	}
	var body ProofResponseBody
	if err := env.DecodeBody(&body); err != nil {
		return nil, nil, err
	}
	if len(body.Scope) == 0 {
		return nil, nil, errors.New("protocol: proof response scope is empty")
	}
	return env, &body, nil
}

// HasProofMaterial reports whether the scope entry carries a structurally
// complete proof: public signals plus all three proof components.
func (s ProofResponseScope) HasProofMaterial() bool {
	p := s.Proof
	return len(p.PubSignals) > 0 && len(p.Proof.PiA) > 0 && len(p.Proof.PiB) > 0 && len(p.Proof.PiC) > 0
}
