package protocol

import (
	"github.com/google/uuid"
)

// AuthRequestBody carries the challenge nonce the wallet must echo back.
type AuthRequestBody struct {
	CallbackURL string `json:"callbackUrl"`
	Reason      string `json:"reason,omitempty"`
	Message     string `json:"message"`
	Scope       []any  `json:"scope"`
}

// AuthResponseBody is the holder-signed reply. Message must equal the
// session nonce for the response to bind to the session.
type AuthResponseBody struct {
	Message string          `json:"message"`
	Scope   []AuthProofItem `json:"scope"`
}

// AuthProofItem is an optional credential proof attached to an
// authorization response.
type AuthProofItem struct {
	ID        int     `json:"id"`
	CircuitID string  `json:"circuitId"`
	Proof     ZKProof `json:"proof"`
}

// NewAuthRequest builds an authorization request envelope carrying nonce as
// the challenge message.
func NewAuthRequest(callbackURL, reason, nonce, issuerDID string) *Envelope {
	id := uuid.NewString()
	return &Envelope{
		ID:       id,
		Typ:      MediaTypePlainJSON,
		Type:     TypeAuthRequest,
		ThreadID: id,
		From:     issuerDID,
		Body: marshalBody(AuthRequestBody{
			CallbackURL: callbackURL,
			Reason:      reason,
			Message:     nonce,
			Scope:       []any{},
		}),
	}
}

// ParseAuthResponse validates an inbound envelope as an authorization
// response and decodes its body.
func ParseAuthResponse(raw []byte) (*Envelope, *AuthResponseBody, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := env.Validate(TypeAuthResponse); err != nil {
		return nil, nil, err
	}
	var body AuthResponseBody
	if err := env.DecodeBody(&body); err != nil {
		return nil, nil, err
	}
	return env, &body, nil
}
