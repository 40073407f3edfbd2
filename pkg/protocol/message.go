// Package protocol builds and parses the iden3comm message envelopes
// exchanged with the holder's wallet: authorization, credential offer and
// fetch, acknowledgment, and zero-knowledge proof request/response.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Media types accepted on inbound envelopes.
const (
	MediaTypePlainJSON = "application/iden3comm-plain-json"
	MediaTypeZKPJSON   = "application/iden3-zkp-json"
)

// Message type URIs.
const (
	TypeAuthRequest   = "https://iden3-communication.io/authorization/1.0/request"
	TypeAuthResponse  = "https://iden3-communication.io/authorization/1.0/response"
	TypeOffer         = "https://iden3-communication.io/credentials/1.0/offer"
	TypeFetchRequest  = "https://iden3-communication.io/credentials/1.0/fetch-request"
	TypeFetchResponse = "https://iden3-communication.io/credentials/1.0/fetch-response"
	TypeAck           = "https://iden3-communication.io/credentials/1.0/ack"
	TypeProblemReport = "https://iden3-communication.io/credentials/1.0/problem-report"
	TypeProofRequest  = "https://iden3-communication.io/proofs/1.0/request"
	TypeProofResponse = "https://iden3-communication.io/proofs/1.0/response"
)

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrMissingField   = errors.New("protocol: missing required field")
	ErrBadMediaType   = errors.New("protocol: unrecognized media type")
	ErrUnexpectedType = errors.New("protocol: unexpected message type")
	ErrBadTokenFormat = errors.New("protocol: token must have exactly three segments")
)

// Envelope is the common iden3comm message shape. Body is kept raw until the
// caller knows which message kind to decode it as.
type Envelope struct {
	ID       string          `json:"id"`
	Typ      string          `json:"typ"`
	Type     string          `json:"type"`
	ThreadID string          `json:"thid,omitempty"`
	Body     json.RawMessage `json:"body"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
}

// DecodeEnvelope parses an inbound message that is either plain JSON or a
// compact signed token of three dot-separated base64url segments whose middle
// segment is the JSON payload. Tokens with any other segment count are
// rejected.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, ErrMalformed
	}

	payload := []byte(trimmed)
	if trimmed[0] != '{' {
		segments := strings.Split(trimmed, ".")
		if len(segments) != 3 {
			return nil, ErrBadTokenFormat
		}
		decoded, err := base64.RawURLEncoding.DecodeString(segments[1])
		if err != nil {
			// Some wallets pad the segments.
			decoded, err = base64.URLEncoding.DecodeString(segments[1])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		payload = decoded
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &env, nil
}

// Validate checks the fail-closed envelope rules: required top-level fields
// present, a recognized media type, and an exact match on the expected
// message type URI.
func (e *Envelope) Validate(expectedType string) error {
	if e.ID == "" || e.Typ == "" || e.Type == "" || len(e.Body) == 0 {
		return ErrMissingField
	}
	if e.Typ != MediaTypePlainJSON && e.Typ != MediaTypeZKPJSON {
		return fmt.Errorf("%w: %q", ErrBadMediaType, e.Typ)
	}
	if e.Type != expectedType {
		return fmt.Errorf("%w: got %q, want %q", ErrUnexpectedType, e.Type, expectedType)
	}
	return nil
}

// DecodeBody unmarshals the envelope body into dst.
func (e *Envelope) DecodeBody(dst any) error {
	if err := json.Unmarshal(e.Body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func marshalBody(body any) json.RawMessage {
	raw, err := json.Marshal(body)
	if err != nil {
		// Builders only marshal value types defined in this package.
		panic(fmt.Sprintf("protocol: marshal body: %v", err))
	}
	return raw
}
