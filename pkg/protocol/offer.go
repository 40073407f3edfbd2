package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// OfferBody points the wallet at the fetch endpoint for one or more
// credentials.
type OfferBody struct {
	URL         string              `json:"url"`
	Credentials []OfferedCredential `json:"credentials"`
}

type OfferedCredential struct {
	ID          string   `json:"id"`
	Type        []string `json:"type"`
	Schema      string   `json:"schema"`
	Description string   `json:"description,omitempty"`
}

// FetchResponseBody wraps the full credential document returned to the
// wallet on fetch.
type FetchResponseBody struct {
	Credential json.RawMessage `json:"credential"`
}

// AckBody is the wallet's acknowledgment after fetching a credential.
type AckBody struct {
	Status      string `json:"status,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewOffer builds a credential offer envelope. Credentials without a
// description get one derived from their most specific type.
func NewOffer(fetchURL, issuerDID string, credentials []OfferedCredential) *Envelope {
	for i, c := range credentials {
		if c.Description == "" && len(c.Type) > 0 {
			credentials[i].Description = fmt.Sprintf("%s credential", c.Type[len(c.Type)-1])
		}
	}
	id := uuid.NewString()
	return &Envelope{
		ID:       id,
		Typ:      MediaTypePlainJSON,
		Type:     TypeOffer,
		ThreadID: id,
		From:     issuerDID,
		Body: marshalBody(OfferBody{
			URL:         fetchURL,
			Credentials: credentials,
		}),
	}
}

// NewFetchResponse builds the fetch-response envelope carrying the
// credential document, threaded to the wallet's fetch request.
func NewFetchResponse(credential json.RawMessage, issuerDID, holderDID, threadID string) *Envelope {
	return &Envelope{
		ID:       uuid.NewString(),
		Typ:      MediaTypePlainJSON,
		Type:     TypeFetchResponse,
		ThreadID: threadID,
		From:     issuerDID,
		To:       holderDID,
		Body:     marshalBody(FetchResponseBody{Credential: credential}),
	}
}

// ParseFetchRequest validates an inbound envelope as a credential fetch
// request. The body is an opaque claim id reference; callers use the thread
// id and sender DID.
func ParseFetchRequest(raw []byte) (*Envelope, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if err := env.Validate(TypeFetchRequest); err != nil {
		return nil, err
	}
	return env, nil
}

// ParseAck validates an inbound envelope as either an acknowledgment or a
// problem report and decodes its body. Returns accepted=false for problem
// reports and explicit rejected statuses.
func ParseAck(raw []byte) (*Envelope, *AckBody, bool, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, nil, false, err
	}
	if err := env.Validate(TypeAck); err != nil {
		if errProblem := env.Validate(TypeProblemReport); errProblem != nil {
			return nil, nil, false, err
		}
		var body AckBody
		if err := env.DecodeBody(&body); err != nil {
			return nil, nil, false, err
		}
		return env, &body, false, nil
	}
	var body AckBody
	if err := env.DecodeBody(&body); err != nil {
		return nil, nil, false, err
	}
	return env, &body, body.Status != "rejected", nil
}
