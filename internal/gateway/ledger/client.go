package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Client talks JSON over HTTP to the ledger node. Writes go out exactly once
// because anchor and revoke are not idempotent on the node side; reads are
// retried with exponential backoff since they are safe to repeat.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type anchorPayload struct {
	CredentialHash  string     `json:"credentialHash"`
	MerkleRoot      string     `json:"merkleRoot"`
	HolderDID       string     `json:"holderDid"`
	IssuerDID       string     `json:"issuerDid"`
	SchemaRef       string     `json:"schemaUrl,omitempty"`
	RevocationNonce uint64     `json:"revocationNonce"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

type anchorReply struct {
	CredentialID string    `json:"credentialId"`
	TxRef        string    `json:"txRef"`
	AnchoredAt   time.Time `json:"anchoredAt"`
}

func (c *Client) AnchorCredential(ctx context.Context, req AnchorRequest) (AnchorResult, error) {
	var reply anchorReply
	err := c.post(ctx, "/credentials", anchorPayload{
		CredentialHash:  req.CredentialHash,
		MerkleRoot:      req.MerkleRoot,
		HolderDID:       req.HolderDID,
		IssuerDID:       req.IssuerDID,
		SchemaRef:       req.SchemaRef,
		RevocationNonce: req.RevocationNonce,
		ExpiresAt:       req.ExpiresAt,
	}, &reply)
	if err != nil {
		return AnchorResult{}, err
	}
	return AnchorResult{
		CredentialID: reply.CredentialID,
		TxRef:        reply.TxRef,
		AnchoredAt:   reply.AnchoredAt,
	}, nil
}

func (c *Client) RevokeCredential(ctx context.Context, credentialID, reason string) error {
	path := "/credentials/" + url.PathEscape(credentialID) + "/revoke"
	return c.post(ctx, path, map[string]string{"reason": reason}, nil)
}

func (c *Client) IsValid(ctx context.Context, credentialID string) (Validity, error) {
	var reply struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	path := "/credentials/" + url.PathEscape(credentialID) + "/validity"
	if err := c.getRetry(ctx, path, &reply); err != nil {
		return Validity{}, err
	}
	return Validity{Valid: reply.Valid, Reason: reply.Reason}, nil
}

func (c *Client) VerifyHash(ctx context.Context, credentialID, credentialHash string) (bool, error) {
	rec, err := c.GetCredential(ctx, credentialID)
	if err != nil {
		return false, err
	}
	return rec.CredentialHash == credentialHash, nil
}

func (c *Client) GetCredential(ctx context.Context, credentialID string) (Record, error) {
	var rec Record
	path := "/credentials/" + url.PathEscape(credentialID)
	if err := c.getRetry(ctx, path, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (c *Client) ListByHolder(ctx context.Context, holderDID string) ([]Record, error) {
	var reply struct {
		Items []Record `json:"items"`
	}
	path := "/holders/" + url.PathEscape(holderDID) + "/credentials"
	if err := c.getRetry(ctx, path, &reply); err != nil {
		return nil, err
	}
	return reply.Items, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	return decodeReply(resp, out)
}

// getRetry performs a GET with exponential backoff. Not-found is final, not
// retryable.
func (c *Client) getRetry(ctx context.Context, path string, out any) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	return backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if err := decodeReply(resp, out); err != nil {
			if resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
}

func decodeReply(resp *http.Response, out any) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ledger: %s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
