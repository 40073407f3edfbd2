package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
	"github.com/unicred/unicred/internal/gateway/content"
	"github.com/unicred/unicred/internal/gateway/identity"
	"github.com/unicred/unicred/internal/gateway/ledger"
	"github.com/unicred/unicred/internal/obs"
	"github.com/unicred/unicred/pkg/idx"
	"github.com/unicred/unicred/pkg/protocol"
	"github.com/unicred/unicred/pkg/slogx"
)

// IssuerService orchestrates credential issuance, delivery and revocation
// across the claims engine, the content store and the ledger. The ledger
// anchor is the pipeline's point of no return: everything before it aborts
// cleanly, everything after it that fails becomes a critical inconsistency.
type IssuerService struct {
	Store        store.Store
	Ledger       ledger.Gateway
	Content      content.Store
	Engine       identity.Engine
	FetchBaseURL string

	// DefaultTTL applies when an issue request carries no explicit ttl.
	// Zero issues non-expiring credentials.
	DefaultTTL time.Duration
}

// IssueRequest names the inputs of one issuance. The holder is resolved
// either from a verified and bound auth session or from a direct account id;
// the session takes precedence when both are set.
type IssueRequest struct {
	SessionID string
	AccountID string
	Claims    identity.DegreeClaims
	TTL       time.Duration
	Actor     string // who initiated the issuance, for the audit trail
}

// PrepareCredential runs every check that can fail before any side effect:
// schema validation and holder resolution. Returns the account and the holder
// DID the credential would be issued to.
func (s *IssuerService) PrepareCredential(ctx context.Context, req IssueRequest) (accountID, holderDID string, err error) {
	if err := s.Engine.ValidateSchema(req.Claims); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch {
	case req.SessionID != "":
		sess, err := s.Store.AuthSessions().Get(ctx, req.SessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", "", fmt.Errorf("%w: unknown auth session", ErrValidation)
			}
			return "", "", err
		}
		if !sess.DIDVerified || sess.DID == nil {
			return "", "", fmt.Errorf("%w: auth session has no verified DID", ErrValidation)
		}
		if sess.BoundAccountID == nil {
			return "", "", fmt.Errorf("%w: auth session is not bound to an account", ErrValidation)
		}
		return *sess.BoundAccountID, *sess.DID, nil

	case req.AccountID != "":
		binding, err := s.Store.Bindings().GetByAccountID(ctx, req.AccountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", "", fmt.Errorf("%w: account %s has no bound DID", ErrValidation, req.AccountID)
			}
			return "", "", err
		}
		return req.AccountID, binding.DID, nil

	default:
		return "", "", fmt.Errorf("%w: session id or account id is required", ErrValidation)
	}
}

// IssueCredential runs the full pipeline:
//
//	validate -> build document -> encrypt+store content -> fold commitment
//	-> anchor on ledger -> write record -> pin + publish state (best effort)
//
// A record-write failure after the anchor is reported as
// ErrCriticalInconsistency and logged with everything an operator needs to
// reconcile manually.
func (s *IssuerService) IssueCredential(ctx context.Context, req IssueRequest) (domain.CredentialRecord, error) {
	accountID, holderDID, err := s.PrepareCredential(ctx, req)
	if err != nil {
		return domain.CredentialRecord{}, err
	}
	l := slogx.FromContext(ctx).With("account_id", accountID)

	ttl := req.TTL
	if ttl == 0 {
		ttl = s.DefaultTTL
	}

	issued, err := s.Engine.IssueCredential(ctx, holderDID, req.Claims, ttl)
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	contentRef, err := s.Content.Put(ctx, issued.Document, holderDID)
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("%w: content store: %v", ErrDependency, err)
	}

	commitment, err := s.Engine.FoldIntoCommitment(ctx, issued.CredentialHash)
	if err != nil {
		return domain.CredentialRecord{}, err
	}

	// Point of no return.
	anchor, err := s.Ledger.AnchorCredential(ctx, ledger.AnchorRequest{
		CredentialHash:  issued.CredentialHash,
		MerkleRoot:      commitment.NewRoot,
		HolderDID:       holderDID,
		IssuerDID:       s.Engine.IssuerDID(),
		SchemaRef:       s.Engine.SchemaRef(),
		RevocationNonce: issued.RevocationNonce,
		ExpiresAt:       issued.ExpiresAt,
	})
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("%w: ledger anchor: %v", ErrDependency, err)
	}

	rec := domain.CredentialRecord{
		ID:              anchor.CredentialID,
		CredentialHash:  issued.CredentialHash,
		MerkleRoot:      commitment.NewRoot,
		LedgerTxRef:     anchor.TxRef,
		HolderDID:       holderDID,
		AccountID:       accountID,
		IssuerDID:       s.Engine.IssuerDID(),
		CredentialType:  identity.SchemaDegreeCredential,
		SchemaRef:       s.Engine.SchemaRef(),
		ContentRef:      contentRef,
		RevocationNonce: issued.RevocationNonce,
		IssuedAt:        issued.IssuedAt,
		ExpiresAt:       issued.ExpiresAt,
		LifecycleStatus: domain.LifecycleIssued,
	}
	if err := s.Store.Credentials().Create(ctx, rec); err != nil {
		obs.RecordInconsistency()
		l.Error("credential anchored but record write failed",
			"credential_id", anchor.CredentialID,
			"tx_ref", anchor.TxRef,
			"content_ref", contentRef,
			"error", err)
		s.auditInconsistency(ctx, anchor.CredentialID, anchor.TxRef, err)
		return domain.CredentialRecord{}, fmt.Errorf("%w: credential %s anchored at %s but not recorded: %v",
			ErrCriticalInconsistency, anchor.CredentialID, anchor.TxRef, err)
	}

	// Advisory steps; issuance already succeeded.
	if err := s.Content.Pin(ctx, contentRef); err != nil {
		l.Warn("content pin failed", "content_ref", contentRef, "error", err)
	}
	if err := s.Engine.PublishStateTransition(ctx, commitment); err != nil {
		l.Warn("state transition publish failed", "new_root", commitment.NewRoot, "error", err)
	}

	s.audit(ctx, domain.AuditCredentialIssued, anchor.CredentialID, req.Actor, map[string]any{
		"holder_did": holderDID,
		"tx_ref":     anchor.TxRef,
	})
	obs.RecordCredentialIssued()
	l.Info("credential issued", "credential_id", anchor.CredentialID, "holder_did", holderDID)
	return rec, nil
}

// GetOffer builds the credential offer for the holder's wallet. The offer is
// idempotent: repeating it after the lifecycle already advanced past offered
// returns the same envelope.
func (s *IssuerService) GetOffer(ctx context.Context, credentialID, holderDID string) (*protocol.Envelope, error) {
	rec, err := s.activeCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if rec.HolderDID != holderDID {
		// Wrong holder learns nothing beyond "no such credential".
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	if err := s.Store.Credentials().AdvanceLifecycle(ctx, rec.ID, domain.LifecycleOffered, now); err != nil &&
		!errors.Is(err, store.ErrStaleStatus) {
		return nil, err
	}

	return protocol.NewOffer(
		s.FetchBaseURL+"/credentials/"+rec.ID+"/fetch",
		rec.IssuerDID,
		[]protocol.OfferedCredential{{
			ID:     rec.ID,
			Type:   []string{"VerifiableCredential", rec.CredentialType},
			Schema: rec.SchemaRef,
		}},
	), nil
}

// FetchCredential decrypts and returns the credential document in answer to
// the wallet's fetch request. The sender DID must be the holder.
func (s *IssuerService) FetchCredential(ctx context.Context, credentialID string, raw []byte) (*protocol.Envelope, error) {
	env, err := protocol.ParseFetchRequest(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if env.From == "" {
		return nil, fmt.Errorf("%w: fetch request missing sender DID", ErrValidation)
	}

	rec, err := s.activeCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if rec.HolderDID != env.From {
		return nil, ErrNotFound
	}

	doc, err := s.Content.Get(ctx, rec.ContentRef, rec.HolderDID)
	if err != nil {
		return nil, fmt.Errorf("%w: content fetch: %v", ErrDependency, err)
	}

	now := time.Now().UTC()
	if err := s.Store.Credentials().AdvanceLifecycle(ctx, rec.ID, domain.LifecycleFetched, now); err != nil &&
		!errors.Is(err, store.ErrStaleStatus) {
		return nil, err
	}

	return protocol.NewFetchResponse(json.RawMessage(doc), rec.IssuerDID, rec.HolderDID, env.ThreadID), nil
}

// Acknowledge records the wallet's accept/reject of a fetched credential.
// The lifecycle only advances; a second acknowledgment conflicts.
func (s *IssuerService) Acknowledge(ctx context.Context, credentialID string, raw []byte) (bool, error) {
	env, _, accepted, err := protocol.ParseAck(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rec, err := s.activeCredential(ctx, credentialID)
	if err != nil {
		return false, err
	}
	if env.From != "" && rec.HolderDID != env.From {
		return false, ErrNotFound
	}

	next := domain.LifecycleAccepted
	if !accepted {
		next = domain.LifecycleRejected
	}
	if err := s.Store.Credentials().AdvanceLifecycle(ctx, rec.ID, next, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return false, fmt.Errorf("%w: credential already acknowledged", ErrConflict)
		}
		return false, err
	}
	return accepted, nil
}

// RevokeCredential revokes on the ledger first, then mirrors into the record
// store. The ledger owns revocation truth; a store failure after the ledger
// accepted the revocation is a critical inconsistency.
func (s *IssuerService) RevokeCredential(ctx context.Context, credentialID, reason, actor string) error {
	l := slogx.FromContext(ctx).With("credential_id", credentialID)

	rec, err := s.getCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if rec.IsRevoked {
		return fmt.Errorf("%w: credential already revoked", ErrConflict)
	}

	if err := s.Ledger.RevokeCredential(ctx, credentialID, reason); err != nil {
		return fmt.Errorf("%w: ledger revoke: %v", ErrDependency, err)
	}

	now := time.Now().UTC()
	if err := s.Store.Credentials().MarkRevoked(ctx, credentialID, reason, now); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			// A concurrent revoke won the store write; the ledger call above
			// should then have failed, so surface the disagreement.
			return fmt.Errorf("%w: concurrent revocation", ErrConflict)
		}
		obs.RecordInconsistency()
		l.Error("credential revoked on ledger but record update failed", "error", err)
		s.auditInconsistency(ctx, credentialID, rec.LedgerTxRef, err)
		return fmt.Errorf("%w: credential %s revoked on ledger but not recorded: %v",
			ErrCriticalInconsistency, credentialID, err)
	}

	if err := s.Content.Unpin(ctx, rec.ContentRef); err != nil {
		l.Warn("content unpin failed", "content_ref", rec.ContentRef, "error", err)
	}

	s.audit(ctx, domain.AuditCredentialRevoked, credentialID, actor, map[string]any{
		"reason": reason,
	})
	obs.RecordCredentialRevoked()
	l.Info("credential revoked", "reason", reason)
	return nil
}

func (s *IssuerService) GetCredential(ctx context.Context, credentialID string) (domain.CredentialRecord, error) {
	return s.getCredential(ctx, credentialID)
}

func (s *IssuerService) ListCredentials(ctx context.Context, limit, offset int) ([]domain.CredentialRecord, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.Credentials().List(ctx, limit, offset)
}

func (s *IssuerService) ListByHolder(ctx context.Context, holderDID string) ([]domain.CredentialRecord, error) {
	return s.Store.Credentials().ListByHolder(ctx, holderDID)
}

// AuditTrail returns the append-only event history for one credential.
func (s *IssuerService) AuditTrail(ctx context.Context, credentialID string) ([]domain.AuditEntry, error) {
	return s.Store.Audit().ListByEntity(ctx, domain.EntityCredential, credentialID)
}

func (s *IssuerService) getCredential(ctx context.Context, credentialID string) (domain.CredentialRecord, error) {
	rec, err := s.Store.Credentials().Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CredentialRecord{}, ErrNotFound
		}
		return domain.CredentialRecord{}, err
	}
	return rec, nil
}

// activeCredential resolves a credential that can still be delivered:
// present and not revoked.
func (s *IssuerService) activeCredential(ctx context.Context, credentialID string) (domain.CredentialRecord, error) {
	rec, err := s.getCredential(ctx, credentialID)
	if err != nil {
		return domain.CredentialRecord{}, err
	}
	if rec.IsRevoked {
		return domain.CredentialRecord{}, fmt.Errorf("%w: credential revoked", ErrConflict)
	}
	return rec, nil
}

func (s *IssuerService) audit(ctx context.Context, eventType, credentialID, actor string, details map[string]any) {
	err := s.Store.Audit().Append(ctx, domain.AuditEntry{
		ID:         string(idx.New()),
		EventType:  eventType,
		EntityType: domain.EntityCredential,
		EntityID:   credentialID,
		Actor:      actor,
		ActorType:  "admin",
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		slogx.FromContext(ctx).Warn("audit append failed", "event", eventType, "error", err)
	}
}

func (s *IssuerService) auditInconsistency(ctx context.Context, credentialID, txRef string, cause error) {
	err := s.Store.Audit().Append(ctx, domain.AuditEntry{
		ID:         string(idx.New()),
		EventType:  domain.AuditInconsistencyAlert,
		EntityType: domain.EntityCredential,
		EntityID:   credentialID,
		Actor:      "system",
		ActorType:  "system",
		Details: map[string]any{
			"tx_ref": txRef,
			"cause":  cause.Error(),
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		slogx.FromContext(ctx).Error("inconsistency audit append failed", "credential_id", credentialID, "error", err)
	}
}
