package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
	"github.com/unicred/unicred/internal/obs"
	"github.com/unicred/unicred/pkg/cryptox"
	"github.com/unicred/unicred/pkg/idx"
	"github.com/unicred/unicred/pkg/protocol"
	"github.com/unicred/unicred/pkg/slogx"
)

// AuthService runs the wallet authentication flow: QR challenge, wallet
// callback, optional account binding. Sessions are single-use and expire at
// read time; the housekeeping sweep only garbage-collects rows.
type AuthService struct {
	Store           store.Store
	IssuerDID       string
	CallbackBaseURL string
	SessionTTL      time.Duration
}

// StartedAuth is the client-facing view of a fresh session.
type StartedAuth struct {
	Session   domain.AuthSession
	Request   *protocol.Envelope
	QRPayload string
}

// StartSession creates a pending session and the authorization request the
// wallet will answer.
func (s *AuthService) StartSession(ctx context.Context) (StartedAuth, error) {
	nonce, err := cryptox.GenerateNonce()
	if err != nil {
		return StartedAuth{}, err
	}

	now := time.Now().UTC()
	sess := domain.AuthSession{
		ID:        string(idx.New()),
		Nonce:     nonce,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.Store.AuthSessions().Create(ctx, sess); err != nil {
		return StartedAuth{}, err
	}

	req := s.buildRequest(sess)
	requestURI := s.CallbackBaseURL + "/auth/sessions/" + sess.ID + "/request"

	obs.RecordAuthSessionStart()
	slogx.FromContext(ctx).Info("auth session started", "session_id", sess.ID)
	return StartedAuth{
		Session:   sess,
		Request:   req,
		QRPayload: protocol.QRPayload(requestURI),
	}, nil
}

// GetRequest rebuilds the authorization request for an active session. The
// envelope ids are fresh each time; the nonce is what binds the response.
func (s *AuthService) GetRequest(ctx context.Context, sessionID string) (*protocol.Envelope, error) {
	sess, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.buildRequest(sess), nil
}

// HandleCallback processes the wallet's authorization response. Checks run
// in order and fail closed; the nonce comparison is constant-time. If the
// DID already has a binding the session is auto-linked to that account.
func (s *AuthService) HandleCallback(ctx context.Context, sessionID string, raw []byte) (domain.AuthSession, error) {
	l := slogx.FromContext(ctx).With("session_id", sessionID)

	sess, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return domain.AuthSession{}, err
	}
	if sess.DIDVerified {
		return domain.AuthSession{}, fmt.Errorf("%w: session already verified", ErrConflict)
	}

	env, body, err := protocol.ParseAuthResponse(raw)
	if err != nil {
		return domain.AuthSession{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if env.From == "" {
		return domain.AuthSession{}, fmt.Errorf("%w: response missing sender DID", ErrValidation)
	}
	if subtle.ConstantTimeCompare([]byte(body.Message), []byte(sess.Nonce)) != 1 {
		l.Warn("auth callback nonce mismatch")
		return domain.AuthSession{}, fmt.Errorf("%w: challenge mismatch", ErrValidation)
	}

	now := time.Now().UTC()
	holderDID := env.From

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AuthSessions().MarkVerified(ctx, sess.ID, holderDID, now); err != nil {
			return err
		}
		binding, err := tx.Bindings().GetByDID(ctx, holderDID)
		if errors.Is(err, store.ErrNotFound) {
			return nil // first time we see this DID; binding happens separately
		}
		if err != nil {
			return err
		}
		return tx.AuthSessions().BindAccount(ctx, sess.ID, binding.AccountID)
	})
	if err != nil {
		return domain.AuthSession{}, err
	}

	l.Info("auth callback verified", "did", holderDID)
	return s.Store.AuthSessions().Get(ctx, sessionID)
}

// BindAccount links the session's verified DID to the account matching the
// supplied university credentials. The caller restates the DID it believes it
// verified; a mismatch with the session's DID rejects the bind. Credential
// failure modes all return the same generic error so the endpoint leaks
// nothing about which part failed.
func (s *AuthService) BindAccount(ctx context.Context, sessionID, did, email, password string) (domain.DIDBinding, error) {
	l := slogx.FromContext(ctx).With("session_id", sessionID)

	sess, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return domain.DIDBinding{}, err
	}
	if !sess.DIDVerified || sess.DID == nil {
		return domain.DIDBinding{}, fmt.Errorf("%w: session has no verified DID", ErrValidation)
	}
	if did != *sess.DID {
		return domain.DIDBinding{}, fmt.Errorf("%w: DID does not match the session's verified DID", ErrValidation)
	}

	acct, err := s.Store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DIDBinding{}, ErrInvalidCredentials
		}
		return domain.DIDBinding{}, err
	}
	if acct.PasswordHash == "" || cryptox.VerifyPassword(password, acct.PasswordHash) != nil {
		return domain.DIDBinding{}, ErrInvalidCredentials
	}

	binding := domain.DIDBinding{
		DID:       *sess.DID,
		AccountID: acct.AccountID,
		Status:    domain.BindingStatusActive,
		BoundAt:   time.Now().UTC(),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Bindings().Create(ctx, binding); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("%w: DID already bound", ErrConflict)
			}
			return err
		}
		if err := tx.AuthSessions().BindAccount(ctx, sess.ID, acct.AccountID); err != nil {
			return err
		}
		return tx.Audit().Append(ctx, domain.AuditEntry{
			ID:         string(idx.New()),
			EventType:  domain.AuditDIDBound,
			EntityType: domain.EntityAccount,
			EntityID:   acct.AccountID,
			Actor:      binding.DID,
			ActorType:  "holder",
			Details:    map[string]any{"did": binding.DID},
			CreatedAt:  binding.BoundAt,
		})
	})
	if err != nil {
		return domain.DIDBinding{}, err
	}

	obs.RecordDIDBound()
	l.Info("did bound to account", "account_id", acct.AccountID)
	return binding, nil
}

// SessionStatus is the polling surface for the QR page.
type SessionStatus struct {
	ID          string  `json:"id"`
	DIDVerified bool    `json:"didVerified"`
	DID         *string `json:"did,omitempty"`
	Bound       bool    `json:"bound"`
}

func (s *AuthService) Status(ctx context.Context, sessionID string) (SessionStatus, error) {
	sess, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{
		ID:          sess.ID,
		DIDVerified: sess.DIDVerified,
		DID:         sess.DID,
		Bound:       sess.BoundAccountID != nil,
	}, nil
}

// CleanupExpired garbage-collects sessions past their ttl.
func (s *AuthService) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.Store.AuthSessions().DeleteExpiredBefore(ctx, now)
}

func (s *AuthService) activeSession(ctx context.Context, sessionID string) (domain.AuthSession, error) {
	sess, err := s.Store.AuthSessions().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthSession{}, ErrNotFound
		}
		return domain.AuthSession{}, err
	}
	if sess.Expired(time.Now().UTC()) {
		// Expired sessions behave exactly like missing ones.
		return domain.AuthSession{}, ErrNotFound
	}
	return sess, nil
}

func (s *AuthService) buildRequest(sess domain.AuthSession) *protocol.Envelope {
	callback := s.CallbackBaseURL + "/auth/sessions/" + sess.ID + "/callback"
	return protocol.NewAuthRequest(callback, "wallet authentication", sess.Nonce, s.IssuerDID)
}

func (s *AuthService) ttl() time.Duration {
	if s.SessionTTL <= 0 {
		return 5 * time.Minute
	}
	return s.SessionTTL
}
