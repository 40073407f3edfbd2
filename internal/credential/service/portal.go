package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
	"github.com/unicred/unicred/pkg/cryptox"
	"github.com/unicred/unicred/pkg/slogx"
)

// PortalService authenticates employer accounts for the verification portal.
// Tokens are HS256 JWTs backed by a volatile server-side session record:
// both the signature and the record must check out, so restart or logout
// invalidates tokens regardless of their exp claim.
type PortalService struct {
	Store     store.Store
	JWTSecret []byte
	Issuer    string
	TokenTTL  time.Duration

	mu       sync.Mutex
	sessions map[string]domain.PortalSession
}

type portalClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Login authenticates an employer account. Every failure mode returns the
// same generic error: unknown email, wrong password and wrong role are
// indistinguishable to the caller.
func (s *PortalService) Login(ctx context.Context, email, password string) (domain.PortalSession, error) {
	l := slogx.FromContext(ctx)

	acct, err := s.Store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PortalSession{}, ErrInvalidCredentials
		}
		return domain.PortalSession{}, err
	}
	if acct.Role != domain.RoleEmployer {
		return domain.PortalSession{}, ErrInvalidCredentials
	}
	if acct.PasswordHash == "" || cryptox.VerifyPassword(password, acct.PasswordHash) != nil {
		return domain.PortalSession{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl())

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, portalClaims{
		Email: acct.Email,
		Role:  acct.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   acct.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        cryptox.MustGenerateToken(cryptox.TokenSize128),
		},
	}).SignedString(s.JWTSecret)
	if err != nil {
		return domain.PortalSession{}, err
	}

	sess := domain.PortalSession{
		Token:       token,
		AccountID:   acct.AccountID,
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
		Role:        acct.Role,
		ExpiresAt:   expiresAt,
	}

	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[string]domain.PortalSession)
	}
	s.sessions[cryptox.FingerprintToken(token)] = sess
	s.mu.Unlock()

	l.Info("portal login", "account_id", acct.AccountID)
	return sess, nil
}

// Validate checks both the JWT signature/claims and the server-side record.
// Expired records are deleted on read.
func (s *PortalService) Validate(ctx context.Context, token string) (domain.PortalSession, error) {
	parsed, err := jwt.ParseWithClaims(token, &portalClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.JWTSecret, nil
	}, jwt.WithIssuer(s.Issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.PortalSession{}, ErrInvalidCredentials
	}

	key := cryptox.FingerprintToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return domain.PortalSession{}, ErrInvalidCredentials
	}
	if sess.Expired(time.Now().UTC()) {
		delete(s.sessions, key)
		return domain.PortalSession{}, ErrInvalidCredentials
	}
	return sess, nil
}

// Logout drops the server-side record; the JWT is dead from then on even if
// its exp claim is still in the future.
func (s *PortalService) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, cryptox.FingerprintToken(token))
}

// Sweep removes expired records and returns how many were dropped.
func (s *PortalService) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

func (s *PortalService) ttl() time.Duration {
	if s.TokenTTL <= 0 {
		return 24 * time.Hour
	}
	return s.TokenTTL
}
