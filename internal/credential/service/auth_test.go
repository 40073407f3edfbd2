package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/pkg/protocol"
)

func TestAuthStartSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.auth.StartSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, started.Session.ID)
	require.Len(t, started.Session.Nonce, 64)
	require.True(t, strings.HasPrefix(started.QRPayload, "iden3comm://?request_uri="))

	var body protocol.AuthRequestBody
	require.NoError(t, started.Request.DecodeBody(&body))
	require.Equal(t, started.Session.Nonce, body.Message)
	require.Contains(t, body.CallbackURL, started.Session.ID)

	t.Run("request is retrievable while active", func(t *testing.T) {
		req, err := env.auth.GetRequest(ctx, started.Session.ID)
		require.NoError(t, err)

		var again protocol.AuthRequestBody
		require.NoError(t, req.DecodeBody(&again))
		require.Equal(t, started.Session.Nonce, again.Message)
	})
}

func TestAuthHandleCallback(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("valid response verifies the DID", func(t *testing.T) {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)

		sess, err := env.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, testHolderDID))
		require.NoError(t, err)
		require.True(t, sess.DIDVerified)
		require.NotNil(t, sess.DID)
		require.Equal(t, testHolderDID, *sess.DID)
	})

	t.Run("nonce mismatch is rejected", func(t *testing.T) {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)

		_, err = env.auth.HandleCallback(ctx, started.Session.ID, authResponse("wrong-nonce", testHolderDID))
		require.ErrorIs(t, err, ErrValidation)

		status, err := env.auth.Status(ctx, started.Session.ID)
		require.NoError(t, err)
		require.False(t, status.DIDVerified)
	})

	t.Run("missing sender DID is rejected", func(t *testing.T) {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)

		_, err = env.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, ""))
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("second callback conflicts", func(t *testing.T) {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)

		_, err = env.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, testHolderDID))
		require.NoError(t, err)

		_, err = env.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, testHolderDID))
		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		_, err := env.auth.HandleCallback(ctx, "no-such-session", authResponse("n", testHolderDID))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("garbage payload is rejected", func(t *testing.T) {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)

		_, err = env.auth.HandleCallback(ctx, started.Session.ID, []byte("not an envelope"))
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestAuthExpiredSessionBehavesLikeMissing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.auth.SessionTTL = -time.Minute // already expired at creation
	ctx := context.Background()

	started, err := env.auth.StartSession(ctx)
	require.NoError(t, err)

	_, err = env.auth.GetRequest(ctx, started.Session.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, testHolderDID))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAuthBindAccount(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.createAccount(t, "STU001", "alice@example.edu", domain.RoleStudent, "s3cretpass")

	verifiedSession := func(t *testing.T, holderDID string) string {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)
		_, err = env.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, holderDID))
		require.NoError(t, err)
		return started.Session.ID
	}

	t.Run("binds verified DID to account", func(t *testing.T) {
		sessionID := verifiedSession(t, testHolderDID)

		binding, err := env.auth.BindAccount(ctx, sessionID, testHolderDID, "alice@example.edu", "s3cretpass")
		require.NoError(t, err)
		require.Equal(t, "STU001", binding.AccountID)
		require.Equal(t, testHolderDID, binding.DID)

		// Audit trail records the binding.
		entries, err := env.store.Audit().ListByEntity(ctx, domain.EntityAccount, "STU001")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, domain.AuditDIDBound, entries[0].EventType)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		sessionID := verifiedSession(t, "did:iden3:polygon:amoy:other")

		_, errWrongPass := env.auth.BindAccount(ctx, sessionID, "did:iden3:polygon:amoy:other", "alice@example.edu", "wrong")
		_, errNoAccount := env.auth.BindAccount(ctx, sessionID, "did:iden3:polygon:amoy:other", "nobody@example.edu", "s3cretpass")
		require.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
		require.ErrorIs(t, errNoAccount, ErrInvalidCredentials)
		require.Equal(t, errWrongPass.Error(), errNoAccount.Error())
	})

	t.Run("binding twice conflicts and keeps one row", func(t *testing.T) {
		env.createAccount(t, "STU002", "bob@example.edu", domain.RoleStudent, "passw0rd")

		sessionID := verifiedSession(t, testHolderDID)
		_, err := env.auth.BindAccount(ctx, sessionID, testHolderDID, "bob@example.edu", "passw0rd")
		require.ErrorIs(t, err, ErrConflict)

		binding, err := env.store.Bindings().GetByDID(ctx, testHolderDID)
		require.NoError(t, err)
		require.Equal(t, "STU001", binding.AccountID)
	})

	t.Run("unverified session cannot bind", func(t *testing.T) {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)

		_, err = env.auth.BindAccount(ctx, started.Session.ID, testHolderDID, "alice@example.edu", "s3cretpass")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("mismatched DID cannot bind", func(t *testing.T) {
		sessionID := verifiedSession(t, "did:iden3:polygon:amoy:claimed")

		_, err := env.auth.BindAccount(ctx, sessionID, "did:iden3:polygon:amoy:someoneelse", "alice@example.edu", "s3cretpass")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("known DID auto-links on callback", func(t *testing.T) {
		started, err := env.auth.StartSession(ctx)
		require.NoError(t, err)

		sess, err := env.auth.HandleCallback(ctx, started.Session.ID, authResponse(started.Session.Nonce, testHolderDID))
		require.NoError(t, err)
		require.NotNil(t, sess.BoundAccountID)
		require.Equal(t, "STU001", *sess.BoundAccountID)
	})
}

func TestAuthCleanupExpired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	env.auth.SessionTTL = -time.Minute
	_, err := env.auth.StartSession(ctx)
	require.NoError(t, err)

	env.auth.SessionTTL = 5 * time.Minute
	keep, err := env.auth.StartSession(ctx)
	require.NoError(t, err)

	n, err := env.auth.CleanupExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = env.store.AuthSessions().Get(ctx, keep.Session.ID)
	require.NoError(t, err)
}
