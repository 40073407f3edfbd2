package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
	"github.com/unicred/unicred/pkg/idx"
	"github.com/unicred/unicred/pkg/slogx"
)

func TestHousekeepingSweep(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expiredAuth := domain.AuthSession{
		ID:        string(idx.New()),
		Nonce:     "stale-nonce",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-30 * time.Minute),
	}
	require.NoError(t, env.store.AuthSessions().Create(ctx, expiredAuth))

	liveAuth := domain.AuthSession{
		ID:        string(idx.New()),
		Nonce:     "live-nonce",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, env.store.AuthSessions().Create(ctx, liveAuth))

	expiredVerify := domain.VerificationSession{
		ID:        string(idx.New()),
		Policy:    domain.VerificationPolicy{CredentialType: "DegreeCredential"},
		Status:    domain.VerificationPending,
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-30 * time.Minute),
	}
	require.NoError(t, env.store.Verifications().Create(ctx, expiredVerify))

	env.createAccount(t, "EMP900", "sweep@corp.example", domain.RoleEmployer, "hunter2two")
	env.portal.TokenTTL = time.Nanosecond
	session, err := env.portal.Login(ctx, "sweep@corp.example", "hunter2two")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	hk := NewHousekeepingService(env.store, env.portal, slogx.New(slogx.Config{Service: "test"}), time.Hour)
	hk.Start()
	hk.Stop()

	_, err = env.store.AuthSessions().Get(ctx, expiredAuth.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.store.AuthSessions().Get(ctx, liveAuth.ID)
	require.NoError(t, err)

	_, err = env.store.Verifications().Get(ctx, expiredVerify.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.portal.Validate(ctx, session.Token)
	require.Error(t, err)
}
