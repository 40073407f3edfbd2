package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
)

type authSessionsRepo struct {
	db dbtx
}

func (r *authSessionsRepo) Create(ctx context.Context, s domain.AuthSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (id, nonce, did, did_verified, verified_at, bound_account_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Nonce, mapOptionalString(s.DID), s.DIDVerified,
		mapOptionalTime(s.VerifiedAt), mapOptionalString(s.BoundAccountID),
		s.CreatedAt, s.ExpiresAt,
	)
	return err
}

func (r *authSessionsRepo) Get(ctx context.Context, id string) (domain.AuthSession, error) {
	var (
		s          domain.AuthSession
		did        sql.NullString
		verifiedAt sql.NullTime
		boundTo    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, nonce, did, did_verified, verified_at, bound_account_id, created_at, expires_at
		FROM auth_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Nonce, &did, &s.DIDVerified, &verifiedAt, &boundTo, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.AuthSession{}, mapNotFound(err)
	}
	s.DID = mapNullStringPtr(did)
	s.VerifiedAt = mapNullTimePtr(verifiedAt)
	s.BoundAccountID = mapNullStringPtr(boundTo)
	return s, nil
}

func (r *authSessionsRepo) MarkVerified(ctx context.Context, id, did string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_sessions SET did = ?, did_verified = 1, verified_at = ?
		WHERE id = ?`, did, at, id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *authSessionsRepo) BindAccount(ctx context.Context, id, accountID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_sessions SET bound_account_id = ? WHERE id = ?`, accountID, id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *authSessionsRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_sessions WHERE expires_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
