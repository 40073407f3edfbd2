package sqlite

import (
	"context"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
)

type bindingsRepo struct {
	db dbtx
}

func (r *bindingsRepo) Create(ctx context.Context, b domain.DIDBinding) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO did_bindings (did, account_id, status, bound_at)
		VALUES (?, ?, ?, ?)`,
		b.DID, b.AccountID, b.Status, b.BoundAt,
	)
	// The primary key on did makes a second binding lose here rather than
	// overwrite; callers surface this as a conflict.
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *bindingsRepo) GetByDID(ctx context.Context, did string) (domain.DIDBinding, error) {
	var b domain.DIDBinding
	err := r.db.QueryRowContext(ctx, `
		SELECT did, account_id, status, bound_at
		FROM did_bindings WHERE did = ?`, did,
	).Scan(&b.DID, &b.AccountID, &b.Status, &b.BoundAt)
	if err != nil {
		return domain.DIDBinding{}, mapNotFound(err)
	}
	return b, nil
}

func (r *bindingsRepo) GetByAccountID(ctx context.Context, accountID string) (domain.DIDBinding, error) {
	var b domain.DIDBinding
	err := r.db.QueryRowContext(ctx, `
		SELECT did, account_id, status, bound_at
		FROM did_bindings WHERE account_id = ?`, accountID,
	).Scan(&b.DID, &b.AccountID, &b.Status, &b.BoundAt)
	if err != nil {
		return domain.DIDBinding{}, mapNotFound(err)
	}
	return b, nil
}
