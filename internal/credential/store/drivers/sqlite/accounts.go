package sqlite

import (
	"context"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
)

type accountsRepo struct {
	db dbtx
}

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, account_id, email, display_name, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AccountID, a.Email, a.DisplayName, a.Role, a.PasswordHash, a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *accountsRepo) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, account_id, email, display_name, role, password_hash, created_at
		FROM accounts WHERE email = ?`, email))
}

func (r *accountsRepo) FindByAccountID(ctx context.Context, accountID string) (domain.Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, account_id, email, display_name, role, password_hash, created_at
		FROM accounts WHERE account_id = ?`, accountID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *accountsRepo) scanOne(row rowScanner) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.AccountID, &a.Email, &a.DisplayName, &a.Role, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return a, nil
}
