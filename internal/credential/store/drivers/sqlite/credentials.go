package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
)

type credentialsRepo struct {
	db dbtx
}

const credentialColumns = `
	id, credential_hash, merkle_root, ledger_tx_ref, holder_did, account_id,
	issuer_did, credential_type, schema_ref, content_ref, revocation_nonce,
	issued_at, expires_at, is_revoked, revocation_reason, revoked_at,
	lifecycle_status, offered_at, fetched_at, acknowledged_at`

func (r *credentialsRepo) Create(ctx context.Context, rec domain.CredentialRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credential_records (`+credentialColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CredentialHash, rec.MerkleRoot, rec.LedgerTxRef, rec.HolderDID,
		rec.AccountID, rec.IssuerDID, rec.CredentialType, rec.SchemaRef,
		rec.ContentRef, rec.RevocationNonce, rec.IssuedAt,
		mapOptionalTime(rec.ExpiresAt), rec.IsRevoked,
		mapOptionalString(rec.RevocationReason), mapOptionalTime(rec.RevokedAt),
		rec.LifecycleStatus, mapOptionalTime(rec.OfferedAt),
		mapOptionalTime(rec.FetchedAt), mapOptionalTime(rec.AcknowledgedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *credentialsRepo) Get(ctx context.Context, id string) (domain.CredentialRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+` FROM credential_records WHERE id = ?`, id)
	return scanCredential(row)
}

func (r *credentialsRepo) List(ctx context.Context, limit, offset int) ([]domain.CredentialRecord, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credential_records`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+credentialColumns+` FROM credential_records
		ORDER BY issued_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs, err := collectCredentials(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (r *credentialsRepo) ListByHolder(ctx context.Context, holderDID string) ([]domain.CredentialRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+credentialColumns+` FROM credential_records
		WHERE holder_did = ? ORDER BY issued_at DESC`, holderDID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCredentials(rows)
}

func (r *credentialsRepo) MarkRevoked(ctx context.Context, id, reason string, at time.Time) error {
	// Conditioned on is_revoked = 0 so revocation happens exactly once.
	res, err := r.db.ExecContext(ctx, `
		UPDATE credential_records
		SET is_revoked = 1, revocation_reason = ?, revoked_at = ?
		WHERE id = ? AND is_revoked = 0`, reason, at, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return gerr
		}
		return store.ErrStaleStatus
	}
	return nil
}

func (r *credentialsRepo) AdvanceLifecycle(ctx context.Context, id string, next domain.LifecycleStatus, at time.Time) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.LifecycleStatus.CanAdvanceTo(next) {
		return store.ErrStaleStatus
	}

	var stampCol string
	switch next {
	case domain.LifecycleOffered:
		stampCol = "offered_at"
	case domain.LifecycleFetched:
		stampCol = "fetched_at"
	case domain.LifecycleAccepted, domain.LifecycleRejected:
		stampCol = "acknowledged_at"
	default:
		return store.ErrStaleStatus
	}

	// The WHERE clause re-checks the previous status so a concurrent
	// advance cannot be clobbered between the read and the write.
	res, err := r.db.ExecContext(ctx, `
		UPDATE credential_records
		SET lifecycle_status = ?, `+stampCol+` = ?
		WHERE id = ? AND lifecycle_status = ?`,
		next, at, id, rec.LifecycleStatus,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrStaleStatus
	}
	return nil
}

func scanCredential(row rowScanner) (domain.CredentialRecord, error) {
	var (
		rec          domain.CredentialRecord
		expiresAt    sql.NullTime
		reason       sql.NullString
		revokedAt    sql.NullTime
		offeredAt    sql.NullTime
		fetchedAt    sql.NullTime
		acknowledged sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.CredentialHash, &rec.MerkleRoot, &rec.LedgerTxRef,
		&rec.HolderDID, &rec.AccountID, &rec.IssuerDID, &rec.CredentialType,
		&rec.SchemaRef, &rec.ContentRef, &rec.RevocationNonce, &rec.IssuedAt,
		&expiresAt, &rec.IsRevoked, &reason, &revokedAt,
		&rec.LifecycleStatus, &offeredAt, &fetchedAt, &acknowledged,
	)
	if err != nil {
		return domain.CredentialRecord{}, mapNotFound(err)
	}
	rec.ExpiresAt = mapNullTimePtr(expiresAt)
	rec.RevocationReason = mapNullStringPtr(reason)
	rec.RevokedAt = mapNullTimePtr(revokedAt)
	rec.OfferedAt = mapNullTimePtr(offeredAt)
	rec.FetchedAt = mapNullTimePtr(fetchedAt)
	rec.AcknowledgedAt = mapNullTimePtr(acknowledged)
	return rec, nil
}

func collectCredentials(rows *sql.Rows) ([]domain.CredentialRecord, error) {
	var recs []domain.CredentialRecord
	for rows.Next() {
		rec, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
