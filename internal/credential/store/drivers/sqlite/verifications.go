package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
)

type verificationsRepo struct {
	db dbtx
}

const verificationColumns = `
	id, verifier_ref, policy, proof_request, status, proof_response, result,
	created_at, expires_at`

func (r *verificationsRepo) Create(ctx context.Context, s domain.VerificationSession) error {
	policy, err := marshalJSON(s.Policy)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO verification_sessions (`+verificationColumns+`)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, ?, ?)`,
		s.ID, mapOptionalString(s.VerifierRef), policy,
		string(s.ProofRequest), s.Status, s.CreatedAt, s.ExpiresAt,
	)
	return err
}

func (r *verificationsRepo) Get(ctx context.Context, id string) (domain.VerificationSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+verificationColumns+` FROM verification_sessions WHERE id = ?`, id)
	return scanVerification(row)
}

func (r *verificationsRepo) Complete(ctx context.Context, id string, status domain.VerificationStatus, result domain.VerificationResult, proofResponse []byte) error {
	resultJSON, err := marshalJSON(result)
	if err != nil {
		return err
	}

	// The status guard makes exactly one callback win; a second caller sees
	// zero rows affected and gets ErrStaleStatus.
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET status = ?, result = ?, proof_response = ?
		WHERE id = ? AND status IN ('pending', 'proof_received')`,
		status, resultJSON, mapOptionalBytes(proofResponse), id,
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

func (r *verificationsRepo) ListByVerifier(ctx context.Context, verifierRef string, limit, offset int) ([]domain.VerificationSession, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verification_sessions WHERE verifier_ref = ?`, verifierRef,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+verificationColumns+` FROM verification_sessions
		WHERE verifier_ref = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		verifierRef, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []domain.VerificationSession
	for rows.Next() {
		s, err := scanVerification(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

func (r *verificationsRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_sessions WHERE expires_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanVerification(row rowScanner) (domain.VerificationSession, error) {
	var (
		s             domain.VerificationSession
		verifierRef   sql.NullString
		policy        string
		proofRequest  string
		proofResponse sql.NullString
		result        sql.NullString
	)
	err := row.Scan(&s.ID, &verifierRef, &policy, &proofRequest, &s.Status,
		&proofResponse, &result, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.VerificationSession{}, mapNotFound(err)
	}
	s.VerifierRef = mapNullStringPtr(verifierRef)
	if err := json.Unmarshal([]byte(policy), &s.Policy); err != nil {
		return domain.VerificationSession{}, err
	}
	s.ProofRequest = json.RawMessage(proofRequest)
	if proofResponse.Valid {
		s.ProofResponse = json.RawMessage(proofResponse.String)
	}
	if result.Valid {
		var res domain.VerificationResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return domain.VerificationSession{}, err
		}
		s.Result = &res
	}
	return s, nil
}

func mapOptionalBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(b), Valid: true}
}
