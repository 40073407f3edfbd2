package sqlite

import (
	"context"
	"encoding/json"

	"github.com/unicred/unicred/internal/credential/domain"
)

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	details, err := marshalJSON(e.Details)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, event_type, entity_type, entity_id, actor, actor_type, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventType, e.EntityType, e.EntityID, e.Actor, e.ActorType, details, e.CreatedAt,
	)
	return err
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, entity_type, entity_id, actor, actor_type, details, created_at
		FROM audit_log WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			details string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.EntityType, &e.EntityID,
			&e.Actor, &e.ActorType, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
