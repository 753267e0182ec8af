package store

import (
	"context"
	"encoding/json"
	"time"
)

type AuditEntry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Action     string          `json:"action"`
	Summary    string          `json:"summary"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Actor      string          `json:"actor"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (db *DB) AppendAudit(ctx context.Context, e *AuditEntry) error {
	meta := "{}"
	if len(e.Metadata) > 0 {
		meta = string(e.Metadata)
	}
	actor := e.Actor
	if actor == "" {
		actor = "system"
	}
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO audit_log (entity_type, entity_id, action, summary, metadata, actor) VALUES (?, ?, ?, ?, ?, ?)`),
		e.EntityType, e.EntityID, e.Action, e.Summary, meta, actor)
	return err
}

// ListAudit returns the newest entries first. An empty entityType lists all
// entities; a zero entityID lists every id of that type.
func (db *DB) ListAudit(ctx context.Context, entityType string, entityID int64, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, summary, metadata, actor, created_at FROM audit_log WHERE 1=1`
	var args []any
	if entityType != "" {
		query += ` AND entity_type=?`
		args = append(args, entityType)
	}
	if entityID != 0 {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var meta string
		var createdAt any
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Summary, &meta, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.Metadata = json.RawMessage(meta)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
