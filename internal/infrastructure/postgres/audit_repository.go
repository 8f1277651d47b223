package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"linkproxy/internal/domain/audit"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id               UUID PRIMARY KEY,
		request_id       TEXT,
		operation        TEXT NOT NULL,
		status           INTEGER NOT NULL,
		outcome          TEXT NOT NULL,
		error_code       TEXT,
		item_fingerprint TEXT,
		duration_ms      BIGINT NOT NULL,
		occurred_at      TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS audit_events_occurred_at_idx ON audit_events (occurred_at DESC);
`

// AuditRepository stores audit events in PostgreSQL. It is both an
// audit.Sink and an audit.Reader.
type AuditRepository struct {
	db *DB
}

var (
	_ audit.Sink   = (*AuditRepository)(nil)
	_ audit.Reader = (*AuditRepository)(nil)
)

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// EnsureSchema creates the audit_events table if it does not exist.
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

func (r *AuditRepository) Name() string {
	return "postgres"
}

func (r *AuditRepository) Write(ctx context.Context, e *audit.Event) error {
	return r.Insert(ctx, e)
}

// Insert stores a single event. Re-inserting the same ID is a no-op.
func (r *AuditRepository) Insert(ctx context.Context, e *audit.Event) error {
	query := `
		INSERT INTO audit_events (id, request_id, operation, status, outcome, error_code, item_fingerprint, duration_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, nullString(e.RequestID), e.Operation, e.Status, e.Outcome,
		nullString(e.ErrorCode), nullString(e.ItemFingerprint), e.DurationMS, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*audit.Event, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, request_id, operation, status, outcome, error_code, item_fingerprint, duration_ms, occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		var e audit.Event
		var requestID, errorCode, fingerprint sql.NullString

		if err := rows.Scan(
			&e.ID, &requestID, &e.Operation, &e.Status, &e.Outcome,
			&errorCode, &fingerprint, &e.DurationMS, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		e.RequestID = requestID.String
		e.ErrorCode = errorCode.String
		e.ItemFingerprint = fingerprint.String
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Count returns the number of stored events.
func (r *AuditRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
