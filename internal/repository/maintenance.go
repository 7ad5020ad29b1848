package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	ticketing_base_url   TEXT NOT NULL,
	ticketing_auth_token TEXT NOT NULL,
	active               BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS outcome_records (
	correlation_id TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL REFERENCES tenants (id),
	ticket_id      TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ,
	duration_ms    BIGINT,
	error_type     TEXT,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS outcome_records_tenant_started_idx
	ON outcome_records (tenant_id, started_at DESC);
`

// Maintenance is the privileged store path used by migration and retention
// tooling only. It is constructed from a separate admin DSN and is the only
// type allowed to touch rows without a tenant scope; nothing in the
// request-serving code holds a reference to it.
type Maintenance struct {
	pool *pgxpool.Pool
}

func NewMaintenance(ctx context.Context, adminDatabaseURL string) (*Maintenance, error) {
	pool, err := pgxpool.New(ctx, adminDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create admin pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping admin pg: %w", err)
	}
	return &Maintenance{pool: pool}, nil
}

func (m *Maintenance) Close() {
	m.pool.Close()
}

// Migrate applies the schema. Idempotent.
func (m *Maintenance) Migrate(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PurgeTerminalBefore removes terminal records older than the cutoff across
// all tenants. Retention is owned by operations, not by the pipeline.
func (m *Maintenance) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := m.pool.Exec(ctx, `
		DELETE FROM outcome_records
		WHERE status IN ('success', 'failure') AND completed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge outcomes: %w", err)
	}
	return tag.RowsAffected(), nil
}
