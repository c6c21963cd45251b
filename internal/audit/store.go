// Package audit persists credential-free connection-test events in Postgres.
package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/bank-relay/internal/models"
)

const schema = `CREATE TABLE IF NOT EXISTS connection_test_audit (
	id SERIAL PRIMARY KEY,
	request_id TEXT NOT NULL UNIQUE,
	correlation_id TEXT NOT NULL DEFAULT '',
	bank_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	message TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);
ALTER TABLE connection_test_audit ADD COLUMN IF NOT EXISTS correlation_id TEXT NOT NULL DEFAULT '';`

const insertEvent = `INSERT INTO connection_test_audit
	(request_id, correlation_id, bank_id, outcome, success, message, duration_ms, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (request_id) DO NOTHING`

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create connection_test_audit table: %w", err)
	}
	return nil
}

// Insert stores ev. Redelivered events with a known request id are ignored;
// the request id is generated per request by the API, so distinct requests
// never collide even when callers reuse a correlation id.
func (s *Store) Insert(ctx context.Context, ev models.ConnectionTestEvent) error {
	_, err := s.db.ExecContext(ctx, insertEvent,
		ev.RequestID, ev.CorrelationID, ev.BankID, string(ev.Outcome), ev.Success, ev.Message, ev.DurationMS, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event %s: %w", ev.RequestID, err)
	}
	return nil
}
