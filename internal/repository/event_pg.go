package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MorphGate/morphgate/internal/model"
)

type PostgresEventRepo struct {
	db *sqlx.DB
}

func NewPostgresEventRepo(db *sqlx.DB) *PostgresEventRepo {
	repo := &PostgresEventRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresEventRepo) Insert(ctx context.Context, ev *model.ExecutionEvent) error {
	if ev == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO execution_events (
			id, kind, market_id, tenant_id, caller, assets, shares, tx_hash, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, string(ev.Kind), ev.MarketID, ev.TenantID, ev.Caller, ev.Assets, ev.Shares, ev.TxHash, ev.CreatedAt)
	return err
}

func (r *PostgresEventRepo) List(ctx context.Context, tenantID string, limit int) ([]*model.ExecutionEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, kind, market_id, tenant_id, caller, assets, shares, tx_hash, created_at FROM execution_events`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if tenantID != "" {
		clauses = append(clauses, fmt.Sprintf("tenant_id = $%d", idx))
		args = append(args, tenantID)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.ExecutionEvent, 0, limit)
	for rows.Next() {
		var ev model.ExecutionEvent
		var kind string
		if err := rows.Scan(
			&ev.ID,
			&kind,
			&ev.MarketID,
			&ev.TenantID,
			&ev.Caller,
			&ev.Assets,
			&ev.Shares,
			&ev.TxHash,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		ev.Kind = model.ExecutionKind(kind)
		records = append(records, &ev)
	}
	return records, nil
}

func (r *PostgresEventRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS execution_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			market_id TEXT,
			tenant_id TEXT,
			caller TEXT,
			assets TEXT,
			shares TEXT,
			tx_hash TEXT,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_execution_events_tenant ON execution_events(tenant_id, created_at DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_execution_events_market ON execution_events(market_id, created_at DESC)`)
	return nil
}

func (r *PostgresEventRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM execution_events WHERE created_at < $1`, cutoff)
	return err
}
