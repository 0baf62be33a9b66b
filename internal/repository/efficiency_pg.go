package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresVolumeRepo is the durable backend for the efficiency
// accumulator. Volumes are NUMERIC so wei-scale totals never overflow.
type PostgresVolumeRepo struct {
	db *sqlx.DB
}

func NewPostgresVolumeRepo(db *sqlx.DB) *PostgresVolumeRepo {
	repo := &PostgresVolumeRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresVolumeRepo) GetVolume(ctx context.Context, marketID string) (*big.Int, *big.Int, error) {
	var matched, pooled string
	query := `SELECT matched::text, pooled::text FROM market_volumes WHERE market_id = $1`

	err := r.db.QueryRowxContext(ctx, query, marketID).Scan(&matched, &pooled)
	if errors.Is(err, sql.ErrNoRows) {
		// no row yet means zero volume
		return big.NewInt(0), big.NewInt(0), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load market volume: %w", err)
	}
	return parseNumeric(matched), parseNumeric(pooled), nil
}

func (r *PostgresVolumeRepo) AddVolume(ctx context.Context, marketID string, matched, pooled *big.Int) error {
	query := `
		INSERT INTO market_volumes (market_id, matched, pooled, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4)
		ON CONFLICT (market_id)
		DO UPDATE SET matched = market_volumes.matched + $2::numeric,
		              pooled = market_volumes.pooled + $3::numeric,
		              updated_at = $4
	`

	_, err := r.db.ExecContext(ctx, query, marketID, matched.String(), pooled.String(), time.Now().UTC())
	return err
}

func (r *PostgresVolumeRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS market_volumes (
			market_id TEXT PRIMARY KEY,
			matched NUMERIC NOT NULL DEFAULT 0,
			pooled NUMERIC NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ
		)
	`)
	return err
}

func parseNumeric(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}
