package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// Exporter mirrors compute passes into a PostgreSQL database so history
// from many devices can be queried in one place.
type Exporter struct {
	pool *pgxpool.Pool
}

// NewExporter connects to databaseURL and verifies the connection.
func NewExporter(ctx context.Context, databaseURL string) (*Exporter, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Exporter{pool: pool}, nil
}

func (e *Exporter) Close() {
	e.pool.Close()
}

// Migrate creates the export tables.
func (e *Exporter) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreatePasses,
		migrationCreateRecords,
	}
	for _, m := range migrations {
		if _, err := e.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Export writes a pass and its records. Re-exporting the same pass is a
// no-op.
func (e *Exporter) Export(ctx context.Context, host string, p stats.Pass) error {
	parsed, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("pass id %q: %w", p.ID, err)
	}
	id := [16]byte(parsed)

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO battery_passes (id, host, recorded_at, on_battery, total_mah)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, id, host, p.Timestamp, p.OnBattery, p.TotalMah)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range p.Records {
		batch.Queue(`
			INSERT INTO battery_records (pass_id, consumption_type, uid, user_id, power_mah)
			VALUES ($1, $2, $3, $4, $5)
		`, id, r.Type.String(), r.UID, r.UserID, r.PowerMah)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	return tx.Commit(ctx)
}

const migrationCreatePasses = `
CREATE TABLE IF NOT EXISTS battery_passes (
    id UUID PRIMARY KEY,
    host VARCHAR(255) NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    on_battery BOOLEAN NOT NULL,
    total_mah DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battery_passes_recorded_at ON battery_passes(recorded_at);
`

const migrationCreateRecords = `
CREATE TABLE IF NOT EXISTS battery_records (
    id BIGSERIAL PRIMARY KEY,
    pass_id UUID NOT NULL REFERENCES battery_passes(id) ON DELETE CASCADE,
    consumption_type VARCHAR(20) NOT NULL,
    uid INT NOT NULL,
    user_id INT NOT NULL,
    power_mah DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battery_records_pass_id ON battery_records(pass_id);
`
