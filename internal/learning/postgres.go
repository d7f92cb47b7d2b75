package learning

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS learning_records (
	id         UUID PRIMARY KEY,
	agent      TEXT        NOT NULL,
	category   TEXT        NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// PostgresRecorder appends learning records to a postgres table. Writes are
// best effort from the caller's point of view: the agent logs a failed write
// and moves on.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRecorder connects to the database and ensures the records table
// exists.
func NewPostgresRecorder(ctx context.Context, url string, logger *zap.Logger) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create learning store pool: %w", err)
	}
	if _, err := pool.Exec(ctx, createRecordsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure learning_records table: %w", err)
	}
	return &PostgresRecorder{pool: pool, logger: logger.Named("learning")}, nil
}

// Record implements the agent recorder boundary.
func (p *PostgresRecorder) Record(ctx context.Context, rec schemas.LearningRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal learning payload: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO learning_records (id, agent, category, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Agent, rec.Category, payload, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert learning record: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresRecorder) Close() {
	p.pool.Close()
}
