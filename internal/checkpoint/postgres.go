package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the checkpoint table. Applied by the migrate command.
const Schema = `
CREATE TABLE IF NOT EXISTS validation_checkpoints (
    job_id     TEXT PRIMARY KEY,
    server_id  INTEGER NOT NULL,
    state_data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_checkpoints_server
    ON validation_checkpoints (server_id, updated_at DESC);
`

// Migrate applies the checkpoint schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply checkpoint schema: %w", err)
	}
	return nil
}

// PostgresStore persists checkpoints in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  string
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: "24 hours"}
}

func (s *PostgresStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO validation_checkpoints (job_id, server_id, state_data, expires_at)
		VALUES ($1, $2, $3, now() + $4::interval)
		ON CONFLICT (job_id) DO UPDATE SET
			server_id  = EXCLUDED.server_id,
			state_data = EXCLUDED.state_data,
			updated_at = now(),
			expires_at = EXCLUDED.expires_at`,
		state.JobID, state.ServerID, data, s.ttl)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", state.JobID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, jobID string) (*State, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state_data
		FROM validation_checkpoints
		WHERE job_id = $1 AND expires_at > now()`,
		jobID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", jobID, err)
	}
	return Validate(data), nil
}

func (s *PostgresStore) LoadActiveForServer(ctx context.Context, serverID int) (*State, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state_data
		FROM validation_checkpoints
		WHERE server_id = $1
		  AND expires_at > now()
		  AND state_data->>'status' IN ('running', 'paused')
		ORDER BY updated_at DESC
		LIMIT 1`,
		serverID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active checkpoint for server %d: %w", serverID, err)
	}
	return Validate(data), nil
}

func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM validation_checkpoints WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}
