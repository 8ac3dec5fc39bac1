package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// WorkerRegistry tracks live worker processes for operational visibility and
// stale-claim diagnosis.
type WorkerRegistry struct {
	db *sql.DB
}

// NewWorkerRegistry creates a registry over db.
func NewWorkerRegistry(db *sql.DB) *WorkerRegistry {
	return &WorkerRegistry{db: db}
}

// Heartbeat upserts the worker's liveness row.
func (r *WorkerRegistry) Heartbeat(ctx context.Context, workerID, hostname string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notify_workers (worker_id, hostname, last_heartbeat)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET hostname = $2, last_heartbeat = NOW()
	`, workerID, hostname)
	if err != nil {
		return fmt.Errorf("worker heartbeat: %w", err)
	}
	return nil
}

// Deregister removes the worker's liveness row on clean shutdown.
func (r *WorkerRegistry) Deregister(ctx context.Context, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM notify_workers WHERE worker_id = $1
	`, workerID)
	if err != nil {
		return fmt.Errorf("worker deregister: %w", err)
	}
	return nil
}
