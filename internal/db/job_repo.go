package db

import (
	"context"
	"time"

	"cinelog/internal/types"
)

// ============================================================
// JobLockRepository
// ============================================================

// JobLockRepository provides run locking via the job_locks table. The lock
// keeps a job from running twice at once when more than one scheduler
// process points at the same database. Locking uses INSERT ... ON CONFLICT
// DO UPDATE to atomically acquire a lock keyed by job name.
type JobLockRepository struct {
	db    DBTX
	clock types.Clock
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction). A nil clock defaults to the
// wall clock; tests inject a fixed one to pin lock expiry.
func NewJobLockRepository(db DBTX, clock types.Clock) *JobLockRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &JobLockRepository{db: db, clock: clock}
}

// Acquire attempts to insert a lock row for the job. Returns true if
// acquired, false if another worker holds an unexpired lock.
//
// SQL pattern:
//
//	INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
//	VALUES ($1, $2, $3, $4)
//	ON CONFLICT (id) DO UPDATE
//	  SET worker_id = EXCLUDED.worker_id,
//	      locked_at = EXCLUDED.locked_at,
//	      expires_at = EXCLUDED.expires_at
//	  WHERE job_locks.expires_at < $3
//
// If the existing row has expired (expires_at < current time), the UPDATE
// succeeds and the caller acquires the lock. If the row is still active,
// the ON CONFLICT WHERE clause prevents the update and zero rows are
// affected.
func (r *JobLockRepository) Acquire(ctx context.Context, jobName string, workerID string, ttl time.Duration) (bool, error) {
	// Compute expires_at as a concrete timestamp rather than using interval
	// arithmetic in SQL. This avoids PostgreSQL interval parsing issues with
	// Go's duration string format (e.g. "1h0m0s" is not a valid PG interval).
	now := r.clock.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		jobName,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	// RowsAffected is 1 if the INSERT succeeded (new row) or if the
	// ON CONFLICT UPDATE matched (expired lock reclaimed). It is 0 if
	// the lock exists and has not expired (another worker holds it).
	return tag.RowsAffected() > 0, nil
}

// Release deletes the lock row, but only when still held by the given
// worker. Releasing early lets the next scheduled run proceed without
// waiting out the TTL.
func (r *JobLockRepository) Release(ctx context.Context, jobName string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		jobName,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// ============================================================
// JobHistoryRepository
// ============================================================

// JobHistoryRepository provides data access for the job_history table. Job
// history entries track each scheduled run for operational visibility: when
// it ran, how many notifications it produced, and whether it failed.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a new job_history row with status 'running' and returns
// the auto-generated BIGSERIAL ID. The caller uses this ID to later call
// Finish with the outcome.
func (r *JobHistoryRepository) Start(ctx context.Context, jobName string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_name, started_at, status)
		 VALUES ($1, NOW(), 'running')
		 RETURNING id`,
		jobName,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish updates the job_history row with the final status, the number of
// notifications created, and an optional error message. The status should
// be 'success' or 'failed'. If jobErr is non-nil, its message is stored in
// the error column.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, created int, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, notifications_created = $3, error = $4
		 WHERE id = $1`,
		id,
		status,
		created,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}
