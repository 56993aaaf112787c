package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/interview-rag/internal/platform/queue"
)

// JobStore は jobs テーブルを使う queue.Store 実装です
// 複数ワーカーからの取得は FOR UPDATE SKIP LOCKED で排他します
type JobStore struct {
	db DBTX
}

// NewJobStore は新しい JobStore を作成します
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{db: pool}
}

var _ queue.Store = (*JobStore)(nil)

const jobColumns = `id, kind, args, attempt, status, last_error, run_at, created_at, updated_at`

func (s *JobStore) Insert(ctx context.Context, job *queue.Job) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (id, kind, args, attempt, status, last_error, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		UUIDToPgtype(job.ID),
		job.Kind,
		[]byte(job.Args),
		job.Attempt,
		string(job.Status),
		job.LastError,
		job.RunAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *JobStore) Claim(ctx context.Context, params queue.ClaimParams) (mo.Option[*queue.Job], error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'running', attempt = attempt + 1, updated_at = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE kind = ANY($1)
			  AND (
			    (status = 'queued' AND run_at <= $2)
			    OR ($3::timestamptz IS NOT NULL AND status = 'running' AND updated_at < $3)
			  )
			ORDER BY run_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		params.Kinds,
		params.Now,
		TimeToPgtz(params.StaleBefore),
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*queue.Job](), nil
		}
		return mo.None[*queue.Job](), fmt.Errorf("failed to claim job: %w", err)
	}
	return mo.Some(job), nil
}

func (s *JobStore) Complete(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, id, `UPDATE jobs SET status = 'done', last_error = '', updated_at = now() WHERE id = $1`)
}

func (s *JobStore) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	return s.exec(ctx, id, `UPDATE jobs SET status = 'queued', run_at = $2, last_error = $3, updated_at = now() WHERE id = $1`, runAt, lastErr)
}

func (s *JobStore) Bury(ctx context.Context, id uuid.UUID, lastErr string) error {
	return s.exec(ctx, id, `UPDATE jobs SET status = 'dead', last_error = $2, updated_at = now() WHERE id = $1`, lastErr)
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (mo.Option[*queue.Job], error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, UUIDToPgtype(id))

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*queue.Job](), nil
		}
		return mo.None[*queue.Job](), fmt.Errorf("failed to get job: %w", err)
	}
	return mo.Some(job), nil
}

func (s *JobStore) List(ctx context.Context, status mo.Option[queue.Status], limit int) ([]*queue.Job, error) {
	statusParam := pgtype.Text{}
	if st, ok := status.Get(); ok {
		statusParam = pgtype.Text{String: string(st), Valid: true}
	}
	limitParam := pgtype.Int4{}
	if limit > 0 {
		limitParam = pgtype.Int4{Int32: int32(limit), Valid: true}
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2`,
		statusParam,
		limitParam,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*queue.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) exec(ctx context.Context, id uuid.UUID, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, append([]any{UUIDToPgtype(id)}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return nil
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		id     pgtype.UUID
		args   []byte
		status string
		job    queue.Job
	)

	if err := row.Scan(
		&id,
		&job.Kind,
		&args,
		&job.Attempt,
		&status,
		&job.LastError,
		&job.RunAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.ID = PgtypeToUUID(id)
	job.Args = args
	job.Status = queue.Status(status)

	return &job, nil
}
