package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers はデフォルトのワーカー数
	DefaultWorkers = 4
	// DefaultPollInterval は空振り時の待機時間
	DefaultPollInterval = time.Second
	// DefaultStaleAfter は running のまま放置されたジョブを再取得するまでの時間
	DefaultStaleAfter = 15 * time.Minute
)

// ErrUnknownKind は登録されていないジョブ種別が指定された場合のエラー
var ErrUnknownKind = errors.New("unknown job kind")

type registration struct {
	policy  Policy
	handler Handler
}

// Queue はジョブの登録・取得・実行・リトライ判定を行うランタイム
type Queue struct {
	store        Store
	workers      int
	pollInterval time.Duration
	staleAfter   time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.RWMutex
	handlers map[string]registration
}

// Option は Queue のオプション設定
type Option func(*Queue)

// WithWorkers はワーカー数を設定する
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithPollInterval は空振り時の待機時間を設定する
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithStaleAfter は running ジョブを再取得するまでの時間を設定する
func WithStaleAfter(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.staleAfter = d
		}
	}
}

// WithQueueLogger は Queue にロガーを設定する
func WithQueueLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithClock は現在時刻の取得関数を差し替える
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New は新しい Queue を作成する
func New(store Store, opts ...Option) *Queue {
	q := &Queue{
		store:        store,
		workers:      DefaultWorkers,
		pollInterval: DefaultPollInterval,
		staleAfter:   DefaultStaleAfter,
		logger:       slog.Default(),
		now:          time.Now,
		handlers:     make(map[string]registration),
	}

	for _, opt := range opts {
		opt(q)
	}

	if q.logger == nil {
		q.logger = slog.Default()
	}

	return q
}

// Register はジョブ種別にハンドラとリトライ方針を登録する
func (q *Queue) Register(kind string, policy Policy, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	q.handlers[kind] = registration{policy: policy, handler: handler}
}

// Enqueue はジョブを登録する。args は JSON にエンコードされる
func (q *Queue) Enqueue(ctx context.Context, kind string, args any) (Handle, error) {
	if kind == "" {
		return Handle{}, fmt.Errorf("%w: empty kind", ErrUnknownKind)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to encode %s job args: %w", kind, err)
	}

	now := q.now()
	job := &Job{
		ID:        uuid.New(),
		Kind:      kind,
		Args:      raw,
		Status:    StatusQueued,
		RunAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.store.Insert(ctx, job); err != nil {
		return Handle{}, fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}

	q.logger.Debug("job enqueued", "jobID", job.ID, "kind", kind)

	return Handle{ID: job.ID, Kind: kind}, nil
}

// Run はワーカーを起動し、ctx がキャンセルされるまでジョブを処理する
func (q *Queue) Run(ctx context.Context) error {
	kinds := q.kinds()
	if len(kinds) == 0 {
		return fmt.Errorf("no job handlers registered")
	}

	q.logger.Info("queue workers starting", "workers", q.workers, "kinds", kinds)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			q.work(gctx, worker)
			return nil
		})
	}

	err := g.Wait()
	q.logger.Info("queue workers stopped")
	return err
}

func (q *Queue) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := q.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			q.logger.Error("queue poll failed", "worker", worker, "error", err)
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(q.pollInterval):
		}
	}
}

// RunOnce は実行可能なジョブを1件処理する。処理した場合は true を返す
func (q *Queue) RunOnce(ctx context.Context) (bool, error) {
	now := q.now()
	claimed, err := q.store.Claim(ctx, ClaimParams{
		Kinds:       q.kinds(),
		Now:         now,
		StaleBefore: now.Add(-q.staleAfter),
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	job, ok := claimed.Get()
	if !ok {
		return false, nil
	}

	return true, q.process(ctx, job)
}

func (q *Queue) process(ctx context.Context, job *Job) error {
	reg, ok := q.registration(job.Kind)
	logger := q.logger.With("jobID", job.ID, "kind", job.Kind, "attempt", job.Attempt)

	// 終了処理はキャンセルされても記録する
	writeCtx := context.WithoutCancel(ctx)

	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
		logger.Error("job is dead", "error", err)
		return q.store.Bury(writeCtx, job.ID, err.Error())
	}

	logger.Debug("job started")
	res := q.invoke(ctx, reg.handler, job)

	switch res.Outcome {
	case OutcomeOK:
		if err := q.store.Complete(writeCtx, job.ID); err != nil {
			return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
		}
		logger.Debug("job completed")
		return nil

	case OutcomeRetryable:
		if job.Attempt > reg.policy.MaxRetries {
			logger.Error("job is dead: retries exhausted", "maxRetries", reg.policy.MaxRetries, "error", res.Err)
			if err := q.store.Bury(writeCtx, job.ID, res.Err.Error()); err != nil {
				return fmt.Errorf("failed to bury job %s: %w", job.ID, err)
			}
			return nil
		}

		runAt := q.now().Add(reg.policy.Backoff)
		logger.Warn("job failed, retry scheduled", "runAt", runAt, "error", res.Err)
		if err := q.store.Retry(writeCtx, job.ID, runAt, res.Err.Error()); err != nil {
			return fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
		}
		return nil

	default:
		logger.Error("job is dead: fatal error", "error", res.Err)
		if err := q.store.Bury(writeCtx, job.ID, res.Err.Error()); err != nil {
			return fmt.Errorf("failed to bury job %s: %w", job.ID, err)
		}
		return nil
	}
}

// invoke はハンドラを実行し、panic を Fatal に変換する
func (q *Queue) invoke(ctx context.Context, handler Handler, job *Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Fatal(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) registration(kind string) (registration, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	reg, ok := q.handlers[kind]
	return reg, ok
}

func (q *Queue) kinds() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	kinds := make([]string, 0, len(q.handlers))
	for kind := range q.handlers {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}
