package queue

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// MemoryStore はプロセス内で完結する Store 実装（テスト・単体実行用）
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*memoryJob
	seq  int64
}

type memoryJob struct {
	job *Job
	seq int64
}

// NewMemoryStore は空の MemoryStore を作成する
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*memoryJob)}
}

func (s *MemoryStore) Insert(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.seq++
	s.jobs[job.ID] = &memoryJob{job: cloneJob(job), seq: s.seq}
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, params ClaimParams) (mo.Option[*Job], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*memoryJob, 0)
	for _, mj := range s.jobs {
		if !slices.Contains(params.Kinds, mj.job.Kind) {
			continue
		}
		switch mj.job.Status {
		case StatusQueued:
			if mj.job.RunAt.After(params.Now) {
				continue
			}
		case StatusRunning:
			if params.StaleBefore.IsZero() || !mj.job.UpdatedAt.Before(params.StaleBefore) {
				continue
			}
		default:
			continue
		}
		candidates = append(candidates, mj)
	}
	if len(candidates) == 0 {
		return mo.None[*Job](), nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].job, candidates[j].job
		if !a.RunAt.Equal(b.RunAt) {
			return a.RunAt.Before(b.RunAt)
		}
		return candidates[i].seq < candidates[j].seq
	})

	job := candidates[0].job
	job.Status = StatusRunning
	job.Attempt++
	job.UpdatedAt = params.Now

	return mo.Some(cloneJob(job)), nil
}

func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusDone
		j.LastError = ""
	})
}

func (s *MemoryStore) Retry(_ context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusQueued
		j.RunAt = runAt
		j.LastError = lastErr
	})
}

func (s *MemoryStore) Bury(_ context.Context, id uuid.UUID, lastErr string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusDead
		j.LastError = lastErr
	})
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (mo.Option[*Job], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mj, ok := s.jobs[id]
	if !ok {
		return mo.None[*Job](), nil
	}
	return mo.Some(cloneJob(mj.job)), nil
}

func (s *MemoryStore) List(_ context.Context, status mo.Option[Status], limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*memoryJob, 0, len(s.jobs))
	for _, mj := range s.jobs {
		if st, ok := status.Get(); ok && mj.job.Status != st {
			continue
		}
		all = append(all, mj)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].seq > all[j].seq
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	jobs := make([]*Job, 0, len(all))
	for _, mj := range all {
		jobs = append(jobs, cloneJob(mj.job))
	}
	return jobs, nil
}

func (s *MemoryStore) update(id uuid.UUID, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mj, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	fn(mj.job)
	mj.job.UpdatedAt = time.Now()
	return nil
}

func cloneJob(j *Job) *Job {
	c := *j
	c.Args = slices.Clone(j.Args)
	return &c
}

var _ Store = (*MemoryStore)(nil)
