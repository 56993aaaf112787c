package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func getJob(t *testing.T, store Store, id uuid.UUID) *Job {
	t.Helper()
	opt, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, opt.IsPresent())
	return opt.MustGet()
}

type echoArgs struct {
	Value string `json:"value"`
}

func TestQueue_Ok(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	q := New(store)

	var got echoArgs
	q.Register("echo", Policy{MaxRetries: 3}, func(ctx context.Context, job *Job) Result {
		if err := job.DecodeArgs(&got); err != nil {
			return Fatal(err)
		}
		return Ok()
	})

	h, err := q.Enqueue(ctx, "echo", echoArgs{Value: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo", h.Kind)

	processed, err := q.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, "hello", got.Value)

	job := getJob(t, store, h.ID)
	assert.Equal(t, StatusDone, job.Status)
	assert.Equal(t, 1, job.Attempt)

	processed, err = q.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestQueue_RetryableExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	q := New(store, WithClock(clock.Now))

	var calls int
	q.Register("flaky", Policy{MaxRetries: 3, Backoff: time.Minute}, func(ctx context.Context, job *Job) Result {
		calls++
		return Retryable(errors.New("provider unavailable"))
	})

	h, err := q.Enqueue(ctx, "flaky", struct{}{})
	require.NoError(t, err)

	// 1回目
	processed, err := q.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	job := getJob(t, store, h.ID)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, clock.Now().Add(time.Minute), job.RunAt)
	assert.Equal(t, "provider unavailable", job.LastError)

	// バックオフ中は取得されない
	processed, err = q.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
		processed, err = q.RunOnce(ctx)
		require.NoError(t, err)
		require.True(t, processed)
	}

	assert.Equal(t, 4, calls)
	job = getJob(t, store, h.ID)
	assert.Equal(t, StatusDead, job.Status)
	assert.Equal(t, 4, job.Attempt)
	assert.Equal(t, "provider unavailable", job.LastError)

	clock.Advance(time.Hour)
	processed, err = q.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestQueue_RetryableThenOk(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	q := New(store, WithClock(clock.Now))

	q.Register("once", Policy{MaxRetries: 3, Backoff: 30 * time.Second}, func(ctx context.Context, job *Job) Result {
		if job.Attempt == 1 {
			return Retryable(errors.New("transient"))
		}
		return Ok()
	})

	h, err := q.Enqueue(ctx, "once", nil)
	require.NoError(t, err)

	_, err = q.RunOnce(ctx)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = q.RunOnce(ctx)
	require.NoError(t, err)

	job := getJob(t, store, h.ID)
	assert.Equal(t, StatusDone, job.Status)
	assert.Equal(t, 2, job.Attempt)
}

func TestQueue_FatalIsNeverRetried(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	q := New(store, WithClock(clock.Now))

	var calls int
	q.Register("broken", Policy{MaxRetries: 5}, func(ctx context.Context, job *Job) Result {
		calls++
		return Fatal(errors.New("document not found"))
	})

	h, err := q.Enqueue(ctx, "broken", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = q.RunOnce(ctx)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	assert.Equal(t, 1, calls)
	job := getJob(t, store, h.ID)
	assert.Equal(t, StatusDead, job.Status)
	assert.Equal(t, "document not found", job.LastError)
}

func TestQueue_PanicBecomesFatal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	q := New(store)

	q.Register("panics", Policy{MaxRetries: 3}, func(ctx context.Context, job *Job) Result {
		panic("boom")
	})

	h, err := q.Enqueue(ctx, "panics", nil)
	require.NoError(t, err)

	processed, err := q.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	job := getJob(t, store, h.ID)
	assert.Equal(t, StatusDead, job.Status)
	assert.Contains(t, job.LastError, "boom")
}

func TestQueue_StaleRunningJobIsReclaimed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	q := New(store, WithClock(clock.Now), WithStaleAfter(time.Minute))
	q.Register("slow", Policy{}, func(ctx context.Context, job *Job) Result { return Ok() })

	h, err := q.Enqueue(ctx, "slow", nil)
	require.NoError(t, err)

	// ワーカーが取得したまま停止した状態を作る
	_, err = store.Claim(ctx, ClaimParams{Kinds: []string{"slow"}, Now: clock.Now()})
	require.NoError(t, err)

	processed, err := q.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	clock.Advance(2 * time.Minute)
	processed, err = q.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	job := getJob(t, store, h.ID)
	assert.Equal(t, StatusDone, job.Status)
	assert.Equal(t, 2, job.Attempt)
}

func TestQueue_Run(t *testing.T) {
	store := NewMemoryStore()
	q := New(store, WithWorkers(3), WithPollInterval(5*time.Millisecond))

	const total = 20
	var done atomic.Int32
	q.Register("count", Policy{}, func(ctx context.Context, job *Job) Result {
		done.Add(1)
		return Ok()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < total; i++ {
		_, err := q.Enqueue(ctx, "count", i)
		require.NoError(t, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- q.Run(ctx) }()

	require.Eventually(t, func() bool {
		return done.Load() == total
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	jobs, err := store.List(context.Background(), mo.Some(StatusDone), 0)
	require.NoError(t, err)
	assert.Len(t, jobs, total)
}

func TestQueue_RunWithoutHandlers(t *testing.T) {
	q := New(NewMemoryStore())
	assert.Error(t, q.Run(context.Background()))
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	q := New(store)
	q.Register("a", Policy{}, func(ctx context.Context, job *Job) Result { return Fatal(errors.New("nope")) })

	first, err := q.Enqueue(ctx, "a", nil)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "a", nil)
	require.NoError(t, err)

	_, err = q.RunOnce(ctx)
	require.NoError(t, err)

	all, err := store.List(ctx, mo.None[Status](), 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	dead, err := store.List(ctx, mo.Some(StatusDead), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, first.ID, dead[0].ID)

	limited, err := store.List(ctx, mo.None[Status](), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("dead")
	require.NoError(t, err)
	assert.Equal(t, StatusDead, st)

	_, err = ParseStatus("zombie")
	assert.Error(t, err)
}
