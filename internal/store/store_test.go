package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonathan/video-pipeline/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "job_status:job_1", JobStatusKey("job_1"))
	assert.Equal(t, "step_status:job_1:script", StepStatusKey("job_1", "script"))
	assert.Equal(t, "pipeline_state:sess", PipelineStateKey("sess"))
}

func TestMemory_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "a", []byte("1"), 0))

	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	ok, err := m.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Delete(ctx, "a"))
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Put(ctx, "job_status:x", []byte("{}"), JobStatusTTL))

	now = now.Add(23 * time.Hour)
	ok, _ := m.Exists(ctx, "job_status:x")
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	ok, _ = m.Exists(ctx, "job_status:x")
	assert.False(t, ok)
	_, err := m.Get(ctx, "job_status:x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	src := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", src, 0))
	src[0] = 'z'

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestMemory_Keys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "step_status:j:a", nil, 0))
	require.NoError(t, m.Put(ctx, "step_status:j:b", nil, 0))
	require.NoError(t, m.Put(ctx, "job_status:j", nil, 0))

	assert.ElementsMatch(t, []string{"step_status:j:a", "step_status:j:b"}, m.Keys("step_status:j:"))
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	type record struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	}

	require.NoError(t, PutJSON(ctx, m, "r", record{Status: "running", Progress: 40}, time.Hour))

	var got record
	require.NoError(t, GetJSON(ctx, m, "r", &got))
	assert.Equal(t, record{Status: "running", Progress: 40}, got)

	err := GetJSON(ctx, m, "missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

// flakyStore fails the first n calls with a backend error.
type flakyStore struct {
	*Memory
	failures int
	calls    int
}

func (f *flakyStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.calls++
	if f.calls <= f.failures {
		return &Error{Op: "put", Key: key, Err: errors.New("connection refused")}
	}
	return f.Memory.Put(ctx, key, value, ttl)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	return f.Memory.Get(ctx, key)
}

func testRetry() retry.Config {
	return retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func TestRetrying_RecoversFromTransientFailure(t *testing.T) {
	inner := &flakyStore{Memory: NewMemory(), failures: 2}
	s := WithRetry(inner, testRetry())

	require.NoError(t, s.Put(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_PropagatesPersistentFailure(t *testing.T) {
	inner := &flakyStore{Memory: NewMemory(), failures: 10}
	s := WithRetry(inner, testRetry())

	err := s.Put(context.Background(), "k", []byte("v"), 0)
	require.Error(t, err)

	var storeErr *Error
	assert.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "put", storeErr.Op)
}

func TestRetrying_DoesNotRetryNotFound(t *testing.T) {
	inner := &flakyStore{Memory: NewMemory()}
	s := WithRetry(inner, testRetry())

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, inner.calls)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	_, isMemory := s.(*Retrying).Unwrap().(*Memory)
	assert.True(t, isMemory)

	_, err = Open(ctx, Options{Backend: BackendRedis})
	assert.ErrorContains(t, err, "REDIS_URL")

	_, err = Open(ctx, Options{Backend: BackendPostgres})
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.ErrorContains(t, err, "unknown state backend")
}
