package steps

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonathan/video-pipeline/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJob = "job_20260101_000000_deadbeef"

// complete drives a step through running, awaiting_approval, approved, completed.
func complete(t *testing.T, tr *Tracker, step Name) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []Status{StatusRunning, StatusAwaitingApproval, StatusApproved, StatusCompleted} {
		_, err := tr.Transition(ctx, testJob, step, s, Update{})
		require.NoError(t, err, "step %s -> %s", step, s)
	}
}

func TestTracker_GetDefaultsToPending(t *testing.T) {
	tr := NewTracker(store.NewMemory(), nil)
	rec, err := tr.Get(context.Background(), testJob, Script)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, Script, rec.Step)
}

func TestTracker_HappyPathKeepsData(t *testing.T) {
	tr := NewTracker(store.NewMemory(), nil)
	ctx := context.Background()

	_, err := tr.Transition(ctx, testJob, Info, StatusRunning, Update{})
	require.NoError(t, err)
	_, err = tr.Transition(ctx, testJob, Info, StatusAwaitingApproval, Update{Data: json.RawMessage(`{"kind":"info"}`)})
	require.NoError(t, err)
	_, err = tr.Transition(ctx, testJob, Info, StatusApproved, Update{})
	require.NoError(t, err)
	rec, err := tr.Transition(ctx, testJob, Info, StatusCompleted, Update{})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	assert.JSONEq(t, `{"kind":"info"}`, string(rec.Data))

	stored, err := tr.Get(ctx, testJob, Info)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestTracker_RejectsIllegalEdge(t *testing.T) {
	tr := NewTracker(store.NewMemory(), nil)
	complete(t, tr, Info)

	_, err := tr.Transition(context.Background(), testJob, Info, StatusRunning, Update{})
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusCompleted, te.From)
	assert.Equal(t, StatusRunning, te.To)
}

func TestTracker_RejectsOutOfOrderStart(t *testing.T) {
	tr := NewTracker(store.NewMemory(), nil)

	_, err := tr.Transition(context.Background(), testJob, Script, StatusRunning, Update{})
	var se *SequenceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Outline, se.Blocker)
	assert.Contains(t, err.Error(), "predecessor outline")

	rec, err := tr.Get(context.Background(), testJob, Script)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status, "rejected transition must not write")
}

func TestTracker_RegenerateClearsData(t *testing.T) {
	tr := NewTracker(store.NewMemory(), nil)
	ctx := context.Background()

	_, err := tr.Transition(ctx, testJob, Info, StatusRunning, Update{})
	require.NoError(t, err)
	_, err = tr.Transition(ctx, testJob, Info, StatusAwaitingApproval, Update{Data: json.RawMessage(`{"v":1}`)})
	require.NoError(t, err)
	_, err = tr.Transition(ctx, testJob, Info, StatusRegenerate, Update{})
	require.NoError(t, err)

	rec, err := tr.Transition(ctx, testJob, Info, StatusRunning, Update{})
	require.NoError(t, err)
	assert.Nil(t, rec.Data)
}

func TestTracker_SignalsOnWrite(t *testing.T) {
	tr := NewTracker(store.NewMemory(), nil)
	wake, release := tr.Signals().Subscribe(testJob, Info)
	defer release()

	_, err := tr.Transition(context.Background(), testJob, Info, StatusRunning, Update{})
	require.NoError(t, err)

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("expected wake-up after transition")
	}
}

func TestTracker_RestoreAndList(t *testing.T) {
	tr := NewTracker(store.NewMemory(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Restore(ctx, testJob, Info, StatusCompleted, json.RawMessage(`{"kind":"info"}`)))
	records, err := tr.List(ctx, testJob)
	require.NoError(t, err)
	require.Len(t, records, len(Order))
	assert.Equal(t, StatusCompleted, records[0].Status)
	assert.Equal(t, StatusPending, records[1].Status)

	_, err = tr.Transition(ctx, testJob, Transcribe, StatusRunning, Update{})
	assert.NoError(t, err)
}

func TestSignals_ReleaseStopsDelivery(t *testing.T) {
	s := NewSignals()
	ch, release := s.Subscribe("job", Info)
	release()
	s.Notify("job", Info)

	select {
	case <-ch:
		t.Fatal("released subscriber should not be woken")
	default:
	}
}
