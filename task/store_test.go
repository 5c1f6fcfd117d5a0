package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func TestTaskHappyPath(t *testing.T) {
	t.Parallel()

	store := NewMemStore(nil)
	ctx := context.Background()

	id, err := store.CreateTask(ctx, Metadata{}, nil)
	require.NoError(t, err)

	got, err := store.GetTask(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, StatusWorking, got.Status)

	require.NoError(t, store.UpdateStatus(ctx, id, StatusInputRequired, strPtr("need input"), nil))
	got, err = store.GetTask(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, StatusInputRequired, got.Status)

	require.NoError(t, store.CompleteTask(ctx, id, json.RawMessage(`{"answer":7}`), nil))
	got, err = store.GetTask(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	result, err := store.GetTaskResult(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, ResultCompleted, result.Kind)
	require.JSONEq(t, `{"answer":7}`, string(result.Value))

	err = store.UpdateStatus(ctx, id, StatusWorking, nil, nil)
	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestTaskBlockingResultRetrieval(t *testing.T) {
	t.Parallel()

	store := NewMemStore(nil)
	ctx := context.Background()

	id, err := store.CreateTask(ctx, Metadata{}, nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.CompleteTask(ctx, id, json.RawMessage(`{"data":42}`), nil)
	}()

	result, err := store.GetTaskResult(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, ResultCompleted, result.Kind)
	require.JSONEq(t, `{"data":42}`, string(result.Value))
}

func TestTaskGetTaskResultRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	store := NewMemStore(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	id, err := store.CreateTask(context.Background(), Metadata{}, nil)
	require.NoError(t, err)

	_, err = store.GetTaskResult(ctx, id, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTaskAuthContextBinding(t *testing.T) {
	t.Parallel()

	store := NewMemStore(nil)
	ctx := context.Background()

	id, err := store.CreateTask(ctx, Metadata{}, strPtr("user123"))
	require.NoError(t, err)

	_, err = store.GetTask(ctx, id, strPtr("user123"))
	require.NoError(t, err)

	_, err = store.GetTask(ctx, id, strPtr("user456"))
	var unauthErr *UnauthorizedError
	require.ErrorAs(t, err, &unauthErr)

	_, err = store.GetTask(ctx, id, nil)
	require.ErrorAs(t, err, &unauthErr)
}

func TestTaskListTasksFiltering(t *testing.T) {
	t.Parallel()

	store := NewMemStore(nil)
	ctx := context.Background()

	_, err := store.CreateTask(ctx, Metadata{}, strPtr("user1"))
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, Metadata{}, strPtr("user2"))
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, Metadata{}, nil)
	require.NoError(t, err)

	all, err := store.ListTasks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1) // only the unbound task is visible to an unauthenticated caller

	user1Tasks, err := store.ListTasks(ctx, strPtr("user1"))
	require.NoError(t, err)
	require.Len(t, user1Tasks, 1)

	user2Tasks, err := store.ListTasks(ctx, strPtr("user2"))
	require.NoError(t, err)
	require.Len(t, user2Tasks, 1)
}

func TestTaskTTLSweep(t *testing.T) {
	t.Parallel()

	store := NewMemStore(nil)
	ctx := context.Background()

	expiring, err := store.CreateTask(ctx, Metadata{TTL: i64Ptr(1)}, nil)
	require.NoError(t, err)
	persistent, err := store.CreateTask(ctx, Metadata{}, nil)
	require.NoError(t, err)

	removed := store.RunSweep(ctx, time.Now().Add(2*time.Second))
	require.Equal(t, 1, removed)

	_, err = store.GetTask(ctx, expiring, nil)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = store.GetTask(ctx, persistent, nil)
	require.NoError(t, err)
}

func TestStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	require.True(t, StatusWorking.CanTransitionTo(StatusInputRequired))
	require.True(t, StatusWorking.CanTransitionTo(StatusCompleted))
	require.True(t, StatusInputRequired.CanTransitionTo(StatusWorking))
	require.False(t, StatusCompleted.CanTransitionTo(StatusWorking))
	require.False(t, StatusFailed.CanTransitionTo(StatusCompleted))
	require.False(t, StatusCancelled.CanTransitionTo(StatusCompleted))
}
