package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store abstracts task persistence and lifecycle operations. The
// default implementation, MemStore, is process-bound and in-memory; an
// optional MongoStore backend persists tasks externally.
type Store interface {
	CreateTask(ctx context.Context, meta Metadata, authContext *string) (string, error)
	GetTask(ctx context.Context, taskID string, authContext *string) (Task, error)
	UpdateStatus(ctx context.Context, taskID string, newStatus Status, statusMessage *string, authContext *string) error
	CompleteTask(ctx context.Context, taskID string, value json.RawMessage, authContext *string) error
	FailTask(ctx context.Context, taskID string, errMessage string, authContext *string) error
	CancelTask(ctx context.Context, taskID string, reason *string, authContext *string) error
	GetTaskResult(ctx context.Context, taskID string, authContext *string) (ResultState, error)
	ListTasks(ctx context.Context, authContext *string) ([]Task, error)
	// RunSweep removes tasks whose TTL has elapsed. It is intended to be
	// invoked periodically by a caller-owned ticker goroutine.
	RunSweep(ctx context.Context, now time.Time) int
	// Count returns the number of tracked tasks.
	Count() int
}

type storedTask struct {
	mu          sync.RWMutex
	task        Task
	authContext *string
	w           *watch
}

// MemStore is the default in-memory Store implementation: a single
// RWMutex-guarded map from task id to entry, with a broadcast watch
// channel held behind the entry so subscribers survive map mutations.
type MemStore struct {
	defaultTTL *int64

	mu    sync.RWMutex
	tasks map[string]*storedTask
}

// NewMemStore constructs an empty MemStore. defaultTTL, when non-nil,
// is applied to tasks created without an explicit Metadata.TTL.
func NewMemStore(defaultTTL *int64) *MemStore {
	return &MemStore{defaultTTL: defaultTTL, tasks: make(map[string]*storedTask)}
}

var _ Store = (*MemStore)(nil)

// CreateTask implements Store.
func (s *MemStore) CreateTask(_ context.Context, meta Metadata, authContext *string) (string, error) {
	id := uuid.NewString()

	ttl := meta.TTL
	if ttl == nil {
		ttl = s.defaultTTL
	}

	entry := &storedTask{
		task: Task{
			TaskID:    id,
			Status:    StatusWorking,
			CreatedAt: time.Now().UTC(),
			TTL:       ttl,
		},
		authContext: authContext,
		w:           newWatch(ResultState{Kind: ResultPending}),
	}

	s.mu.Lock()
	s.tasks[id] = entry
	s.mu.Unlock()
	return id, nil
}

func (s *MemStore) lookup(taskID string) (*storedTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[taskID]
	return e, ok
}

// GetTask implements Store.
func (s *MemStore) GetTask(_ context.Context, taskID string, authContext *string) (Task, error) {
	e, ok := s.lookup(taskID)
	if !ok {
		return Task{}, &NotFoundError{TaskID: taskID}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !matchAuthContext(e.authContext, authContext) {
		return Task{}, &UnauthorizedError{TaskID: taskID}
	}
	return e.task, nil
}

// UpdateStatus implements Store.
func (s *MemStore) UpdateStatus(_ context.Context, taskID string, newStatus Status, statusMessage *string, authContext *string) error {
	e, ok := s.lookup(taskID)
	if !ok {
		return &NotFoundError{TaskID: taskID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !matchAuthContext(e.authContext, authContext) {
		return &UnauthorizedError{TaskID: taskID}
	}
	if !e.task.Status.CanTransitionTo(newStatus) {
		return &InvalidTransitionError{TaskID: taskID, From: e.task.Status, To: newStatus}
	}
	e.task.Status = newStatus
	if statusMessage != nil {
		e.task.StatusMessage = *statusMessage
	} else {
		e.task.StatusMessage = ""
	}
	return nil
}

// CompleteTask implements Store.
func (s *MemStore) CompleteTask(_ context.Context, taskID string, value json.RawMessage, authContext *string) error {
	e, ok := s.lookup(taskID)
	if !ok {
		return &NotFoundError{TaskID: taskID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !matchAuthContext(e.authContext, authContext) {
		return &UnauthorizedError{TaskID: taskID}
	}
	if !e.task.Status.CanTransitionTo(StatusCompleted) {
		return &InvalidTransitionError{TaskID: taskID, From: e.task.Status, To: StatusCompleted}
	}
	e.task.Status = StatusCompleted
	e.task.StatusMessage = "task completed successfully"
	e.w.publish(ResultState{Kind: ResultCompleted, Value: value})
	return nil
}

// FailTask implements Store.
func (s *MemStore) FailTask(_ context.Context, taskID string, errMessage string, authContext *string) error {
	e, ok := s.lookup(taskID)
	if !ok {
		return &NotFoundError{TaskID: taskID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !matchAuthContext(e.authContext, authContext) {
		return &UnauthorizedError{TaskID: taskID}
	}
	if !e.task.Status.CanTransitionTo(StatusFailed) {
		return &InvalidTransitionError{TaskID: taskID, From: e.task.Status, To: StatusFailed}
	}
	e.task.Status = StatusFailed
	e.task.StatusMessage = errMessage
	e.w.publish(ResultState{Kind: ResultFailed, Error: errMessage})
	return nil
}

// CancelTask implements Store.
func (s *MemStore) CancelTask(_ context.Context, taskID string, reason *string, authContext *string) error {
	e, ok := s.lookup(taskID)
	if !ok {
		return &NotFoundError{TaskID: taskID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !matchAuthContext(e.authContext, authContext) {
		return &UnauthorizedError{TaskID: taskID}
	}
	if !e.task.Status.CanTransitionTo(StatusCancelled) {
		return &InvalidTransitionError{TaskID: taskID, From: e.task.Status, To: StatusCancelled}
	}
	e.task.Status = StatusCancelled
	if reason != nil {
		e.task.StatusMessage = *reason
	}
	e.w.publish(ResultState{Kind: ResultCancelled})
	return nil
}

// GetTaskResult implements Store. It returns immediately if the task is
// already in a terminal state, otherwise blocks on the task's watch
// channel until a terminal transition is published or ctx is cancelled.
func (s *MemStore) GetTaskResult(ctx context.Context, taskID string, authContext *string) (ResultState, error) {
	e, ok := s.lookup(taskID)
	if !ok {
		return ResultState{}, &NotFoundError{TaskID: taskID}
	}

	e.mu.RLock()
	if !matchAuthContext(e.authContext, authContext) {
		e.mu.RUnlock()
		return ResultState{}, &UnauthorizedError{TaskID: taskID}
	}
	terminal := e.task.Status.terminal()
	e.mu.RUnlock()

	for {
		value, changed := e.w.snapshot()
		if terminal || value.Kind != ResultPending {
			return value, nil
		}
		select {
		case <-changed:
			terminal = true
		case <-ctx.Done():
			return ResultState{}, ctx.Err()
		}
	}
}

// ListTasks implements Store.
func (s *MemStore) ListTasks(_ context.Context, authContext *string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, e := range s.tasks {
		e.mu.RLock()
		if matchAuthContext(e.authContext, authContext) {
			out = append(out, e.task)
		}
		e.mu.RUnlock()
	}
	return out, nil
}

// RunSweep implements Store.
func (s *MemStore) RunSweep(_ context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.tasks {
		e.mu.RLock()
		ttl := e.task.TTL
		createdAt := e.task.CreatedAt
		e.mu.RUnlock()
		if ttl == nil {
			continue
		}
		expiry := createdAt.Add(time.Duration(*ttl) * time.Second)
		if !now.Before(expiry) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// Count implements Store.
func (s *MemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
