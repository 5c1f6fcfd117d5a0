package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoStore is an optional persisted Store backend, for deployments
// where task state must survive process restarts or be shared across
// server instances. It follows the same Store-interface-pluggability
// idiom used elsewhere in this codebase: a default in-memory
// implementation (MemStore) plus an alternate backend satisfying the
// same interface.
//
// MongoStore does not implement blocking GetTaskResult via a local
// watch channel (the broadcast primitive is process-local by
// construction); it instead polls the document at PollInterval until a
// terminal state is observed or ctx is cancelled.
type MongoStore struct {
	collection   *mongo.Collection
	pollInterval time.Duration
}

type taskDocument struct {
	TaskID        string          `bson:"_id"`
	Status        Status          `bson:"status"`
	StatusMessage string          `bson:"status_message,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	TTL           *int64          `bson:"ttl,omitempty"`
	AuthContext   *string         `bson:"auth_context,omitempty"`
	ResultKind    ResultKind      `bson:"result_kind"`
	ResultValue   json.RawMessage `bson:"result_value,omitempty"`
	ResultError   string          `bson:"result_error,omitempty"`
}

// NewMongoStore builds a MongoStore using the provided collection. The
// collection should be from a connected mongo.Client.
func NewMongoStore(collection *mongo.Collection, pollInterval time.Duration) *MongoStore {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &MongoStore{collection: collection, pollInterval: pollInterval}
}

var _ Store = (*MongoStore)(nil)

// CreateTask implements Store.
func (s *MongoStore) CreateTask(ctx context.Context, meta Metadata, authContext *string) (string, error) {
	id := uuid.NewString()
	doc := taskDocument{
		TaskID:      id,
		Status:      StatusWorking,
		CreatedAt:   time.Now().UTC(),
		TTL:         meta.TTL,
		AuthContext: authContext,
		ResultKind:  ResultPending,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("task: mongo insert %q: %w", id, err)
	}
	return id, nil
}

func (s *MongoStore) find(ctx context.Context, taskID string) (taskDocument, error) {
	var doc taskDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": taskID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return taskDocument{}, &NotFoundError{TaskID: taskID}
	}
	if err != nil {
		return taskDocument{}, fmt.Errorf("task: mongo find %q: %w", taskID, err)
	}
	return doc, nil
}

func toTask(doc taskDocument) Task {
	return Task{
		TaskID:        doc.TaskID,
		Status:        doc.Status,
		StatusMessage: doc.StatusMessage,
		CreatedAt:     doc.CreatedAt,
		TTL:           doc.TTL,
	}
}

// GetTask implements Store.
func (s *MongoStore) GetTask(ctx context.Context, taskID string, authContext *string) (Task, error) {
	doc, err := s.find(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if !matchAuthContext(doc.AuthContext, authContext) {
		return Task{}, &UnauthorizedError{TaskID: taskID}
	}
	return toTask(doc), nil
}

func (s *MongoStore) transition(ctx context.Context, taskID string, authContext *string, to Status, update bson.M) error {
	doc, err := s.find(ctx, taskID)
	if err != nil {
		return err
	}
	if !matchAuthContext(doc.AuthContext, authContext) {
		return &UnauthorizedError{TaskID: taskID}
	}
	if !doc.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{TaskID: taskID, From: doc.Status, To: to}
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("task: mongo update %q: %w", taskID, err)
	}
	return nil
}

// UpdateStatus implements Store.
func (s *MongoStore) UpdateStatus(ctx context.Context, taskID string, newStatus Status, statusMessage *string, authContext *string) error {
	msg := ""
	if statusMessage != nil {
		msg = *statusMessage
	}
	return s.transition(ctx, taskID, authContext, newStatus, bson.M{
		"status":         newStatus,
		"status_message": msg,
	})
}

// CompleteTask implements Store.
func (s *MongoStore) CompleteTask(ctx context.Context, taskID string, value json.RawMessage, authContext *string) error {
	return s.transition(ctx, taskID, authContext, StatusCompleted, bson.M{
		"status":         StatusCompleted,
		"status_message": "task completed successfully",
		"result_kind":    ResultCompleted,
		"result_value":   value,
	})
}

// FailTask implements Store.
func (s *MongoStore) FailTask(ctx context.Context, taskID string, errMessage string, authContext *string) error {
	return s.transition(ctx, taskID, authContext, StatusFailed, bson.M{
		"status":         StatusFailed,
		"status_message": errMessage,
		"result_kind":    ResultFailed,
		"result_error":   errMessage,
	})
}

// CancelTask implements Store.
func (s *MongoStore) CancelTask(ctx context.Context, taskID string, reason *string, authContext *string) error {
	msg := ""
	if reason != nil {
		msg = *reason
	}
	return s.transition(ctx, taskID, authContext, StatusCancelled, bson.M{
		"status":         StatusCancelled,
		"status_message": msg,
		"result_kind":    ResultCancelled,
	})
}

// GetTaskResult implements Store by polling, since the task's
// terminal-state notification is not visible across processes.
func (s *MongoStore) GetTaskResult(ctx context.Context, taskID string, authContext *string) (ResultState, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		doc, err := s.find(ctx, taskID)
		if err != nil {
			return ResultState{}, err
		}
		if !matchAuthContext(doc.AuthContext, authContext) {
			return ResultState{}, &UnauthorizedError{TaskID: taskID}
		}
		if doc.Status.terminal() {
			return ResultState{Kind: doc.ResultKind, Value: doc.ResultValue, Error: doc.ResultError}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ResultState{}, ctx.Err()
		}
	}
}

// ListTasks implements Store.
func (s *MongoStore) ListTasks(ctx context.Context, authContext *string) ([]Task, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("task: mongo list: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]Task, 0)
	for cursor.Next(ctx) {
		var doc taskDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("task: mongo decode: %w", err)
		}
		if matchAuthContext(doc.AuthContext, authContext) {
			out = append(out, toTask(doc))
		}
	}
	return out, cursor.Err()
}

// RunSweep implements Store.
func (s *MongoStore) RunSweep(ctx context.Context, now time.Time) int {
	res, err := s.collection.DeleteMany(ctx, bson.M{
		"ttl": bson.M{"$ne": nil},
		"$expr": bson.M{
			"$lte": bson.A{
				bson.M{"$add": bson.A{"$created_at", bson.M{"$multiply": bson.A{"$ttl", 1000}}}},
				now,
			},
		},
	})
	if err != nil {
		return 0
	}
	return int(res.DeletedCount)
}

// Count implements Store.
func (s *MongoStore) Count() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0
	}
	return int(n)
}
