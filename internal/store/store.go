// Package store defines the document store used by every service and its
// SQL implementation. The MongoDB implementation lives in store/mongostore.
package store

import (
	"context"
	"errors"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique key (user email, attempt
	// trainee+date) is already taken.
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrStale is returned when an attempt was modified since it was read.
	ErrStale = errors.New("store: stale version")
)

// Unavailable classifies an unexpected backend failure during op.
func Unavailable(op string, err error) error {
	return apperr.Dependency(op+": document store unavailable", err)
}

// AttemptFilter narrows ListAttempts. Zero fields do not filter.
// From and To bound Date inclusively.
type AttemptFilter struct {
	TraineeID     string
	QuestionSetID string
	Date          string
	Status        model.AttemptStatus
	From          string
	To            string
	Limit         int
}

// QuestionSetFilter narrows ListQuestionSets.
type QuestionSetFilter struct {
	Date      string
	CreatedBy string
}

type Users interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)
}

type QuestionSets interface {
	CreateQuestionSet(ctx context.Context, qs model.QuestionSet) error
	GetQuestionSet(ctx context.Context, id string) (model.QuestionSet, error)
	ListQuestionSets(ctx context.Context, f QuestionSetFilter) ([]model.QuestionSet, error)
	UpdateQuestionSet(ctx context.Context, qs model.QuestionSet) error
	DeleteQuestionSet(ctx context.Context, id string) error
}

// Attempts persists attempts. At most one attempt exists per
// (TraineeID, Date); CreateAttempt returns ErrDuplicate otherwise.
type Attempts interface {
	// CreateAttempt stores a new attempt with version 1 and returns it.
	CreateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error)
	GetAttempt(ctx context.Context, id string) (model.Attempt, error)
	FindAttempt(ctx context.Context, traineeID, date string) (model.Attempt, error)
	ListAttempts(ctx context.Context, f AttemptFilter) ([]model.Attempt, error)
	// UpdateAttempt replaces the attempt if the stored version still equals
	// a.Version and returns the record with the incremented version.
	UpdateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error)
	DeleteAttempt(ctx context.Context, id string) error
}

// Metadata is a small key-value table for bookkeeping such as import hashes.
type Metadata interface {
	// GetMetadata returns "" and a nil error when the key is missing.
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

// Store is the full document store handed to the services.
type Store interface {
	Users
	QuestionSets
	Attempts
	Metadata
	Ping(ctx context.Context) error
	Close() error
}
