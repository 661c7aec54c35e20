package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizdesk/internal/model"
	"github.com/pavelanni/quizdesk/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("QUIZDESK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("QUIZDESK_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, uri, "quizdesk_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Drop(context.Background())
		s.Close()
	})
	return s
}

func TestAttemptLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := model.Attempt{
		ID:        "a1",
		TraineeID: "t1",
		Date:      "2024-01-01",
		Status:    model.StatusInProgress,
		Answers:   []model.AnswerRecord{{Topic: "t", Question: "q", Answer: "x"}},
		CreatedAt: time.Now(),
	}
	created, err := s.CreateAttempt(ctx, a)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("expected version 1, got %d", created.Version)
	}

	dup := a
	dup.ID = "a2"
	if _, err := s.CreateAttempt(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	next := created.Clone()
	next.Status = model.StatusSubmitted
	if _, err := s.UpdateAttempt(ctx, next); err != nil {
		t.Fatalf("UpdateAttempt: %v", err)
	}
	if _, err := s.UpdateAttempt(ctx, created); !errors.Is(err, store.ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}

	got, err := s.FindAttempt(ctx, "t1", "2024-01-01")
	if err != nil {
		t.Fatalf("FindAttempt: %v", err)
	}
	if got.Status != model.StatusSubmitted || got.Version != 2 {
		t.Errorf("unexpected attempt %+v", got)
	}

	list, err := s.ListAttempts(ctx, store.AttemptFilter{From: "2024-01-01", To: "2024-01-31"})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(list))
	}
}

func TestUsersAndMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := model.User{ID: "u1", Email: "ann@example.com", Role: model.RoleTrainee, PasswordHash: "h", CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u2 := u
	u2.ID = "u2"
	if err := s.CreateUser(ctx, u2); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	got, err := s.GetUserByEmail(ctx, "ann@example.com")
	if err != nil || got.PasswordHash != "h" {
		t.Errorf("GetUserByEmail: %+v, %v", got, err)
	}
	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if v, err := s.GetMetadata(ctx, "k"); err != nil || v != "" {
		t.Errorf("expected empty metadata, got %q, %v", v, err)
	}
	if err := s.SetMetadata(ctx, "k", "v"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if v, _ := s.GetMetadata(ctx, "k"); v != "v" {
		t.Errorf("expected v, got %q", v)
	}
}
