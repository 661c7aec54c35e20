package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/quizdesk/internal/model"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *SQLStore, id, email string, role model.Role) model.User {
	t.Helper()
	u := model.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "hash-" + id,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return u
}

func newTestAttempt(id, trainee, date string) model.Attempt {
	return model.Attempt{
		ID:            id,
		TraineeID:     trainee,
		QuestionSetID: "qs-1",
		Date:          date,
		SessionTitle:  "Session " + date,
		Answers: []model.AnswerRecord{
			{Topic: "basics", Question: "What is Go?", Answer: "a language"},
		},
		Status:    model.StatusInProgress,
		CreatedAt: time.Now(),
	}
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	insertTestUser(t, s, "u1", "ann@example.com", model.RoleTrainee)

	u, err := s.GetUserByEmail(ctx, "ann@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.ID != "u1" || u.PasswordHash != "hash-u1" || u.Role != model.RoleTrainee {
		t.Errorf("unexpected user %+v", u)
	}

	// Duplicate email.
	err = s.CreateUser(ctx, model.User{ID: "u2", Email: "ann@example.com", Role: model.RoleAdmin, CreatedAt: time.Now()})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	u.Role = model.RoleAdmin
	u.PasswordHash = "new-hash"
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Role != model.RoleAdmin || got.PasswordHash != "new-hash" {
		t.Errorf("update not applied: %+v", got)
	}

	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateUser(ctx, model.User{ID: "missing", Email: "x@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}

	insertTestUser(t, s, "u3", "bob@example.com", model.RoleTrainee)
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	if err := s.DeleteUser(ctx, "u3"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, "u3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestQuestionSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sets := []model.QuestionSet{
		{ID: "a", Date: "2024-01-01", SessionTitle: "Intro", CreatedBy: "admin1"},
		{ID: "b", Date: "2024-01-01", SessionTitle: "Extra", CreatedBy: "admin2"},
		{ID: "c", Date: "2024-01-02", SessionTitle: "Day two", CreatedBy: "admin1"},
	}
	for i, qs := range sets {
		qs.Questions = []model.Question{{Topic: "t", Question: "q", CorrectAnswer: "secret"}}
		qs.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.CreateQuestionSet(ctx, qs); err != nil {
			t.Fatalf("CreateQuestionSet: %v", err)
		}
	}

	tests := []struct {
		name    string
		filter  QuestionSetFilter
		wantIDs []string
	}{
		{"no filter", QuestionSetFilter{}, []string{"c", "a", "b"}},
		{"shared date", QuestionSetFilter{Date: "2024-01-01"}, []string{"a", "b"}},
		{"by author", QuestionSetFilter{CreatedBy: "admin1"}, []string{"c", "a"}},
		{"no match", QuestionSetFilter{Date: "2030-01-01"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListQuestionSets(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListQuestionSets: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d sets, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("position %d: expected %q, got %q", i, id, got[i].ID)
				}
			}
		})
	}

	qs, err := s.GetQuestionSet(ctx, "a")
	if err != nil {
		t.Fatalf("GetQuestionSet: %v", err)
	}
	if qs.Questions[0].CorrectAnswer != "secret" {
		t.Errorf("stored set should keep the answer key")
	}
	qs.SessionTitle = "Renamed"
	if err := s.UpdateQuestionSet(ctx, qs); err != nil {
		t.Fatalf("UpdateQuestionSet: %v", err)
	}
	qs, _ = s.GetQuestionSet(ctx, "a")
	if qs.SessionTitle != "Renamed" {
		t.Errorf("expected renamed title, got %q", qs.SessionTitle)
	}

	if err := s.DeleteQuestionSet(ctx, "a"); err != nil {
		t.Fatalf("DeleteQuestionSet: %v", err)
	}
	if _, err := s.GetQuestionSet(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptUniquePerTraineeAndDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, newTestAttempt("att-1", "t1", "2024-01-01"))
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if a.Version != 1 {
		t.Errorf("expected version 1, got %d", a.Version)
	}

	_, err = s.CreateAttempt(ctx, newTestAttempt("att-2", "t1", "2024-01-01"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same trainee, other date; other trainee, same date.
	if _, err := s.CreateAttempt(ctx, newTestAttempt("att-3", "t1", "2024-01-02")); err != nil {
		t.Errorf("other date: %v", err)
	}
	if _, err := s.CreateAttempt(ctx, newTestAttempt("att-4", "t2", "2024-01-01")); err != nil {
		t.Errorf("other trainee: %v", err)
	}

	found, err := s.FindAttempt(ctx, "t1", "2024-01-01")
	if err != nil {
		t.Fatalf("FindAttempt: %v", err)
	}
	if found.ID != "att-1" {
		t.Errorf("expected att-1, got %q", found.ID)
	}
	if _, err := s.FindAttempt(ctx, "t3", "2024-01-01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptConcurrentCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := newTestAttempt("att-"+string(rune('a'+i)), "t1", "2024-01-01")
			_, errs[i] = s.CreateAttempt(ctx, a)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicate):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Errorf("expected 1 success and %d duplicates, got %d and %d", n-1, ok, dup)
	}
}

func TestAttemptOptimisticUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, newTestAttempt("att-1", "t1", "2024-01-01"))
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	first := a.Clone()
	first.Status = model.StatusSubmitted
	updated, err := s.UpdateAttempt(ctx, first)
	if err != nil {
		t.Fatalf("UpdateAttempt: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}

	// A writer still holding version 1 loses.
	stale := a.Clone()
	stale.Remarks = "late"
	if _, err := s.UpdateAttempt(ctx, stale); !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}

	got, err := s.GetAttempt(ctx, "att-1")
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.Status != model.StatusSubmitted || got.Remarks != "" || got.Version != 2 {
		t.Errorf("unexpected stored attempt %+v", got)
	}

	missing := newTestAttempt("nope", "t9", "2024-01-01")
	missing.Version = 1
	if _, err := s.UpdateAttempt(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAttemptsFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []struct {
		id, trainee, date string
		status            model.AttemptStatus
	}{
		{"a1", "t1", "2024-01-01", model.StatusSubmitted},
		{"a2", "t1", "2024-01-02", model.StatusInProgress},
		{"a3", "t2", "2024-01-01", model.StatusEvaluated},
		{"a4", "t2", "2024-01-03", model.StatusSubmitted},
	}
	for _, sd := range seed {
		a := newTestAttempt(sd.id, sd.trainee, sd.date)
		a.Status = sd.status
		if _, err := s.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    AttemptFilter
		wantCount int
	}{
		{"no filter", AttemptFilter{}, 4},
		{"by trainee", AttemptFilter{TraineeID: "t1"}, 2},
		{"by date", AttemptFilter{Date: "2024-01-01"}, 2},
		{"by status", AttemptFilter{Status: model.StatusSubmitted}, 2},
		{"by range", AttemptFilter{From: "2024-01-02", To: "2024-01-03"}, 2},
		{"by question set", AttemptFilter{QuestionSetID: "qs-1"}, 4},
		{"limit", AttemptFilter{QuestionSetID: "qs-1", Limit: 1}, 1},
		{"combined", AttemptFilter{TraineeID: "t2", Status: model.StatusEvaluated}, 1},
		{"no match", AttemptFilter{TraineeID: "t3"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListAttempts(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAttempts: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("expected %d attempts, got %d", tt.wantCount, len(got))
			}
		})
	}

	all, _ := s.ListAttempts(ctx, AttemptFilter{})
	if all[0].Date != "2024-01-03" {
		t.Errorf("expected newest date first, got %s", all[0].Date)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetMetadata(ctx, "missing")
	if err != nil || v != "" {
		t.Fatalf("expected empty value, got %q, %v", v, err)
	}
	if err := s.SetMetadata(ctx, "k", "one"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata(ctx, "k", "two"); err != nil {
		t.Fatalf("SetMetadata upsert: %v", err)
	}
	v, err = s.GetMetadata(ctx, "k")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != "two" {
		t.Errorf("expected two, got %q", v)
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestUser(t, s, "t1", "ann@example.com", model.RoleTrainee)
	a := newTestAttempt("a1", "t1", "2024-01-01")
	a.Status = model.StatusEvaluated
	a.Evaluation = &model.Evaluation{TotalScore: 8, MaxScore: 10, Percentage: 80, Grade: "B+"}
	if _, err := s.CreateAttempt(ctx, a); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	// Trainee no longer exists.
	if _, err := s.CreateAttempt(ctx, newTestAttempt("a2", "gone", "2024-01-01")); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	exp, err := ExportResults(ctx, s, AttemptFilter{From: "2024-01-01", To: "2024-01-31"}, 10)
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(exp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(exp.Results))
	}
	byID := map[string]model.TraineeResult{}
	for _, r := range exp.Results {
		byID[r.AttemptID] = r
	}
	if r := byID["a1"]; r.TraineeEmail != "ann@example.com" || r.Evaluation == nil || r.Evaluation.Grade != "B+" {
		t.Errorf("unexpected result %+v", r)
	}
	if r := byID["a2"]; r.TraineeName != "" {
		t.Errorf("expected empty name for deleted trainee, got %q", r.TraineeName)
	}
	if exp.MaxScorePerQuestion != 10 || exp.From != "2024-01-01" {
		t.Errorf("unexpected export header %+v", exp)
	}
}
