// Package attempt owns the attempt lifecycle: trainees save and submit
// answers, evaluators grade them.
//
// Status transitions:
//
//	(none)      -> in-progress | submitted   Submit
//	in-progress -> in-progress | submitted   Submit
//	submitted   -> submitted                 Submit (submittedAt refreshed)
//	submitted   -> evaluated                 Evaluate
//	evaluated   -> evaluated                 Evaluate (full overwrite)
//
// Every transition builds a new record and persists it with a version check.
package attempt

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/auth"
	"github.com/pavelanni/quizdesk/internal/grading"
	"github.com/pavelanni/quizdesk/internal/model"
	"github.com/pavelanni/quizdesk/internal/store"
	"github.com/pavelanni/quizdesk/internal/validate"
)

// QuestionSets resolves the set an attempt answers.
type QuestionSets interface {
	GetQuestionSet(ctx context.Context, id string) (model.QuestionSet, error)
}

// Options tune a Service.
type Options struct {
	// MaxScore is the per-question maximum. Defaults to grading.DefaultMaxScore.
	MaxScore float64
	Now      func() time.Time
}

// Service manages the attempt lifecycle and evaluation.
type Service struct {
	attempts store.Attempts
	sets     QuestionSets
	maxScore float64
	now      func() time.Time
}

// New creates a Service backed by attempts and sets.
func New(attempts store.Attempts, sets QuestionSets, opts Options) *Service {
	if opts.MaxScore <= 0 {
		opts.MaxScore = grading.DefaultMaxScore
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{attempts: attempts, sets: sets, maxScore: opts.MaxScore, now: opts.Now}
}

// MaxScore returns the per-question maximum.
func (s *Service) MaxScore() float64 { return s.maxScore }

// AnswerInput is one answered question in a submission.
type AnswerInput struct {
	Topic    string           `json:"topic" validate:"required"`
	Question string           `json:"question" validate:"required"`
	Answer   model.AnswerText `json:"answer" validate:"required"`
}

// SubmitInput is a save or final submission of an attempt.
type SubmitInput struct {
	QuestionSetID        string              `json:"questionSetId" validate:"required"`
	Date                 string              `json:"date" validate:"required,day"`
	SessionTitle         string              `json:"sessionTitle" validate:"max=300"`
	Answers              []AnswerInput       `json:"answers" validate:"required,min=1,dive"`
	OverallUnderstanding string              `json:"overallUnderstanding" validate:"required_if=Status submitted,max=2000"`
	Status               model.AttemptStatus `json:"status" validate:"required,oneof=in-progress submitted"`
	Remarks              string              `json:"remarks" validate:"max=5000"`
}

func (in *SubmitInput) normalize() {
	if in.Answers != nil {
		in.Answers = append([]AnswerInput{}, in.Answers...)
	}
	for i := range in.Answers {
		in.Answers[i].Answer = model.AnswerText(strings.TrimSpace(string(in.Answers[i].Answer)))
	}
	in.OverallUnderstanding = strings.TrimSpace(in.OverallUnderstanding)
	in.SessionTitle = strings.TrimSpace(in.SessionTitle)
}

// maxAttempts bounds the write loop. A lost race on first insert or a stale
// version is retried once against the fresh record.
const maxAttempts = 2

func retryable(err error) bool {
	return errors.Is(err, store.ErrDuplicate) || errors.Is(err, store.ErrStale)
}

func errConcurrent() error {
	return apperr.Conflict("ConcurrentUpdate", "attempt was modified concurrently, reload and retry")
}

// Submit creates or updates the caller's attempt for in.Date. It reports
// whether a new attempt was created. An evaluated attempt is never changed.
func (s *Service) Submit(ctx context.Context, caller model.Identity, in SubmitInput) (model.Attempt, bool, error) {
	if err := auth.Check(caller, auth.CapSubmitAttempt); err != nil {
		return model.Attempt{}, false, err
	}
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return model.Attempt{}, false, err
	}
	qs, err := s.sets.GetQuestionSet(ctx, in.QuestionSetID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Attempt{}, false, apperr.NotFound("QuestionSetNotFound", "question set not found")
	}
	if err != nil {
		return model.Attempt{}, false, store.Unavailable("get question set", err)
	}

	for i := 0; ; i++ {
		a, created, err := s.submitOnce(ctx, caller, qs, in)
		if err == nil {
			slog.Info("attempt saved", "id", a.ID, "trainee", caller.ID, "date", a.Date,
				"status", a.Status, "created", created)
			return a, created, nil
		}
		if !retryable(err) {
			return model.Attempt{}, false, err
		}
		if i+1 >= maxAttempts {
			return model.Attempt{}, false, errConcurrent()
		}
	}
}

func (s *Service) submitOnce(ctx context.Context, caller model.Identity, qs model.QuestionSet, in SubmitInput) (model.Attempt, bool, error) {
	now := s.now().UTC()
	existing, err := s.attempts.FindAttempt(ctx, caller.ID, in.Date)
	if errors.Is(err, store.ErrNotFound) {
		a := model.Attempt{
			ID:        uuid.NewString(),
			TraineeID: caller.ID,
			Date:      in.Date,
			CreatedAt: now,
		}
		a = applySubmission(a, qs, in, now)
		created, err := s.attempts.CreateAttempt(ctx, a)
		if err != nil {
			if retryable(err) {
				return model.Attempt{}, false, err
			}
			return model.Attempt{}, false, store.Unavailable("create attempt", err)
		}
		return created, true, nil
	}
	if err != nil {
		return model.Attempt{}, false, store.Unavailable("find attempt", err)
	}

	if existing.Evaluated() || existing.Status == model.StatusEvaluated {
		return model.Attempt{}, false, apperr.Conflict("AttemptAlreadyEvaluated",
			"attempt for this date has already been evaluated").
			WithData(map[string]any{"Date": in.Date})
	}
	if existing.Status == model.StatusSubmitted && in.Status == model.StatusInProgress {
		return model.Attempt{}, false, apperr.Conflict("AttemptAlreadySubmitted",
			"a submitted attempt cannot be saved as in-progress")
	}

	next := applySubmission(existing.Clone(), qs, in, now)
	updated, err := s.attempts.UpdateAttempt(ctx, next)
	if err != nil {
		if retryable(err) {
			return model.Attempt{}, false, err
		}
		return model.Attempt{}, false, store.Unavailable("update attempt", err)
	}
	return updated, false, nil
}

// applySubmission returns a with the trainee-controlled fields replaced.
func applySubmission(a model.Attempt, qs model.QuestionSet, in SubmitInput, now time.Time) model.Attempt {
	byText := make(map[string]model.Question, len(qs.Questions))
	for _, q := range qs.Questions {
		byText[q.Question] = q
	}
	answers := make([]model.AnswerRecord, len(in.Answers))
	for i, ans := range in.Answers {
		rec := model.AnswerRecord{Topic: ans.Topic, Question: ans.Question, Answer: ans.Answer}
		if q, ok := byText[ans.Question]; ok && len(q.Options) > 0 {
			rec.Options = append([]string(nil), q.Options...)
		}
		answers[i] = rec
	}

	a.QuestionSetID = qs.ID
	a.SessionTitle = in.SessionTitle
	if a.SessionTitle == "" {
		a.SessionTitle = qs.SessionTitle
	}
	a.Answers = answers
	a.OverallUnderstanding = in.OverallUnderstanding
	a.Remarks = in.Remarks
	a.Status = in.Status
	if in.Status == model.StatusSubmitted {
		t := now
		a.SubmittedAt = &t
	}
	a.UpdatedAt = now
	return a
}

// Get returns one attempt. Callers without view-all access only see their own.
func (s *Service) Get(ctx context.Context, caller model.Identity, id string) (model.Attempt, error) {
	a, err := s.attempts.GetAttempt(ctx, id)
	if err != nil {
		return model.Attempt{}, attemptErr("get attempt", err)
	}
	if auth.Allowed(caller.Role, auth.CapViewAllAttempts) {
		return a, nil
	}
	if err := auth.Check(caller, auth.CapViewOwnAttempts); err != nil {
		return model.Attempt{}, err
	}
	if a.TraineeID != caller.ID {
		return model.Attempt{}, apperr.Forbidden("NotYourAttempt", "attempt belongs to another trainee")
	}
	return a, nil
}

// ListFilter narrows attempt listings.
type ListFilter struct {
	Date          string
	Status        model.AttemptStatus
	TraineeID     string
	QuestionSetID string
}

func (f ListFilter) check() error {
	fields := map[string]string{}
	if f.Date != "" && !validate.IsDate(f.Date) {
		fields["date"] = "must be a date in YYYY-MM-DD format"
	}
	switch f.Status {
	case "", model.StatusInProgress, model.StatusSubmitted, model.StatusEvaluated:
	default:
		fields["status"] = "must be one of: in-progress submitted evaluated"
	}
	if len(fields) > 0 {
		return apperr.Validation("InvalidInput", "invalid filter", fields)
	}
	return nil
}

// ListMine returns the caller's own attempts, newest date first.
func (s *Service) ListMine(ctx context.Context, caller model.Identity, f ListFilter) ([]model.Attempt, error) {
	if err := auth.Check(caller, auth.CapViewOwnAttempts); err != nil {
		return nil, err
	}
	f.TraineeID = caller.ID
	return s.list(ctx, f)
}

// ListAll returns every attempt matching f.
func (s *Service) ListAll(ctx context.Context, caller model.Identity, f ListFilter) ([]model.Attempt, error) {
	if err := auth.Check(caller, auth.CapViewAllAttempts); err != nil {
		return nil, err
	}
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f ListFilter) ([]model.Attempt, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, store.AttemptFilter{
		TraineeID:     f.TraineeID,
		QuestionSetID: f.QuestionSetID,
		Date:          f.Date,
		Status:        f.Status,
	})
	if err != nil {
		return nil, store.Unavailable("list attempts", err)
	}
	return attempts, nil
}

// Delete removes an attempt regardless of its status.
func (s *Service) Delete(ctx context.Context, caller model.Identity, id string) error {
	if err := auth.Check(caller, auth.CapDeleteAttempt); err != nil {
		return err
	}
	if err := s.attempts.DeleteAttempt(ctx, id); err != nil {
		return attemptErr("delete attempt", err)
	}
	slog.Info("attempt deleted", "id", id, "by", caller.ID)
	return nil
}

func attemptErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("AttemptNotFound", "attempt not found")
	}
	return store.Unavailable(op, err)
}
