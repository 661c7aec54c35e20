package attempt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/auth"
	"github.com/pavelanni/quizdesk/internal/grading"
	"github.com/pavelanni/quizdesk/internal/model"
	"github.com/pavelanni/quizdesk/internal/store"
	"github.com/pavelanni/quizdesk/internal/validate"
)

// QuestionScore is the evaluator's verdict for one answer, in answer order.
type QuestionScore struct {
	Score    *float64 `json:"score" validate:"required"`
	Feedback string   `json:"feedback" validate:"max=5000"`
}

// EvaluationInput is the attempt-level part of an evaluation.
type EvaluationInput struct {
	OverallFeedback string `json:"overallFeedback" validate:"max=5000"`
}

// EvaluateInput carries one score per answer, in answer order.
type EvaluateInput struct {
	QuestionAnswers []QuestionScore `json:"questionAnswers" validate:"required,min=1,dive"`
	Evaluation      EvaluationInput `json:"evaluation"`
}

func (s *Service) checkScores(in EvaluateInput) error {
	fields := map[string]string{}
	for i, q := range in.QuestionAnswers {
		if v := *q.Score; math.IsNaN(v) || v < 0 || v > s.maxScore {
			fields[fmt.Sprintf("questionAnswers[%d].score", i)] = "must be between 0 and " +
				strconv.FormatFloat(s.maxScore, 'f', -1, 64)
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("ScoreOutOfRange", "score out of range", fields).
			WithData(map[string]any{"Max": s.maxScore})
	}
	return nil
}

// Evaluate grades a submitted attempt, or re-grades an evaluated one. The
// previous evaluation and every per-question score are replaced in full.
func (s *Service) Evaluate(ctx context.Context, caller model.Identity, id string, in EvaluateInput) (model.Attempt, error) {
	if err := auth.Check(caller, auth.CapEvaluateAttempt); err != nil {
		return model.Attempt{}, err
	}
	if err := validate.Struct(in); err != nil {
		return model.Attempt{}, err
	}
	if err := s.checkScores(in); err != nil {
		return model.Attempt{}, err
	}

	for i := 0; ; i++ {
		a, err := s.evaluateOnce(ctx, caller, id, in)
		if err == nil {
			slog.Info("attempt evaluated", "id", a.ID, "trainee", a.TraineeID, "by", caller.ID,
				"total", a.Evaluation.TotalScore, "grade", a.Evaluation.Grade)
			return a, nil
		}
		if !errors.Is(err, store.ErrStale) {
			return model.Attempt{}, err
		}
		if i+1 >= maxAttempts {
			return model.Attempt{}, errConcurrent()
		}
	}
}

func (s *Service) evaluateOnce(ctx context.Context, caller model.Identity, id string, in EvaluateInput) (model.Attempt, error) {
	current, err := s.attempts.GetAttempt(ctx, id)
	if err != nil {
		return model.Attempt{}, attemptErr("get attempt", err)
	}
	if len(in.QuestionAnswers) != len(current.Answers) {
		return model.Attempt{}, apperr.Validation("ScoreCountMismatch", "score count does not match answer count",
			map[string]string{"questionAnswers": fmt.Sprintf("must contain exactly %d item(s)", len(current.Answers))}).
			WithData(map[string]any{"Want": len(current.Answers), "Got": len(in.QuestionAnswers)})
	}
	if current.Status == model.StatusInProgress {
		return model.Attempt{}, apperr.Conflict("AttemptNotSubmitted", "attempt has not been submitted yet")
	}

	correct := s.correctAnswers(ctx, current)
	now := s.now().UTC()
	scores := make([]float64, len(in.QuestionAnswers))
	answers := make([]model.AnswerRecord, len(current.Answers))
	for i, rec := range current.Clone().Answers {
		score := *in.QuestionAnswers[i].Score
		scores[i] = score
		rec.Score = &score
		rec.Feedback = in.QuestionAnswers[i].Feedback
		rec.CorrectAnswer = ""
		if c, ok := correct[rec.Question]; ok {
			rec.CorrectAnswer = c
		}
		answers[i] = rec
	}
	sum := grading.Summarize(scores, s.maxScore)

	next := current.Clone()
	next.Answers = answers
	next.Status = model.StatusEvaluated
	next.Evaluation = &model.Evaluation{
		TotalScore:      sum.TotalScore,
		MaxScore:        sum.MaxScore,
		Percentage:      sum.Percentage,
		Grade:           sum.Grade,
		EvaluatedBy:     caller.ID,
		EvaluatorEmail:  caller.Email,
		EvaluatedAt:     now,
		OverallFeedback: in.Evaluation.OverallFeedback,
	}
	next.UpdatedAt = now

	updated, err := s.attempts.UpdateAttempt(ctx, next)
	if err != nil {
		if errors.Is(err, store.ErrStale) {
			return model.Attempt{}, err
		}
		return model.Attempt{}, attemptErr("update attempt", err)
	}
	return updated, nil
}

// correctAnswers maps question text to its answer key so evaluated attempts
// can show it. A deleted or unreadable set yields no keys.
func (s *Service) correctAnswers(ctx context.Context, a model.Attempt) map[string]string {
	out := map[string]string{}
	qs, err := s.sets.GetQuestionSet(ctx, a.QuestionSetID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("could not load answer keys", "attempt", a.ID, "error", err)
		}
		return out
	}
	for _, q := range qs.Questions {
		if q.CorrectAnswer != "" {
			out[q.Question] = q.CorrectAnswer
		}
	}
	return out
}
