package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/quizdesk/internal/model"
)

// ExportSource is the part of a Store needed to build an export.
type ExportSource interface {
	Users
	Attempts
}

// ExportResults builds export-ready trainee results for the attempts
// matching f. Attempts of deleted trainees are kept with empty names.
func ExportResults(ctx context.Context, src ExportSource, f AttemptFilter, maxScore float64) (model.ResultsExport, error) {
	attempts, err := src.ListAttempts(ctx, f)
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list attempts: %w", err)
	}

	users := make(map[string]model.User)
	results := make([]model.TraineeResult, 0, len(attempts))
	for _, a := range attempts {
		u, ok := users[a.TraineeID]
		if !ok {
			u, err = src.GetUser(ctx, a.TraineeID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return model.ResultsExport{}, fmt.Errorf("get user %s: %w", a.TraineeID, err)
			}
			users[a.TraineeID] = u
		}

		results = append(results, model.TraineeResult{
			AttemptID:            a.ID,
			TraineeID:            a.TraineeID,
			TraineeName:          u.Name,
			TraineeEmail:         u.Email,
			Date:                 a.Date,
			SessionTitle:         a.SessionTitle,
			Status:               a.Status,
			SubmittedAt:          a.SubmittedAt,
			OverallUnderstanding: a.OverallUnderstanding,
			Answers:              a.Answers,
			Evaluation:           a.Evaluation,
		})
	}

	return model.ResultsExport{
		GeneratedAt:         time.Now().UTC(),
		From:                f.From,
		To:                  f.To,
		Status:              f.Status,
		MaxScorePerQuestion: maxScore,
		Results:             results,
	}, nil
}
