package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"

	"github.com/pavelanni/quizdesk/internal/model"
)

func scanAttempt(row interface{ Scan(...any) error }) (model.Attempt, error) {
	var doc string
	var version int64
	if err := row.Scan(&version, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Attempt{}, ErrNotFound
		}
		return model.Attempt{}, err
	}
	var a model.Attempt
	if err := decodeDoc(doc, &a); err != nil {
		return model.Attempt{}, err
	}
	a.Version = version
	return a, nil
}

// CreateAttempt inserts a with version 1. A second attempt for the same
// trainee and date fails with ErrDuplicate.
func (s *SQLStore) CreateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error) {
	a.Version = 1
	doc, err := encodeDoc(a)
	if err != nil {
		return model.Attempt{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, trainee_id, question_set_id, date, status, version, doc, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TraineeID, a.QuestionSetID, a.Date, string(a.Status), a.Version, doc, a.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Attempt{}, ErrDuplicate
		}
		return model.Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (model.Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT version, doc FROM attempts WHERE id = $1`, id))
}

// FindAttempt returns the attempt of traineeID for date.
func (s *SQLStore) FindAttempt(ctx context.Context, traineeID, date string) (model.Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT version, doc FROM attempts WHERE trainee_id = $1 AND date = $2`, traineeID, date))
}

// ListAttempts returns attempts newest date first.
func (s *SQLStore) ListAttempts(ctx context.Context, f AttemptFilter) ([]model.Attempt, error) {
	var w where
	if f.TraineeID != "" {
		w.add("trainee_id = %s", f.TraineeID)
	}
	if f.QuestionSetID != "" {
		w.add("question_set_id = %s", f.QuestionSetID)
	}
	if f.Date != "" {
		w.add("date = %s", f.Date)
	}
	if f.Status != "" {
		w.add("status = %s", string(f.Status))
	}
	if f.From != "" {
		w.add("date >= %s", f.From)
	}
	if f.To != "" {
		w.add("date <= %s", f.To)
	}
	query := `SELECT version, doc FROM attempts` + w.String() + ` ORDER BY date DESC, created_at DESC, id`
	if f.Limit > 0 {
		w.args = append(w.args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(w.args))
	}
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	attempts := []model.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// UpdateAttempt replaces the stored attempt when its version still matches
// a.Version. It returns ErrStale when someone else wrote first.
func (s *SQLStore) UpdateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error) {
	expected := a.Version
	a.Version = expected + 1
	doc, err := encodeDoc(a)
	if err != nil {
		return model.Attempt{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET question_set_id = $1, status = $2, version = $3, doc = $4
		 WHERE id = $5 AND version = $6`,
		a.QuestionSetID, string(a.Status), a.Version, doc, a.ID, expected,
	)
	if err != nil {
		return model.Attempt{}, err
	}
	if err := affected(res); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return model.Attempt{}, err
		}
		if _, gerr := s.GetAttempt(ctx, a.ID); gerr != nil {
			return model.Attempt{}, gerr
		}
		slog.Warn("stale attempt update", "id", a.ID, "version", expected)
		return model.Attempt{}, ErrStale
	}
	return a, nil
}

func (s *SQLStore) DeleteAttempt(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res)
}
