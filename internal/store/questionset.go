package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pavelanni/quizdesk/internal/model"
)

func scanQuestionSet(row interface{ Scan(...any) error }) (model.QuestionSet, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.QuestionSet{}, ErrNotFound
		}
		return model.QuestionSet{}, err
	}
	var qs model.QuestionSet
	if err := decodeDoc(doc, &qs); err != nil {
		return model.QuestionSet{}, err
	}
	return qs, nil
}

func (s *SQLStore) CreateQuestionSet(ctx context.Context, qs model.QuestionSet) error {
	doc, err := encodeDoc(qs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO question_sets (id, date, created_by, doc, created_at) VALUES ($1, $2, $3, $4, $5)`,
		qs.ID, qs.Date, qs.CreatedBy, doc, qs.CreatedAt.UnixNano(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *SQLStore) GetQuestionSet(ctx context.Context, id string) (model.QuestionSet, error) {
	return scanQuestionSet(s.db.QueryRowContext(ctx, `SELECT doc FROM question_sets WHERE id = $1`, id))
}

// ListQuestionSets returns sets newest date first; sets sharing a date keep
// creation order.
func (s *SQLStore) ListQuestionSets(ctx context.Context, f QuestionSetFilter) ([]model.QuestionSet, error) {
	var w where
	if f.Date != "" {
		w.add("date = %s", f.Date)
	}
	if f.CreatedBy != "" {
		w.add("created_by = %s", f.CreatedBy)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM question_sets`+w.String()+` ORDER BY date DESC, created_at, id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sets := []model.QuestionSet{}
	for rows.Next() {
		qs, err := scanQuestionSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, qs)
	}
	return sets, rows.Err()
}

func (s *SQLStore) UpdateQuestionSet(ctx context.Context, qs model.QuestionSet) error {
	doc, err := encodeDoc(qs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE question_sets SET date = $1, doc = $2 WHERE id = $3`, qs.Date, doc, qs.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *SQLStore) DeleteQuestionSet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM question_sets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res)
}
