// Package catalog stores the dated question sets that attempts answer.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/model"
	"github.com/pavelanni/quizdesk/internal/store"
	"github.com/pavelanni/quizdesk/internal/validate"
)

// Backend is the part of the store the catalog needs. Attempts are consulted
// before a delete.
type Backend interface {
	store.QuestionSets
	store.Metadata
	ListAttempts(ctx context.Context, f store.AttemptFilter) ([]model.Attempt, error)
}

type QuestionInput struct {
	Topic         string   `json:"topic" validate:"required"`
	Question      string   `json:"question" validate:"required"`
	Type          string   `json:"type,omitempty"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}

type QuestionSetInput struct {
	Date         string          `json:"date" validate:"required,day"`
	SessionTitle string          `json:"sessionTitle" validate:"required,max=300"`
	Questions    []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

func (in QuestionSetInput) questions() []model.Question {
	out := make([]model.Question, len(in.Questions))
	for i, q := range in.Questions {
		out[i] = model.Question{
			Topic:         q.Topic,
			Question:      q.Question,
			Type:          q.Type,
			Options:       append([]string(nil), q.Options...),
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		}
	}
	return out
}

// ImportResult reports what an import did. Skipped is set when the same
// file content was imported before. Resumed counts sets a failed earlier
// run of the same content already created.
type ImportResult struct {
	Created []model.QuestionSet `json:"created"`
	Skipped bool                `json:"skipped"`
	Resumed int                 `json:"resumed,omitempty"`
}

type Service struct {
	backend Backend
	now     func() time.Time
}

func New(backend Backend) *Service {
	return &Service{backend: backend, now: time.Now}
}

// Create stores a new set. Several sets may share a date.
func (s *Service) Create(ctx context.Context, actor model.Identity, in QuestionSetInput) (model.QuestionSet, error) {
	if err := validate.Struct(in); err != nil {
		return model.QuestionSet{}, err
	}
	now := s.now().UTC()
	qs := model.QuestionSet{
		ID:           uuid.NewString(),
		Date:         in.Date,
		SessionTitle: in.SessionTitle,
		Questions:    in.questions(),
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.backend.CreateQuestionSet(ctx, qs); err != nil {
		return model.QuestionSet{}, store.Unavailable("create question set", err)
	}
	slog.Info("question set created", "id", qs.ID, "date", qs.Date, "questions", len(qs.Questions), "by", actor.ID)
	return qs, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.QuestionSet, error) {
	qs, err := s.backend.GetQuestionSet(ctx, id)
	if err != nil {
		return model.QuestionSet{}, setErr("get question set", err)
	}
	return qs, nil
}

// List returns sets, optionally only those for date.
func (s *Service) List(ctx context.Context, date string) ([]model.QuestionSet, error) {
	if date != "" && !validate.IsDate(date) {
		return nil, apperr.Validation("InvalidInput", "invalid date filter",
			map[string]string{"date": "must be a date in YYYY-MM-DD format"})
	}
	sets, err := s.backend.ListQuestionSets(ctx, store.QuestionSetFilter{Date: date})
	if err != nil {
		return nil, store.Unavailable("list question sets", err)
	}
	return sets, nil
}

// Update replaces the content of an existing set.
func (s *Service) Update(ctx context.Context, actor model.Identity, id string, in QuestionSetInput) (model.QuestionSet, error) {
	if err := validate.Struct(in); err != nil {
		return model.QuestionSet{}, err
	}
	qs, err := s.backend.GetQuestionSet(ctx, id)
	if err != nil {
		return model.QuestionSet{}, setErr("get question set", err)
	}
	qs.Date = in.Date
	qs.SessionTitle = in.SessionTitle
	qs.Questions = in.questions()
	qs.UpdatedAt = s.now().UTC()
	if err := s.backend.UpdateQuestionSet(ctx, qs); err != nil {
		return model.QuestionSet{}, setErr("update question set", err)
	}
	slog.Info("question set updated", "id", qs.ID, "by", actor.ID)
	return qs, nil
}

// Delete removes a set that no attempt references.
func (s *Service) Delete(ctx context.Context, actor model.Identity, id string) error {
	if _, err := s.backend.GetQuestionSet(ctx, id); err != nil {
		return setErr("get question set", err)
	}
	refs, err := s.backend.ListAttempts(ctx, store.AttemptFilter{QuestionSetID: id, Limit: 1})
	if err != nil {
		return store.Unavailable("list attempts", err)
	}
	if len(refs) > 0 {
		return apperr.Conflict("QuestionSetInUse", "question set has attempts and cannot be deleted")
	}
	if err := s.backend.DeleteQuestionSet(ctx, id); err != nil {
		return setErr("delete question set", err)
	}
	slog.Info("question set deleted", "id", id, "by", actor.ID)
	return nil
}

// Import creates every set in data, a JSON array of question sets. A file
// whose content hash matches the previous import under the same name is
// skipped. Nothing is created unless all sets are valid.
//
// Progress is recorded after each set, so retrying the same content after a
// failure continues where the failed run stopped instead of creating
// duplicates.
func (s *Service) Import(ctx context.Context, actor model.Identity, name string, data []byte) (ImportResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := "import:" + name
	progressKey := "import-progress:" + name

	stored, err := s.backend.GetMetadata(ctx, key)
	if err != nil {
		return ImportResult{}, store.Unavailable("check import status", err)
	}
	if stored == hash {
		slog.Info("question file already imported, skipping", "name", name)
		return ImportResult{Created: []model.QuestionSet{}, Skipped: true}, nil
	}

	var inputs []QuestionSetInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return ImportResult{}, apperr.Validation("InvalidImport", "file is not a JSON array of question sets",
			map[string]string{"file": err.Error()})
	}
	if len(inputs) == 0 {
		return ImportResult{}, apperr.Validation("InvalidImport", "file contains no question sets",
			map[string]string{"file": "is empty"})
	}
	for i, in := range inputs {
		if err := validate.Struct(in); err != nil {
			return ImportResult{}, prefixFields(err, "["+strconv.Itoa(i)+"]")
		}
	}

	done, err := s.importProgress(ctx, progressKey, hash, len(inputs))
	if err != nil {
		return ImportResult{}, err
	}
	if done > 0 {
		slog.Info("resuming interrupted import", "name", name, "done", done)
	}

	res := ImportResult{Created: make([]model.QuestionSet, 0, len(inputs)-done), Resumed: done}
	for i := done; i < len(inputs); i++ {
		qs, err := s.Create(ctx, actor, inputs[i])
		if err != nil {
			return res, fmt.Errorf("import %s: %w", name, err)
		}
		res.Created = append(res.Created, qs)
		if err := s.backend.SetMetadata(ctx, progressKey, hash+":"+strconv.Itoa(i+1)); err != nil {
			return res, store.Unavailable("record import progress", err)
		}
	}
	if err := s.backend.SetMetadata(ctx, key, hash); err != nil {
		return res, store.Unavailable("record import", err)
	}
	if err := s.backend.SetMetadata(ctx, progressKey, ""); err != nil {
		slog.Warn("could not clear import progress", "name", name, "error", err)
	}
	slog.Info("imported question sets", "name", name, "count", len(res.Created))
	return res, nil
}

// importProgress returns how many sets of the content identified by hash an
// earlier run created. Progress recorded for other content is ignored.
func (s *Service) importProgress(ctx context.Context, key, hash string, total int) (int, error) {
	v, err := s.backend.GetMetadata(ctx, key)
	if err != nil {
		return 0, store.Unavailable("check import progress", err)
	}
	rest, ok := strings.CutPrefix(v, hash+":")
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || n > total {
		slog.Warn("ignoring malformed import progress", "key", key, "value", v)
		return 0, nil
	}
	return n, nil
}

func prefixFields(err error, prefix string) error {
	e, ok := apperr.As(err)
	if !ok {
		return err
	}
	fields := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		fields[prefix+"."+k] = v
	}
	return apperr.Validation(e.Code, e.Message, fields)
}

func setErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("QuestionSetNotFound", "question set not found")
	}
	return store.Unavailable(op, err)
}
