package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/attempt"
	"github.com/pavelanni/quizdesk/internal/llm"
	"github.com/pavelanni/quizdesk/internal/model"
)

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var in attempt.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	a, created, err := h.attempts.Submit(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, a)
}

func listFilter(r *http.Request) attempt.ListFilter {
	q := r.URL.Query()
	return attempt.ListFilter{
		Date:          q.Get("date"),
		Status:        model.AttemptStatus(q.Get("status")),
		TraineeID:     q.Get("traineeId"),
		QuestionSetID: q.Get("questionSetId"),
	}
}

func (h *Handler) handleListMyAttempts(w http.ResponseWriter, r *http.Request) {
	list, err := h.attempts.ListMine(r.Context(), caller(r), listFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	list, err := h.attempts.ListAll(r.Context(), caller(r), listFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.attempts.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleEvaluateAttempt(w http.ResponseWriter, r *http.Request) {
	var in attempt.EvaluateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.attempts.Evaluate(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleDeleteAttempt(w http.ResponseWriter, r *http.Request) {
	if err := h.attempts.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type suggestionsResponse struct {
	AttemptID   string           `json:"attemptId"`
	MaxScore    float64          `json:"maxScore"`
	Suggestions []llm.Suggestion `json:"suggestions"`
}

func (h *Handler) handleSuggestScores(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		writeError(w, r, &apperr.Error{
			Kind:    apperr.KindDependency,
			Code:    "AssistantUnavailable",
			Message: "score suggestions are not configured",
		})
		return
	}
	a, err := h.attempts.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a.Status == model.StatusInProgress {
		writeError(w, r, apperr.Conflict("AttemptNotSubmitted", "attempt has not been submitted yet"))
		return
	}

	keys := map[string]string{}
	qs, err := h.catalog.Get(r.Context(), a.QuestionSetID)
	switch {
	case err == nil:
		for _, q := range qs.Questions {
			if q.CorrectAnswer != "" {
				keys[q.Question] = q.CorrectAnswer
			}
		}
	case !apperr.Is(err, apperr.KindNotFound):
		writeError(w, r, err)
		return
	}

	suggestions, err := h.assistant.SuggestScores(r.Context(), a, keys, h.attempts.MaxScore())
	if err != nil {
		writeError(w, r, apperr.Dependency("suggest scores", err))
		return
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{
		AttemptID:   a.ID,
		MaxScore:    h.attempts.MaxScore(),
		Suggestions: suggestions,
	})
}
