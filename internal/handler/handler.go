// Package handler exposes the services as a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/quizdesk/internal/account"
	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/attempt"
	"github.com/pavelanni/quizdesk/internal/auth"
	"github.com/pavelanni/quizdesk/internal/catalog"
	"github.com/pavelanni/quizdesk/internal/i18n"
	"github.com/pavelanni/quizdesk/internal/llm"
	"github.com/pavelanni/quizdesk/internal/model"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// Assistant suggests scores for an attempt.
type Assistant interface {
	SuggestScores(ctx context.Context, a model.Attempt, keys map[string]string, maxScore float64) ([]llm.Suggestion, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the API serves. Assistant may be nil.
type Deps struct {
	Accounts  *account.Service
	Catalog   *catalog.Service
	Attempts  *attempt.Service
	Assistant Assistant
	Store     Pinger
	Issuer    *auth.Issuer
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	accounts  *account.Service
	catalog   *catalog.Service
	attempts  *attempt.Service
	assistant Assistant
	store     Pinger
	guard     *auth.Middleware
}

// New creates a new Handler.
func New(d Deps) *Handler {
	return &Handler{
		accounts:  d.Accounts,
		catalog:   d.Catalog,
		attempts:  d.Attempts,
		assistant: d.Assistant,
		store:     d.Store,
		guard:     auth.NewMiddleware(d.Issuer, writeError),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(i18n.Middleware)

	r.Get("/healthz", h.handleHealth)
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticate)
		require := h.guard.Require

		r.With(require(auth.CapSelf)).Get("/me", h.handleMe)
		r.With(require(auth.CapSelf)).Post("/me/password", h.handleChangePassword)

		r.Route("/users", func(r chi.Router) {
			r.Use(require(auth.CapManageUsers))
			r.Get("/", h.handleListUsers)
			r.Post("/", h.handleCreateUser)
			r.Put("/{id}/role", h.handleSetRole)
			r.Put("/{id}/password", h.handleResetPassword)
			r.Delete("/{id}", h.handleDeleteUser)
		})

		r.Route("/question-sets", func(r chi.Router) {
			r.With(require(auth.CapReadQuestionSet)).Get("/", h.handleListQuestionSets)
			r.With(require(auth.CapReadQuestionSet)).Get("/{id}", h.handleGetQuestionSet)
			r.Group(func(r chi.Router) {
				r.Use(require(auth.CapWriteQuestionSet))
				r.Post("/", h.handleCreateQuestionSet)
				r.Post("/import", h.handleImportQuestionSets)
				r.Put("/{id}", h.handleUpdateQuestionSet)
				r.Delete("/{id}", h.handleDeleteQuestionSet)
			})
		})

		r.Route("/attempts", func(r chi.Router) {
			r.With(require(auth.CapSubmitAttempt)).Post("/", h.handleSubmitAttempt)
			r.With(require(auth.CapViewOwnAttempts)).Get("/mine", h.handleListMyAttempts)
			r.With(require(auth.CapViewAllAttempts)).Get("/", h.handleListAttempts)
			r.With(require(auth.CapViewOwnAttempts, auth.CapViewAllAttempts)).Get("/{id}", h.handleGetAttempt)
			r.With(require(auth.CapEvaluateAttempt)).Put("/{id}", h.handleEvaluateAttempt)
			r.With(require(auth.CapEvaluateAttempt)).Post("/{id}/suggestions", h.handleSuggestScores)
			r.With(require(auth.CapDeleteAttempt)).Delete("/{id}", h.handleDeleteAttempt)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeError(w, r, apperr.Dependency("ping store", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller returns the identity attached by the auth middleware.
func caller(r *http.Request) model.Identity {
	id, _ := model.IdentityFromContext(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with a localized message. Unclassified errors are
// reported as internal without exposing their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = &apperr.Error{Kind: apperr.KindInternal, Code: "Internal", Message: "internal error", Err: err}
	}
	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{
		Error:   e.Kind.String(),
		Code:    e.Code,
		Message: i18n.Message(r.Context(), e.Code, e.Message, e.Data),
		Fields:  e.Fields,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := err.Error()
		if errors.Is(err, io.EOF) {
			msg = "is empty"
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			msg = "is too large"
		}
		return apperr.Validation("InvalidInput", "malformed request body", map[string]string{"body": msg})
	}
	return nil
}
