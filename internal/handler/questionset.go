package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/auth"
	"github.com/pavelanni/quizdesk/internal/catalog"
	"github.com/pavelanni/quizdesk/internal/model"
)

// maxImportBytes limits question file uploads.
const maxImportBytes = 10 << 20

// visible hides answer keys from callers who cannot author sets.
func visible(r *http.Request, qs model.QuestionSet) model.QuestionSet {
	if auth.Allowed(caller(r).Role, auth.CapWriteQuestionSet) {
		return qs
	}
	return qs.Public()
}

func (h *Handler) handleListQuestionSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.catalog.List(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]model.QuestionSet, len(sets))
	for i, qs := range sets {
		out[i] = visible(r, qs)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetQuestionSet(w http.ResponseWriter, r *http.Request) {
	qs, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visible(r, qs))
}

func (h *Handler) handleCreateQuestionSet(w http.ResponseWriter, r *http.Request) {
	var in catalog.QuestionSetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	qs, err := h.catalog.Create(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, qs)
}

func (h *Handler) handleUpdateQuestionSet(w http.ResponseWriter, r *http.Request) {
	var in catalog.QuestionSetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	qs, err := h.catalog.Update(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleDeleteQuestionSet(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportQuestionSets accepts a multipart upload in field "file", or a
// raw JSON body named by the "name" query parameter.
func (h *Handler) handleImportQuestionSets(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.catalog.Import(r.Context(), caller(r), name, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	invalid := func(msg string) error {
		return apperr.Validation("InvalidImport", "could not read upload", map[string]string{"file": msg})
	}

	if err := r.ParseMultipartForm(maxImportBytes); err == nil {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, invalid("is required")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, invalid(err.Error())
		}
		return filepath.Base(header.Filename), data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, invalid(err.Error())
	}
	if len(data) == 0 {
		return "", nil, invalid("is required")
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.json"
	}
	return filepath.Base(name), data, nil
}
