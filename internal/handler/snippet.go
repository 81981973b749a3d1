package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codefile/internal/model"
	"github.com/sakif/codefile/internal/service"
)

// SnippetHandler exposes the snippet CRUD surface over HTTP.
//
// The handler's only job is the HTTP ↔ Go translation: decode the body,
// call the service, map the result (or domain error) to a status code and
// JSON shape. Every rule about what a patch means lives in the service.
type SnippetHandler struct {
	service *service.SnippetService
	logger  *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(service *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{service: service, logger: logger}
}

// HandleCreate creates a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY: any subset of {"code", "language", "protected"} — all
// optional, defaults applied by the service.
// RESPONSE: 201 with the full created record (including the generated id
// that becomes the shareable link).
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var initial model.SnippetPatch

	// An empty body is a valid "create with all defaults" request, so only
	// a body that is present but malformed is a 400.
	if err := json.NewDecoder(r.Body).Decode(&initial); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid snippet JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON body"})
		return
	}

	snippet, err := h.service.Create(r.Context(), initial)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, snippet)
}

// HandleGetByID returns a single snippet.
//
// HTTP: GET /api/snippets/{id}
// RESPONSE: 200 with the full record, or 404 {"error":"Snippet not found"}.
//
// Chi provides chi.URLParam(r, "id") to extract URL parameters: for
// GET /api/snippets/abc123, PathValue("id") returns "abc123".
func (h *SnippetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, snippet)
}

// HandleUpdate applies a partial update to a snippet.
//
// HTTP: PATCH /api/snippets/{id}
// REQUEST BODY: any subset of {"code", "language", "protected"}. Fields not
// present are left unchanged — {"code":""} clears the code while {} changes
// nothing, which is why the body decodes into pointer fields.
// RESPONSE: 200 with the full updated record, 404 if missing, 403 if the
// snippet is protected and the patch touches code.
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch model.SnippetPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.logger.Warn("invalid patch JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON body"})
		return
	}

	snippet, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id}
// RESPONSE: 200 {"success":true}, or 404 for an unknown id. Protection does
// not block deletion.
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
