package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/nicktill/tinynotes/pkg/config"
	"github.com/nicktill/tinynotes/pkg/events"
	"github.com/nicktill/tinynotes/pkg/httpx"
	"github.com/nicktill/tinynotes/pkg/storage"
	"github.com/nicktill/tinynotes/pkg/telemetry"
)

// Counter records one request attempt per operation.
type Counter interface {
	Inc(ctx context.Context, op telemetry.Operation)
}

// Publisher fans out note changes.
type Publisher interface {
	Publish(eventType string, id int64)
}

// Handler serves the note CRUD endpoints.
type Handler struct {
	store    storage.Store
	counters Counter
	events   Publisher
	logger   zerolog.Logger
}

// NewHandler creates a note handler. events may be nil.
func NewHandler(store storage.Store, counters Counter, events Publisher, logger zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		counters: counters,
		events:   events,
		logger:   logger,
	}
}

// RegisterRoutes binds the note endpoints to router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/note", h.HandleCreate).Methods(http.MethodPost)
	router.HandleFunc("/note/{id}", h.HandleGet).Methods(http.MethodGet)
	router.HandleFunc("/note/{id}", h.HandleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/note/{id}", h.HandleDelete).Methods(http.MethodDelete)
}

// HandleCreate handles POST /note.
//
// Every handler increments its counter before any check, so the counters
// count attempts, including malformed and not-found requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.counters.Inc(r.Context(), telemetry.OpCreate)

	content, err := decodeContent(w, r)
	if err != nil {
		respondDecodeError(w, err)
		return
	}

	id, err := h.store.Create(r.Context(), content)
	if err != nil {
		h.respondStoreError(w, r, "", err)
		return
	}

	h.publish(events.NoteCreated, id)
	httpx.RespondJSON(w, http.StatusCreated, CreateResponse{ID: id})
}

// HandleGet handles GET /note/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.counters.Inc(r.Context(), telemetry.OpRead)

	rawID := mux.Vars(r)["id"]
	id, ok := parseID(rawID)
	if !ok {
		respondNotFound(w, rawID)
		return
	}

	note, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, rawID, err)
		return
	}

	tag := etag(note.Content)
	w.Header().Set("ETag", tag)
	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, ReadResponse{Content: note.Content})
}

// HandleUpdate handles PUT /note/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.counters.Inc(r.Context(), telemetry.OpUpdate)

	rawID := mux.Vars(r)["id"]
	id, ok := parseID(rawID)
	if !ok {
		respondNotFound(w, rawID)
		return
	}

	content, err := decodeContent(w, r)
	if err != nil {
		respondDecodeError(w, err)
		return
	}

	note, err := h.store.Update(r.Context(), id, content)
	if err != nil {
		h.respondStoreError(w, r, rawID, err)
		return
	}

	h.publish(events.NoteUpdated, note.ID)
	w.Header().Set("ETag", etag(note.Content))
	httpx.RespondJSON(w, http.StatusOK, UpdateResponse{ID: note.ID})
}

// HandleDelete handles DELETE /note/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.counters.Inc(r.Context(), telemetry.OpDelete)

	rawID := mux.Vars(r)["id"]
	id, ok := parseID(rawID)
	if !ok {
		respondNotFound(w, rawID)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondStoreError(w, r, rawID, err)
		return
	}

	h.publish(events.NoteDeleted, id)
	httpx.RespondNoContent(w)
}

func (h *Handler) publish(eventType string, id int64) {
	if h.events != nil {
		h.events.Publish(eventType, id)
	}
}

// respondStoreError maps store errors 1:1 to HTTP statuses.
func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, rawID string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondNotFound(w, rawID)
	case storage.IsValidation(err):
		httpx.RespondError(w, http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.logger.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Store operation timed out")
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "request timed out")
	default:
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Store operation failed")
		httpx.RespondErrorString(w, http.StatusInternalServerError, "internal error")
	}
}

// respondDecodeError separates an oversized body from a malformed one.
func respondDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.RespondError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	httpx.RespondError(w, http.StatusBadRequest, err)
}

func respondNotFound(w http.ResponseWriter, rawID string) {
	httpx.RespondJSON(w, http.StatusNotFound, NotFoundResponse{ID: rawID})
}

// decodeContent reads {"content": "..."} and applies the presence and length checks.
func decodeContent(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBytes)

	var req ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", fmt.Errorf("invalid JSON body: %w", err)
	}
	if req.Content == nil {
		return "", &storage.ValidationError{Field: "content", Reason: "is required"}
	}
	if err := storage.ValidateContent(*req.Content); err != nil {
		return "", err
	}
	return *req.Content, nil
}

// parseID accepts positive base-10 integers. Anything else names a note that cannot exist.
func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func etag(content string) string {
	return `"` + strconv.FormatUint(xxhash.Sum64String(content), 16) + `"`
}

func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == tag {
			return true
		}
	}
	return false
}
