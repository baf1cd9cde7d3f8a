// Package handlers exposes the dialogue engine over HTTP: conversation
// sessions, the document inventory, player flags, and the SSE event stream.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/session"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError sends a JSON error body with the given status.
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}

// StartConversationRequest is the body of POST /v1/conversations.
type StartConversationRequest struct {
	Document string `json:"document"`            // Required: document id (without extension)
	Language string `json:"language,omitempty"`  // Optional: translation language, defaults to baseline
	PlayerID string `json:"player_id,omitempty"` // Optional: flag-store owner; defaults to a fresh id
}

// ChooseRequest is the body of POST /v1/conversations/{id}/choose.
type ChooseRequest struct {
	Index int `json:"index"`
}

type ConversationHandler struct {
	manager     *session.Manager
	storage     storage.Storage
	defaultLang string
	logger      *slog.Logger
}

// NewConversationHandler creates a conversation handler. defaultLang is the
// language served when a start request names none; empty means the library
// baseline.
func NewConversationHandler(manager *session.Manager, storage storage.Storage, defaultLang string, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		manager:     manager,
		storage:     storage,
		defaultLang: defaultLang,
		logger:      logger,
	}
}

// ServeHTTP handles HTTP requests for conversation sessions
// Routes:
// POST /v1/conversations                    - Start a conversation
// GET /v1/conversations/{id}                - Read session state
// POST /v1/conversations/{id}/advance       - Deliver the confirm signal
// POST /v1/conversations/{id}/choose        - Deliver a choice selection
// POST /v1/conversations/{id}/fastforward   - Cut the reveal short
// DELETE /v1/conversations/{id}             - Abort the session
func (h *ConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/conversations"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			h.logger.Warn("Method not allowed for conversations endpoint", "method", r.Method)
			writeError(w, h.logger, http.StatusMethodNotAllowed,
				"Method not allowed. Use POST to start a conversation.")
			return
		}
		h.handleStart(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", parts[0], "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleRead(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleStop(w, r, id)
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.handleSignal(w, r, id, parts[1])
	default:
		h.logger.Warn("Method not allowed for conversation resource",
			"method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusMethodNotAllowed,
			"Method not allowed. Supported: GET, DELETE, or POST to a signal path.")
	}
}

func (h *ConversationHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Document == "" {
		writeError(w, h.logger, http.StatusBadRequest, "document field is required")
		return
	}
	if req.PlayerID == "" {
		// Anonymous players still need a stable flag-store owner for the
		// session's lifetime.
		req.PlayerID = uuid.NewString()
	}
	if req.Language == "" {
		req.Language = h.defaultLang
	}

	view, err := h.manager.Start(r.Context(), req.PlayerID, req.Document, req.Language)
	switch {
	case errors.Is(err, dialogue.ErrDocumentNotFound):
		writeError(w, h.logger, http.StatusNotFound, "Dialogue document not found: "+req.Document)
		return
	case errors.Is(err, conversation.ErrNoEntry):
		// Every starter failed its conditions: a diagnosable content or
		// flag-state situation, not a server fault.
		writeError(w, h.logger, http.StatusConflict, "No starter passed its conditions for "+req.Document)
		return
	case err != nil:
		h.logger.Error("Failed to start conversation", "error", err, "document", req.Document)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to start conversation")
		return
	}

	h.logger.Debug("Conversation started",
		"session_id", view.ID.String(), "document", req.Document)
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(view); err != nil {
		h.logger.Error("Failed to encode session view", "error", err)
	}
}

func (h *ConversationHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if view, ok := h.manager.View(id); ok {
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(view); err != nil {
			h.logger.Error("Failed to encode session view", "error", err)
		}
		return
	}

	// Not running: an ended session may still have a stored snapshot.
	snap, err := h.storage.LoadSession(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load session snapshot", "error", err, "id", id.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if snap == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.Error("Failed to encode session snapshot", "error", err)
	}
}

func (h *ConversationHandler) handleSignal(w http.ResponseWriter, r *http.Request, id uuid.UUID, action string) {
	var err error
	switch action {
	case "advance":
		err = h.manager.Advance(id)
	case "choose":
		var req ChooseRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			h.logger.Warn("Invalid JSON in choose body", "error", decodeErr)
			writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
		err = h.manager.Choose(id, req.Index)
	case "fastforward":
		err = h.manager.FastForward(id)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Unknown conversation action: "+action)
		return
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, h.logger, http.StatusGone, "Session already ended")
		return
	case err != nil:
		// Signal-level faults, like an out-of-range choice index, leave the
		// session running.
		h.logger.Warn("Signal rejected", "action", action, "id", id.String(), "error", err)
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	h.handleRead(w, r, id)
}

func (h *ConversationHandler) handleStop(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.manager.Stop(r.Context(), id); err != nil {
		h.logger.Error("Failed to stop session", "error", err, "id", id.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to stop session")
		return
	}
	h.logger.Debug("Session stopped", "id", id.String())
	w.WriteHeader(http.StatusNoContent)
}
