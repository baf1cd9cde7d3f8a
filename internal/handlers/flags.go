package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
)

// SetFlagsRequest is the body of PUT /v1/flags/{playerID}. Keys map to the
// condition keys dialogue documents test against.
type SetFlagsRequest struct {
	Flags map[string]string `json:"flags"`
}

// FlagsResponse is the body returned by both flag endpoints.
type FlagsResponse struct {
	PlayerID string            `json:"player_id"`
	Flags    map[string]string `json:"flags"`
}

// FlagsHandler exposes the player flag store: the values the condition
// evaluator resolves when selecting starters and branches.
type FlagsHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewFlagsHandler(storage storage.Storage, logger *slog.Logger) *FlagsHandler {
	return &FlagsHandler{
		storage: storage,
		logger:  logger,
	}
}

// ServeHTTP handles HTTP requests for player flags
// Routes:
// GET /v1/flags/{playerID}     - Read a player's flags
// PUT /v1/flags/{playerID}     - Merge flags into a player's store
func (h *FlagsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	playerID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/flags"), "/")
	if playerID == "" || strings.Contains(playerID, "/") {
		writeError(w, h.logger, http.StatusBadRequest, "Expected /v1/flags/{playerID}")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, playerID)
	case http.MethodPut:
		h.handleSet(w, r, playerID)
	default:
		h.logger.Warn("Method not allowed for flags endpoint", "method", r.Method)
		writeError(w, h.logger, http.StatusMethodNotAllowed,
			"Method not allowed. Supported: GET, PUT.")
	}
}

func (h *FlagsHandler) handleGet(w http.ResponseWriter, r *http.Request, playerID string) {
	flags, err := h.storage.GetFlags(r.Context(), playerID)
	if err != nil {
		h.logger.Error("Failed to load flags", "error", err, "player_id", playerID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load flags")
		return
	}
	if flags == nil {
		flags = make(map[string]string)
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(FlagsResponse{PlayerID: playerID, Flags: flags}); err != nil {
		h.logger.Error("Failed to encode flags response", "error", err)
	}
}

func (h *FlagsHandler) handleSet(w http.ResponseWriter, r *http.Request, playerID string) {
	var req SetFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in flags body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if len(req.Flags) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "flags field is required and must not be empty")
		return
	}

	if err := h.storage.SetFlags(r.Context(), playerID, req.Flags); err != nil {
		h.logger.Error("Failed to set flags", "error", err, "player_id", playerID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to set flags")
		return
	}

	h.logger.Debug("Flags updated", "player_id", playerID, "count", len(req.Flags))
	h.handleGet(w, r, playerID)
}
