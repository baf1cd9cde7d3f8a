package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
)

// DocumentInventory is the response body of GET /v1/documents.
type DocumentInventory struct {
	Baseline  string   `json:"baseline"`
	Language  string   `json:"language"`
	Languages []string `json:"languages"`
	Documents []string `json:"documents"`
}

// DocumentDetail is the response body of GET /v1/documents/{id}.
type DocumentDetail struct {
	ID        string   `json:"id"`
	Languages []string `json:"languages"`
	Starters  []string `json:"starters"`
	Lines     int      `json:"lines"`
}

// DocumentsHandler serves the dialogue library inventory
type DocumentsHandler struct {
	library *storage.Library
	logger  *slog.Logger
}

func NewDocumentsHandler(library *storage.Library, logger *slog.Logger) *DocumentsHandler {
	return &DocumentsHandler{
		library: library,
		logger:  logger,
	}
}

// ServeHTTP handles HTTP requests for the document inventory
// Routes:
// GET /v1/documents            - List loaded documents (?language= filters)
// GET /v1/documents/{id}       - Describe one document
func (h *DocumentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		h.logger.Warn("Method not allowed for documents endpoint", "method", r.Method)
		writeError(w, h.logger, http.StatusMethodNotAllowed,
			"Method not allowed. Only GET is supported.")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents"), "/")
	if id == "" {
		h.handleList(w, r)
		return
	}
	h.handleDetail(w, r, id)
}

func (h *DocumentsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("language")

	inventory := DocumentInventory{
		Baseline:  h.library.Baseline(),
		Language:  lang,
		Languages: h.library.Languages(),
		Documents: h.library.Documents(lang),
	}
	if inventory.Language == "" {
		inventory.Language = h.library.Baseline()
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(inventory); err != nil {
		h.logger.Error("Failed to encode document inventory", "error", err)
	}
}

func (h *DocumentsHandler) handleDetail(w http.ResponseWriter, r *http.Request, id string) {
	lang := r.URL.Query().Get("language")
	graph, ok := h.library.Graph(lang, id)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Dialogue document not found: "+id)
		return
	}

	detail := DocumentDetail{
		ID:        id,
		Languages: h.library.DocumentLanguages(id),
		Starters:  make([]string, 0, len(graph.Starters)),
		Lines:     len(graph.Lines),
	}
	for _, st := range graph.Starters {
		detail.Starters = append(detail.Starters, st.ID)
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(detail); err != nil {
		h.logger.Error("Failed to encode document detail", "error", err)
	}
}
