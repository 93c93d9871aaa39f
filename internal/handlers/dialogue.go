package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/questforge/dialogue-engine/internal/logger"
	"github.com/questforge/dialogue-engine/internal/orchestrator"
	"github.com/questforge/dialogue-engine/pkg/dialogue"
)

// DialogueHandler handles dialogue turn requests
type DialogueHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewDialogueHandler creates a new dialogue handler
func NewDialogueHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *DialogueHandler {
	return &DialogueHandler{
		orch:   orch,
		logger: logger,
	}
}

// ServeHTTP handles POST /v1/dialogue
func (h *DialogueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for dialogue endpoint",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, dialogue.TurnResponse{
			Error: "Method not allowed. Only POST is supported.",
		})
		return
	}

	log := logger.WithRequestID(h.logger, uuid.NewString())
	log.Info("Dialogue endpoint accessed",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	var request dialogue.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		log.Warn("Invalid request body", "error", err)
		writeJSON(w, log, http.StatusBadRequest, dialogue.TurnResponse{
			Error: "Invalid request body. Expected a JSON dialogue turn request.",
		})
		return
	}

	// Reject before the pipeline starts.
	if err := request.Validate(); err != nil {
		log.Warn("Invalid dialogue request", "error", err)
		writeJSON(w, log, http.StatusBadRequest, dialogue.TurnResponse{
			SessionID: request.SessionID,
			Error:     err.Error(),
		})
		return
	}

	resp, err := h.orch.HandleTurn(r.Context(), &request)
	if err != nil {
		log.Error("Dialogue turn failed",
			"session_id", request.SessionID,
			"npc_id", request.NPCID,
			"error", err)
		writeJSON(w, log, http.StatusInternalServerError, dialogue.TurnResponse{
			SessionID: request.SessionID,
			Error:     "Failed to process dialogue turn.",
		})
		return
	}

	writeJSON(w, log, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Error encoding response", "error", err)
	}
}
