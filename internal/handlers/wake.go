package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/questforge/dialogue-engine/pkg/knowledge"
)

// WakeRequest asks the engine to warm an NPC's knowledge bundle ahead of the
// first dialogue turn, so the opening exchange avoids a cold retrieval.
type WakeRequest struct {
	NPCID      string `json:"npc_id"`
	QuestStage string `json:"quest_stage"`
	Location   string `json:"location"`
}

type WakeResponse struct {
	NPCID     string `json:"npc_id"`
	Documents int    `json:"documents"`
	Error     string `json:"error,omitempty"`
}

// WakeHandler handles NPC warmup requests
type WakeHandler struct {
	bundler *knowledge.Bundler
	logger  *slog.Logger
}

// NewWakeHandler creates a new wake handler
func NewWakeHandler(bundler *knowledge.Bundler, logger *slog.Logger) *WakeHandler {
	return &WakeHandler{
		bundler: bundler,
		logger:  logger,
	}
}

// ServeHTTP handles POST /wake
func (h *WakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, WakeResponse{
			Error: "Method not allowed. Only POST is supported.",
		})
		return
	}

	var request WakeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid wake request body", "error", err)
		writeJSON(w, h.logger, http.StatusBadRequest, WakeResponse{
			Error: "Invalid request body.",
		})
		return
	}
	if request.NPCID == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, WakeResponse{
			Error: "npc_id is required",
		})
		return
	}
	if request.QuestStage == "" {
		request.QuestStage = "default"
	}
	if request.Location == "" {
		request.Location = "unknown"
	}

	bundle, err := h.bundler.LoadBundle(r.Context(), request.NPCID, request.QuestStage, request.Location)
	if err != nil {
		h.logger.Error("Wake failed", "npc_id", request.NPCID, "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, WakeResponse{
			NPCID: request.NPCID,
			Error: "Failed to load knowledge bundle.",
		})
		return
	}

	h.logger.Info("NPC warmed", "npc_id", request.NPCID, "documents", bundle.Size())
	writeJSON(w, h.logger, http.StatusOK, WakeResponse{
		NPCID:     request.NPCID,
		Documents: bundle.Size(),
	})
}
