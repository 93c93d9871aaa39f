// Package dialogue defines the request/response contracts of the NPC
// dialogue API and the generation-collaborator payload shared across the
// pipeline.
package dialogue

import (
	"fmt"

	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/state"
)

// TurnRequest is one player turn submitted to the dialogue API.
type TurnRequest struct {
	SessionID string          `json:"session_id"`
	NPCID     string          `json:"npc_id"`
	UserInput string          `json:"user_input"`
	Context   *state.Snapshot `json:"context"`
}

// Validate rejects requests missing mandatory fields before the pipeline starts.
func (r *TurnRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.NPCID == "" {
		return fmt.Errorf("npc_id is required")
	}
	if r.UserInput == "" {
		return fmt.Errorf("user_input is required")
	}
	if r.Context == nil {
		return fmt.Errorf("context is required")
	}
	return nil
}

// TurnResponse is the reconciled result of one dialogue turn.
type TurnResponse struct {
	SessionID     string             `json:"session_id"`
	NPCOutputText string             `json:"npc_output_text"`
	Deltas        map[string]float64 `json:"deltas"`
	Flags         map[string]int     `json:"flags"`
	Valid         bool               `json:"valid"`
	Meta          *TurnMeta          `json:"meta,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// TurnMeta carries diagnostic metadata alongside the reconciled result.
type TurnMeta struct {
	NPCID             string                 `json:"npc_id"`
	QuestStage        string                 `json:"quest_stage"`
	Location          string                 `json:"location"`
	AdditionalTrigger bool                   `json:"additional_trigger"`
	TriggerMeta       *knowledge.TriggerMeta `json:"trigger_meta,omitempty"`
	Confidence        float64                `json:"confidence,omitempty"`
	FlagsDetail       map[string]FlagDetail  `json:"flags_detail,omitempty"`
	FlagsValues       map[string]string      `json:"flags_values,omitempty"`
	ValueContexts     map[string][]string    `json:"value_contexts,omitempty"`
}

// FlagDetail exposes the per-flag scoring signals for observability.
type FlagDetail struct {
	ModelProb float64 `json:"model_prob"`
	RAGScore  float64 `json:"rag_score"`
	EmbedSim  float64 `json:"embed_sim"`
	Penalty   float64 `json:"penalty"`
	Blended   float64 `json:"blended"`
	Used      float64 `json:"used"`
	Threshold float64 `json:"threshold"`
	Decision  int     `json:"decision"`
}

// GenerationResult is what the text-generation collaborator returns for one
// prompt: generated text plus optional model-predicted signals.
type GenerationResult struct {
	Text           string             `json:"text"`
	Deltas         map[string]float64 `json:"deltas,omitempty"`
	FlagProbs      map[string]float64 `json:"flags_prob,omitempty"`
	FlagThresholds map[string]float64 `json:"flags_thr,omitempty"`
}
