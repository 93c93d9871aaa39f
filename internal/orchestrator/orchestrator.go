// Package orchestrator runs the per-turn dialogue pipeline: gate evaluation,
// knowledge bundling, prompt assembly, generation, and reconciliation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/questforge/dialogue-engine/internal/services"
	"github.com/questforge/dialogue-engine/pkg/dialogue"
	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/prompts"
	"github.com/questforge/dialogue-engine/pkg/reconcile"
	"github.com/questforge/dialogue-engine/pkg/state"
	"github.com/questforge/dialogue-engine/pkg/trigger"
)

// SessionLog is the slice of the session store the orchestrator needs.
type SessionLog interface {
	AppendTurn(ctx context.Context, sessionID string, turn state.DialogueTurn) error
	History(ctx context.Context, sessionID string, n int) ([]state.DialogueTurn, error)
}

// Pipeline stages, logged per transition. The pipeline is linear: INIT, GATE,
// then exactly one of MAIN or FALLBACK, then RECONCILE and DONE.
const (
	stageInit      = "INIT"
	stageGate      = "GATE"
	stageMain      = "MAIN"
	stageFallback  = "FALLBACK"
	stageReconcile = "RECONCILE"
	stageDone      = "DONE"
)

// Orchestrator wires the pipeline collaborators. All dependencies are
// injected; the orchestrator holds no global registries.
type Orchestrator struct {
	bundler       *knowledge.Bundler
	gate          *trigger.Gate
	reconciler    *reconcile.Reconciler
	generator     services.GenerationService
	sessions      SessionLog
	historyWindow int
	logger        *slog.Logger
}

// New creates an orchestrator. sessions may be nil, in which case dialogue
// history comes only from the request snapshot.
func New(
	bundler *knowledge.Bundler,
	gate *trigger.Gate,
	reconciler *reconcile.Reconciler,
	generator services.GenerationService,
	sessions SessionLog,
	historyWindow int,
	logger *slog.Logger,
) *Orchestrator {
	if historyWindow <= 0 {
		historyWindow = prompts.DefaultHistoryWindow
	}
	return &Orchestrator{
		bundler:       bundler,
		gate:          gate,
		reconciler:    reconciler,
		generator:     generator,
		sessions:      sessions,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

// HandleTurn runs one full dialogue turn.
func (o *Orchestrator) HandleTurn(ctx context.Context, req *dialogue.TurnRequest) (*dialogue.TurnResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := o.logger.With("session_id", req.SessionID, "npc_id", req.NPCID)
	log.Debug("Pipeline stage", "stage", stageInit)

	pc, err := state.ParseContext(req.NPCID, req.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse context: %w", err)
	}
	o.fillHistory(ctx, req.SessionID, pc, log)

	bundle, err := o.bundler.LoadBundle(ctx, pc.NPCID, pc.QuestStage, pc.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge bundle: %w", err)
	}

	log.Debug("Pipeline stage", "stage", stageGate)
	gateRes, err := o.gate.Evaluate(ctx, req.UserInput, pc, bundle)
	if err != nil {
		return nil, fmt.Errorf("trigger gate failed: %w", err)
	}

	var result *reconcile.Result
	meta := &dialogue.TurnMeta{
		NPCID:             pc.NPCID,
		QuestStage:        pc.QuestStage,
		Location:          pc.Location,
		AdditionalTrigger: gateRes.AdditionalTrigger,
		TriggerMeta:       gateRes.TriggerMeta,
		Confidence:        gateRes.Confidence,
	}

	if gateRes.IsValid {
		log.Debug("Pipeline stage", "stage", stageMain)
		result, err = o.runMain(ctx, req, pc, bundle, log)
	} else {
		log.Debug("Pipeline stage", "stage", stageFallback, "additional_trigger", gateRes.AdditionalTrigger)
		result, err = o.runFallback(ctx, req, pc, bundle, gateRes, log)
	}
	if err != nil {
		return nil, err
	}

	meta.FlagsDetail = result.FlagsDetail
	meta.FlagsValues = result.FlagsValues
	meta.ValueContexts = result.ValueContexts

	resp := &dialogue.TurnResponse{
		SessionID:     req.SessionID,
		NPCOutputText: result.ResponseText,
		Deltas:        result.Deltas,
		Flags:         result.Flags,
		Valid:         gateRes.IsValid && result.Valid,
		Meta:          meta,
	}

	o.recordTurn(ctx, req, resp, log)
	log.Debug("Pipeline stage", "stage", stageDone, "valid", resp.Valid)
	return resp, nil
}

// runMain builds the main prompt, generates, and runs full reconciliation.
func (o *Orchestrator) runMain(ctx context.Context, req *dialogue.TurnRequest, pc *state.ParsedContext, bundle knowledge.Bundle, log *slog.Logger) (*reconcile.Result, error) {
	prompt, err := prompts.New().
		WithMode(prompts.ModeMain).
		WithSession(req.SessionID).
		WithContext(pc).
		WithBundle(bundle).
		WithHistoryWindow(o.historyWindow).
		WithUserInput(req.UserInput).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build main prompt: %w", err)
	}

	gen, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	log.Debug("Pipeline stage", "stage", stageReconcile)
	result, err := o.reconciler.Reconcile(ctx, &reconcile.Input{
		RawText:   gen.Text,
		Model:     gen,
		Bundle:    bundle,
		Context:   pc,
		UserInput: req.UserInput,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation failed: %w", err)
	}
	return result, nil
}

// runFallback builds the fallback prompt, generates, and runs the restricted
// reconciliation. On a recognized forbidden trigger the turn's delta is the
// scripted trigger_meta delta, never model-predicted.
func (o *Orchestrator) runFallback(ctx context.Context, req *dialogue.TurnRequest, pc *state.ParsedContext, bundle knowledge.Bundle, gateRes *trigger.Result, log *slog.Logger) (*reconcile.Result, error) {
	prompt, err := prompts.New().
		WithMode(prompts.ModeFallback).
		WithSession(req.SessionID).
		WithContext(pc).
		WithBundle(bundle).
		WithHistoryWindow(o.historyWindow).
		WithUserInput(req.UserInput).
		WithFallbackStyle(gateRes.FallbackStyle).
		WithTriggerMeta(gateRes.TriggerMeta, gateRes.AdditionalTrigger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build fallback prompt: %w", err)
	}

	gen, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	log.Debug("Pipeline stage", "stage", stageReconcile, "restricted", true)
	var meta *knowledge.TriggerMeta
	if gateRes.AdditionalTrigger {
		meta = gateRes.TriggerMeta
	}
	result, err := o.reconciler.ReconcileFallback(ctx, &reconcile.Input{
		RawText:   gen.Text,
		Bundle:    bundle,
		Context:   pc,
		UserInput: req.UserInput,
	}, meta)
	if err != nil {
		return nil, fmt.Errorf("reconciliation failed: %w", err)
	}
	return result, nil
}

// fillHistory backfills dialogue history from the session log when the
// request snapshot carries none.
func (o *Orchestrator) fillHistory(ctx context.Context, sessionID string, pc *state.ParsedContext, log *slog.Logger) {
	if o.sessions == nil || len(pc.History) > 0 {
		return
	}
	turns, err := o.sessions.History(ctx, sessionID, o.historyWindow)
	if err != nil {
		log.Warn("Failed to load session history", "error", err)
		return
	}
	pc.History = turns
}

// recordTurn appends the completed exchange to the session log, best effort.
func (o *Orchestrator) recordTurn(ctx context.Context, req *dialogue.TurnRequest, resp *dialogue.TurnResponse, log *slog.Logger) {
	if o.sessions == nil {
		return
	}
	turn := state.DialogueTurn{Player: req.UserInput, NPC: resp.NPCOutputText}
	if err := o.sessions.AppendTurn(ctx, req.SessionID, turn); err != nil {
		log.Warn("Failed to record session turn", "error", err)
	}
}
