package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
	"github.com/questforge/dialogue-engine/pkg/embeddings"
	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/state"
)

// Similarity bands for stage-2 semantic detection. At or above
// DirectMatchThreshold a candidate matches outright; inside the escalation
// band a generative yes/no confirmation decides.
const (
	DirectMatchThreshold = 0.75
	EscalateThreshold    = 0.65
)

// Generator is the slice of the generation collaborator the gate needs for
// escalated yes/no confirmation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*dialogue.GenerationResult, error)
}

// Result is the outcome of gate evaluation for one turn.
type Result struct {
	// IsValid is true only when the deterministic trigger definition passed;
	// the semantic path never re-promotes a turn to valid.
	IsValid bool

	// AdditionalTrigger marks a recognized special fallback (a forbidden
	// trigger matched semantically), as opposed to a generic fallback.
	AdditionalTrigger bool

	// TriggerMeta is the scripted reaction for the matched forbidden trigger.
	TriggerMeta *knowledge.TriggerMeta

	// FallbackStyle is the authored style override from the failed trigger
	// definition, if any.
	FallbackStyle *knowledge.FallbackStyle

	// MatchedText is the candidate string that matched on the semantic path.
	MatchedText string

	// Confidence is the embedding similarity of the semantic match.
	Confidence float64
}

// Gate evaluates trigger conditions for a turn.
type Gate struct {
	embedder  embeddings.Provider
	generator Generator
	logger    *slog.Logger
}

// NewGate creates a trigger gate. The generator is only consulted for
// escalated confirmations and may be shared with the main pipeline.
func NewGate(embedder embeddings.Provider, generator Generator, logger *slog.Logger) *Gate {
	return &Gate{
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}
}

// Evaluate runs stage 1 against the bundle's trigger definition and, only on
// failure, stage 2 against the forbidden-trigger candidate lists. Collaborator
// failures on the semantic path degrade to "no match": the gate never guesses
// a trigger.
func (g *Gate) Evaluate(ctx context.Context, input string, pc *state.ParsedContext, bundle knowledge.Bundle) (*Result, error) {
	def := bundle.TriggerDef()
	if def != nil && Satisfied(def, input, pc.Require) {
		g.logger.Debug("Trigger definition satisfied", "npc_id", pc.NPCID, "trigger", def.Name)
		return &Result{IsValid: true}, nil
	}

	res := &Result{}
	if def != nil {
		res.FallbackStyle = def.FallbackStyle
	}

	forbidden := bundle.ForbiddenTriggers()
	if forbidden == nil {
		return res, nil
	}

	match, err := g.detect(ctx, input, forbidden)
	if err != nil {
		g.logger.Warn("Semantic trigger detection degraded to no match",
			"npc_id", pc.NPCID, "error", err)
		return res, nil
	}
	if match == nil {
		return res, nil
	}

	res.AdditionalTrigger = true
	res.MatchedText = match.text
	res.Confidence = match.score
	res.TriggerMeta = bundle.TriggerMetaFor(match.text)
	g.logger.Info("Forbidden trigger matched",
		"npc_id", pc.NPCID, "matched", match.text, "confidence", match.score, "escalated", match.escalated)
	return res, nil
}

type semanticMatch struct {
	text      string
	score     float64
	escalated bool
}

// detect embeds the input and both candidate lists in one batch and applies
// the band thresholds. DirectMatchThreshold is inclusive.
func (g *Gate) detect(ctx context.Context, input string, forbidden *knowledge.ForbiddenTriggers) (*semanticMatch, error) {
	texts := make([]string, 0, 1+len(forbidden.Keywords)+len(forbidden.Texts))
	texts = append(texts, input)
	texts = append(texts, forbidden.Keywords...)
	texts = append(texts, forbidden.Texts...)

	vecs, err := g.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed trigger candidates: %w", err)
	}

	inputVec := vecs[0]
	kwVecs := vecs[1 : 1+len(forbidden.Keywords)]
	txtVecs := vecs[1+len(forbidden.Keywords):]

	kwScore, kwIdx := embeddings.MaxCosine(inputVec, kwVecs)
	txtScore, txtIdx := embeddings.MaxCosine(inputVec, txtVecs)

	switch {
	case kwIdx >= 0 && kwScore >= DirectMatchThreshold && kwScore >= txtScore:
		return &semanticMatch{text: forbidden.Keywords[kwIdx], score: kwScore}, nil
	case txtIdx >= 0 && txtScore >= DirectMatchThreshold:
		return &semanticMatch{text: forbidden.Texts[txtIdx], score: txtScore}, nil
	}

	best, bestText := kwScore, ""
	if kwIdx >= 0 {
		bestText = forbidden.Keywords[kwIdx]
	}
	if txtScore > best || bestText == "" {
		best = txtScore
		if txtIdx >= 0 {
			bestText = forbidden.Texts[txtIdx]
		}
	}
	if bestText == "" || best < EscalateThreshold {
		return nil, nil
	}

	confirmed, err := g.confirm(ctx, input, bestText)
	if err != nil {
		return nil, fmt.Errorf("escalated confirmation failed: %w", err)
	}
	if !confirmed {
		return nil, nil
	}
	return &semanticMatch{text: bestText, score: best, escalated: true}, nil
}

// confirm asks the generation collaborator a strict yes/no semantic
// equivalence question. Anything other than a clear affirmative resolves to
// no match.
func (g *Gate) confirm(ctx context.Context, input, candidate string) (bool, error) {
	prompt := fmt.Sprintf(
		"Answer strictly YES or NO.\nDo these two utterances mean the same thing?\nA: %q\nB: %q\nAnswer:",
		input, candidate)

	result, err := g.generator.Generate(ctx, prompt)
	if err != nil {
		return false, err
	}
	return isAffirmative(result.Text), nil
}

// isAffirmative recognizes YES, the Korean 예/네, and any prefix of those
// (Y, YE) as the leading token of the reply.
func isAffirmative(reply string) bool {
	norm := strings.ToUpper(strings.TrimSpace(reply))
	token := norm
	if i := strings.IndexFunc(norm, unicode.IsSpace); i > 0 {
		token = norm[:i]
	}
	token = strings.Trim(token, ".,!?")
	if token == "" {
		return false
	}
	for _, affirm := range []string{"YES", "예", "네"} {
		if strings.HasPrefix(affirm, token) || strings.HasPrefix(token, affirm) {
			return true
		}
	}
	return false
}
