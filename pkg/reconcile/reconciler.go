package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
	"github.com/questforge/dialogue-engine/pkg/embeddings"
	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/state"
)

// Generator produces text for a prompt. The reconciler uses it for the
// validation/rewrite pass over main-path responses.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*dialogue.GenerationResult, error)
}

// ValueFlags is the fixed set of flags that carry a resolved textual value.
var ValueFlags = []string{"give_item", "npc_action", "change_player_state", "change_game_state"}

// Config holds the hand-tuned fusion thresholds. Higher means stricter; the
// specific values are calibration, not invariants.
type Config struct {
	// AlphaModel weighs model-predicted probability against the retrieved
	// reference score in blended flag scores and thresholds.
	AlphaModel float64
	// SimThreshold gates both the delta bias correction and the
	// near-boundary distrust check on the model/reference score vectors.
	SimThreshold float64
	// DiffThreshold is the minimum raw-vs-expected delta divergence before
	// bias correction applies.
	DiffThreshold float64
	// Blend is the pull ratio toward the expected delta value.
	Blend float64
	// Margin is the half-width of the near-decision-boundary band.
	Margin float64
	// RandomJitter is the symmetric jitter applied to non-reference scores.
	RandomJitter float64
	// EmbedWeight scales the embedding-similarity term of blended scores.
	EmbedWeight float64
	// PenaltyTrust and PenaltyRelationship are the consistency penalties
	// subtracted when a reconciled delta sign contradicts the expected sign.
	PenaltyTrust        float64
	PenaltyRelationship float64
}

// DefaultConfig returns the calibrated fusion settings.
func DefaultConfig() Config {
	return Config{
		AlphaModel:          0.6,
		SimThreshold:        0.78,
		DiffThreshold:       0.3,
		Blend:               0.6,
		Margin:              0.08,
		RandomJitter:        0.03,
		EmbedWeight:         0.2,
		PenaltyTrust:        0.08,
		PenaltyRelationship: 0.06,
	}
}

// Input is everything the reconciler needs for one turn.
type Input struct {
	RawText   string
	Model     *dialogue.GenerationResult
	Bundle    knowledge.Bundle
	Context   *state.ParsedContext
	UserInput string
}

// Result is the reconciled outcome of one main-path turn.
type Result struct {
	ResponseText  string
	Valid         bool
	Deltas        map[string]float64
	Flags         map[string]int
	FlagsDetail   map[string]dialogue.FlagDetail
	FlagsValues   map[string]string
	ValueContexts map[string][]string
}

// Reconciler fuses model output with retrieved reference data. Safe for
// concurrent use; the jitter source is the only mutable state and is guarded
// by rngMu.
type Reconciler struct {
	embedder  embeddings.Provider
	generator Generator
	cfg       Config
	rngMu     sync.Mutex
	rng       *rand.Rand
	logger    *slog.Logger
}

// New creates a reconciler. rng seeds the jitter step; pass a fixed-seed
// source in tests to make near-boundary outcomes reproducible.
func New(embedder embeddings.Provider, generator Generator, cfg Config, rng *rand.Rand, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Reconciler{
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
		rng:       rng,
		logger:    logger,
	}
}

// Reconcile runs the full main-path reconciliation: tag extraction, delta
// bias correction, flag fusion, value resolution, and the validation pass.
func (r *Reconciler) Reconcile(ctx context.Context, in *Input) (*Result, error) {
	if in == nil || in.Context == nil {
		return nil, fmt.Errorf("reconcile input and context are required")
	}

	tags := ExtractTags(in.RawText)
	res := &Result{
		ResponseText:  tags.Response,
		Valid:         tags.ResponseFound,
		Flags:         map[string]int{},
		FlagsDetail:   map[string]dialogue.FlagDetail{},
		FlagsValues:   map[string]string{},
		ValueContexts: map[string][]string{},
	}

	res.Deltas = r.reconcileDeltas(ctx, in, tags)
	r.reconcileFlags(ctx, in, tags, res)
	r.resolveFlagValues(in, res)

	final, err := r.validateResponse(ctx, in, res)
	if err != nil {
		// Degrade: the candidate response stands when the rewrite
		// collaborator is unavailable.
		r.logger.Warn("response validation pass failed, keeping candidate",
			"npc_id", in.Context.NPCID, "error", err)
	} else if final != "" {
		res.ResponseText = final
	}

	return res, nil
}

// ReconcileFallback runs the restricted reconciliation of the fallback path:
// only the utterance is taken from the model, the turn's delta is fixed to
// the matched trigger's scripted delta, and no flags are extracted.
func (r *Reconciler) ReconcileFallback(ctx context.Context, in *Input, meta *knowledge.TriggerMeta) (*Result, error) {
	if in == nil {
		return nil, fmt.Errorf("reconcile input is required")
	}

	tags := ExtractTags(in.RawText)
	res := &Result{
		ResponseText: tags.Response,
		Valid:        false,
		Deltas:       map[string]float64{},
		Flags:        map[string]int{},
	}
	if meta != nil {
		for key, val := range meta.Delta {
			res.Deltas[key] = state.ClampDelta(val)
		}
		r.checkFallbackExpectations(ctx, res.ResponseText, meta)
	}
	return res, nil
}

// fallbackExpectationFloor is the minimum similarity between a fallback
// utterance and the matched trigger's scripted action/emotion before a
// divergence warning is logged.
const fallbackExpectationFloor = 0.3

// checkFallbackExpectations compares the fallback utterance against the
// matched trigger's npc_action and npc_emotion. A divergence is logged,
// never rejected; the turn is already marked invalid.
func (r *Reconciler) checkFallbackExpectations(ctx context.Context, response string, meta *knowledge.TriggerMeta) {
	expect := strings.TrimSpace(meta.NPCAction + " " + meta.NPCEmotion)
	if expect == "" || response == "" || r.embedder == nil {
		return
	}
	vecs, err := r.embedder.EmbedBatch(ctx, []string{response, expect})
	if err != nil || len(vecs) != 2 {
		return
	}
	if sim := embeddings.Cosine(vecs[0], vecs[1]); sim < fallbackExpectationFloor {
		r.logger.Warn("fallback response diverges from trigger expectations",
			"trigger", meta.Trigger, "similarity", sim)
	}
}

// reconcileDeltas clamps the raw deltas and applies the bias correction
// toward expected values when the narrative context strongly supports it.
func (r *Reconciler) reconcileDeltas(ctx context.Context, in *Input, tags Extracted) map[string]float64 {
	deltas := map[string]float64{}
	for _, key := range []string{"trust", "relationship"} {
		if raw, ok := tags.Deltas[key]; ok {
			deltas[key] = state.ClampDelta(raw)
		} else if in.Model != nil {
			if raw, ok := in.Model.Deltas[key]; ok {
				deltas[key] = state.ClampDelta(raw)
			}
		}
	}

	def := in.Bundle.TriggerDef()
	if def == nil || len(def.DeltaExpected) == 0 {
		return deltas
	}

	contextText := r.turnContextText(in, tags)
	for key, expected := range def.DeltaExpected {
		raw, ok := deltas[key]
		if !ok {
			continue
		}
		gap, err := r.exampleSimilarityGap(ctx, contextText, in.Bundle, key, expected)
		if err != nil {
			r.logger.Warn("delta bias correction skipped, embedding unavailable",
				"key", key, "error", err)
			continue
		}
		if gap >= r.cfg.SimThreshold-0.1 && math.Abs(raw-expected) > r.cfg.DiffThreshold {
			deltas[key] = state.ClampDelta(r.cfg.Blend*expected + (1-r.cfg.Blend)*raw)
		}
	}
	return deltas
}

// turnContextText joins player input, npc response, and flag names into the
// text whose embedding is compared against curated examples.
func (r *Reconciler) turnContextText(in *Input, tags Extracted) string {
	parts := []string{in.UserInput, tags.Response}
	names := make([]string, 0, len(tags.Flags))
	for name := range tags.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	parts = append(parts, names...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// docTypeWeight scales example similarity by how authoritative the source
// document kind is.
func docTypeWeight(t knowledge.DocType) float64 {
	switch t {
	case knowledge.DocFlagDef:
		return 1.0
	case knowledge.DocTriggerMeta:
		return 0.9
	default:
		return 0.75
	}
}

// exampleSimilarityGap computes the weighted positive-minus-negative example
// similarity for deltas moving in the expected direction of key.
func (r *Reconciler) exampleSimilarityGap(ctx context.Context, contextText string, bundle knowledge.Bundle, key string, expected float64) (float64, error) {
	var positive, negative []string
	var posWeights, negWeights []float64
	for _, doc := range bundle[knowledge.DocFlagDef] {
		if doc.Flag == nil {
			continue
		}
		want, ok := doc.Flag.ExpectedDelta[key]
		if !ok || !sameSign(want, expected) {
			continue
		}
		w := docTypeWeight(doc.Type)
		for range doc.Flag.ExamplesPositive {
			posWeights = append(posWeights, w)
		}
		for range doc.Flag.ExamplesNegative {
			negWeights = append(negWeights, w)
		}
		positive = append(positive, doc.Flag.ExamplesPositive...)
		negative = append(negative, doc.Flag.ExamplesNegative...)
	}
	if len(positive) == 0 {
		return 0, nil
	}

	inputs := append([]string{contextText}, positive...)
	inputs = append(inputs, negative...)
	vecs, err := r.embedder.EmbedBatch(ctx, inputs)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(inputs) {
		return 0, fmt.Errorf("embedding batch returned %d vectors for %d inputs", len(vecs), len(inputs))
	}

	query := vecs[0]
	var posBest, negBest float64
	for i := range positive {
		sim := embeddings.Cosine(query, vecs[1+i]) * posWeights[i]
		if sim > posBest {
			posBest = sim
		}
	}
	for i := range negative {
		sim := embeddings.Cosine(query, vecs[1+len(positive)+i]) * negWeights[i]
		if sim > negBest {
			negBest = sim
		}
	}
	return posBest - negBest, nil
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}

// reconcileFlags runs the five-step fusion for every flag the retrieved
// flag_def set knows about.
func (r *Reconciler) reconcileFlags(ctx context.Context, in *Input, tags Extracted, res *Result) {
	defs := in.Bundle.FlagDefs()
	if len(defs) == 0 {
		return
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	// Score-vector agreement between the model and the reference set,
	// computed once across all known flags.
	modelVec := make([]float64, len(names))
	ragVec := make([]float64, len(names))
	for i, name := range names {
		modelVec[i] = r.modelProb(in, tags, name)
		ragVec[i] = defs[name].RAGScore
	}
	vecAgreement := scoreCosine(modelVec, ragVec)

	npcVec, embedErr := r.embedder.Embed(ctx, res.ResponseText)
	if embedErr != nil {
		r.logger.Warn("flag embedding unavailable, similarity term set to zero", "error", embedErr)
	}

	for i, name := range names {
		def := defs[name]
		modelProb := modelVec[i]
		threshold := def.Threshold
		if in.Model != nil {
			if thr, ok := in.Model.FlagThresholds[name]; ok {
				threshold = thr
			}
		}

		embSim := 0.0
		if embedErr == nil && len(def.ExamplesPositive) > 0 {
			if exVecs, err := r.embedder.EmbedBatch(ctx, def.ExamplesPositive); err == nil {
				embSim, _ = embeddings.MaxCosine(npcVec, exVecs)
			} else {
				r.logger.Warn("flag example embedding unavailable", "flag", name, "error", err)
			}
		}

		penalty := r.consistencyPenalty(def, res.Deltas)

		alpha := r.cfg.AlphaModel
		blended := alpha*modelProb + (1-alpha)*def.RAGScore + r.cfg.EmbedWeight*embSim - penalty
		blendThr := alpha*threshold + (1-alpha)*0.5

		used := blended
		if math.Abs(blended-blendThr) <= r.cfg.Margin && vecAgreement < r.cfg.SimThreshold {
			// Near the boundary with disagreeing patterns: distrust
			// the model and decide on the reference score alone.
			used = def.RAGScore
		}
		if used != def.RAGScore {
			r.rngMu.Lock()
			jitter := r.rng.Float64()
			r.rngMu.Unlock()
			used += (jitter*2 - 1) * r.cfg.RandomJitter
			used = math.Min(1, math.Max(0, used))
		}

		decision := 0
		if used >= blendThr {
			decision = 1
		}

		res.Flags[name] = decision
		res.FlagsDetail[name] = dialogue.FlagDetail{
			ModelProb: modelProb,
			RAGScore:  def.RAGScore,
			EmbedSim:  embSim,
			Penalty:   penalty,
			Blended:   blended,
			Used:      used,
			Threshold: blendThr,
			Decision:  decision,
		}
	}
}

func (r *Reconciler) modelProb(in *Input, tags Extracted, name string) float64 {
	if p, ok := tags.Flags[name]; ok {
		return p
	}
	if in.Model != nil {
		if p, ok := in.Model.FlagProbs[name]; ok {
			return p
		}
	}
	return 0
}

// consistencyPenalty fires when the reconciled delta sign contradicts the
// flag's expected delta sign for trust or relationship.
func (r *Reconciler) consistencyPenalty(def *knowledge.FlagDef, deltas map[string]float64) float64 {
	penalty := 0.0
	if expected, ok := def.ExpectedDelta["trust"]; ok {
		if got, have := deltas["trust"]; have && got != 0 && !sameSign(got, expected) {
			penalty += r.cfg.PenaltyTrust
		}
	}
	if expected, ok := def.ExpectedDelta["relationship"]; ok {
		if got, have := deltas["relationship"]; have && got != 0 && !sameSign(got, expected) {
			penalty += r.cfg.PenaltyRelationship
		}
	}
	return penalty
}

// resolveFlagValues fills in the textual value behind each decided
// value-bearing flag from the latest recorded canonical exchange, plus the
// bundled sentences that mention the value.
func (r *Reconciler) resolveFlagValues(in *Input, res *Result) {
	record := in.Bundle.LatestDialogueRecord()
	if record == nil {
		return
	}
	for _, name := range ValueFlags {
		if res.Flags[name] != 1 {
			continue
		}
		value, ok := record.FlagValues[name]
		if !ok || value == "" {
			continue
		}
		res.FlagsValues[name] = value

		var contexts []string
		for _, text := range in.Bundle.Texts() {
			if strings.Contains(text, value) {
				contexts = append(contexts, text)
			}
		}
		if len(contexts) > 0 {
			res.ValueContexts[name] = contexts
		}
	}
}

// defaultValidatePolicy applies when the bundle carries no main_res_validate
// document.
const defaultValidatePolicy = "Keep the response in character, avoid references to game systems or internal mechanics, and soften harsh or sensitive phrasing while preserving meaning."

// validateResponse asks the generation collaborator to pass through or
// rewrite the candidate response to satisfy the content policy, constrained
// to a single output line.
func (r *Reconciler) validateResponse(ctx context.Context, in *Input, res *Result) (string, error) {
	if r.generator == nil {
		return "", nil
	}

	policy := in.Bundle.ValidatePolicy()
	if policy == "" {
		policy = defaultValidatePolicy
	}

	var sb strings.Builder
	sb.WriteString("Review the NPC response below against the policy. If it already satisfies the policy, return it unchanged; otherwise rewrite it minimally. Output exactly one line containing only the final response.\n")
	fmt.Fprintf(&sb, "POLICY: %s\n", policy)
	fmt.Fprintf(&sb, "PLAYER: %s\n", in.UserInput)
	fmt.Fprintf(&sb, "RESPONSE: %s\n", res.ResponseText)
	fmt.Fprintf(&sb, "DELTAS: %s\n", formatFloatMap(res.Deltas))
	fmt.Fprintf(&sb, "FLAGS: %s\n", formatIntMap(res.Flags))
	for _, name := range ValueFlags {
		if value, ok := res.FlagsValues[name]; ok {
			fmt.Fprintf(&sb, "VALUE %s=%s\n", name, value)
			for _, c := range res.ValueContexts[name] {
				fmt.Fprintf(&sb, "  CONTEXT: %s\n", c)
			}
		}
	}

	gen, err := r.generator.Generate(ctx, sb.String())
	if err != nil {
		return "", err
	}
	return firstLine(gen.Text), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func formatFloatMap(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func formatIntMap(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// scoreCosine is cosine similarity over plain float64 score vectors.
func scoreCosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
