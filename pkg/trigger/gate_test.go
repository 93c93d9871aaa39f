package trigger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
	embedmock "github.com/questforge/dialogue-engine/pkg/embeddings/mock"
	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/state"
)

// genFunc adapts a function to the Generator interface.
type genFunc func(ctx context.Context, prompt string) (*dialogue.GenerationResult, error)

func (f genFunc) Generate(ctx context.Context, prompt string) (*dialogue.GenerationResult, error) {
	return f(ctx, prompt)
}

func noGen(t *testing.T) Generator {
	return genFunc(func(context.Context, string) (*dialogue.GenerationResult, error) {
		t.Fatal("generator must not be called")
		return nil, nil
	})
}

func gateLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ones returns a 16-dimensional vector with k leading ones. Against the
// all-ones query this yields a cosine similarity of exactly sqrt(k)/4, which
// gives exact control over the threshold bands (k=9 is exactly 0.75).
func ones(k int) []float32 {
	v := make([]float32, 16)
	for i := 0; i < k; i++ {
		v[i] = 1
	}
	return v
}

func parsed(t *testing.T) *state.ParsedContext {
	pc, err := state.ParseContext("npc_001", &state.Snapshot{
		Require: &state.Require{Items: []string{"rusty_key"}},
	})
	require.NoError(t, err)
	return pc
}

func TestGate_Stage1Pass_SkipsSemanticStage(t *testing.T) {
	bundle := knowledge.Bundle{
		knowledge.DocTriggerDef: {
			{Type: knowledge.DocTriggerDef, Trigger: &knowledge.TriggerDef{
				RequiredText:  []string{"key"},
				RequiredItems: &knowledge.Clause{Mandatory: []string{"rusty_key"}},
			}},
		},
		knowledge.DocForbiddenTriggers: {
			{Type: knowledge.DocForbiddenTriggers, Forbidden: &knowledge.ForbiddenTriggers{Keywords: []string{"vault"}}},
		},
	}

	embedder := &embedmock.Provider{Fallback: ones(16)}
	g := NewGate(embedder, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "I brought the key", parsed(t), bundle)
	require.NoError(t, err)

	assert.True(t, res.IsValid)
	assert.False(t, res.AdditionalTrigger)
	assert.Empty(t, embedder.BatchCalls, "stage 2 must not run when stage 1 passes")
}

func forbiddenBundle(keywords, texts []string) knowledge.Bundle {
	return knowledge.Bundle{
		knowledge.DocForbiddenTriggers: {
			{Type: knowledge.DocForbiddenTriggers, Forbidden: &knowledge.ForbiddenTriggers{
				Keywords: keywords,
				Texts:    texts,
			}},
		},
		knowledge.DocTriggerMeta: {
			{Type: knowledge.DocTriggerMeta, Meta: &knowledge.TriggerMeta{
				Trigger:   "open the vault",
				NPCAction: "refuse",
				Delta:     map[string]float64{"trust": -0.2},
			}},
		},
	}
}

func TestGate_DirectKeywordMatch(t *testing.T) {
	embedder := &embedmock.Provider{
		Vectors: map[string][]float32{
			"let me into the vault": ones(16),
			"open the vault":        ones(10), // cos ≈ 0.79
		},
		Fallback: ones(1), // cos 0.25
	}
	g := NewGate(embedder, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "let me into the vault", parsed(t),
		forbiddenBundle([]string{"open the vault"}, []string{"please unlock the door"}))
	require.NoError(t, err)

	assert.False(t, res.IsValid, "semantic path never yields a valid turn")
	assert.True(t, res.AdditionalTrigger)
	assert.Equal(t, "open the vault", res.MatchedText)
	assert.InDelta(t, 0.79, res.Confidence, 0.01)
	require.NotNil(t, res.TriggerMeta)
	assert.Equal(t, "refuse", res.TriggerMeta.NPCAction)
}

func TestGate_BoundaryExactlyAtThresholdIsInclusive(t *testing.T) {
	embedder := &embedmock.Provider{
		Vectors: map[string][]float32{
			"input":          ones(16),
			"open the vault": ones(9), // cos = 0.75 exactly
		},
		Fallback: ones(1),
	}
	g := NewGate(embedder, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "input", parsed(t),
		forbiddenBundle([]string{"open the vault"}, nil))
	require.NoError(t, err)

	assert.True(t, res.AdditionalTrigger, "similarity exactly at 0.75 must match directly")
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
}

func TestGate_TextListWinsWhenHigher(t *testing.T) {
	embedder := &embedmock.Provider{
		Vectors: map[string][]float32{
			"input":                 ones(16),
			"vault":                 ones(10), // 0.79
			"please open the vault": ones(12), // 0.87
		},
		Fallback: ones(1),
	}
	g := NewGate(embedder, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "input", parsed(t),
		forbiddenBundle([]string{"vault"}, []string{"please open the vault"}))
	require.NoError(t, err)

	assert.True(t, res.AdditionalTrigger)
	assert.Equal(t, "please open the vault", res.MatchedText)
}

func TestGate_BelowBandNoMatchNoEscalation(t *testing.T) {
	embedder := &embedmock.Provider{
		Vectors: map[string][]float32{
			"input":          ones(16),
			"open the vault": ones(6), // cos ≈ 0.61 < 0.65
		},
		Fallback: ones(0),
	}
	g := NewGate(embedder, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "input", parsed(t),
		forbiddenBundle([]string{"open the vault"}, nil))
	require.NoError(t, err)

	assert.False(t, res.AdditionalTrigger)
	assert.Nil(t, res.TriggerMeta)
}

func TestGate_EscalationBand(t *testing.T) {
	embedder := &embedmock.Provider{
		Vectors: map[string][]float32{
			"input":          ones(16),
			"open the vault": ones(8), // cos ≈ 0.707, inside [0.65, 0.75)
		},
		Fallback: ones(0),
	}

	tests := []struct {
		name      string
		reply     string
		genErr    error
		wantMatch bool
	}{
		{"affirmative yes", "YES", nil, true},
		{"affirmative prefix", "Y", nil, true},
		{"korean affirmative", "네, 같은 의미입니다", nil, true},
		{"negative", "NO", nil, false},
		{"ambiguous", "perhaps, it depends", nil, false},
		{"empty", "", nil, false},
		{"generator failure degrades to no match", "", errors.New("llm down"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			gen := genFunc(func(_ context.Context, prompt string) (*dialogue.GenerationResult, error) {
				called = true
				assert.Contains(t, prompt, "YES or NO")
				if tt.genErr != nil {
					return nil, tt.genErr
				}
				return &dialogue.GenerationResult{Text: tt.reply}, nil
			})

			g := NewGate(embedder, gen, gateLogger())
			res, err := g.Evaluate(context.Background(), "input", parsed(t),
				forbiddenBundle([]string{"open the vault"}, nil))
			require.NoError(t, err)

			assert.True(t, called, "escalation band must consult the generator")
			assert.Equal(t, tt.wantMatch, res.AdditionalTrigger)
			if tt.wantMatch {
				assert.InDelta(t, 0.707, res.Confidence, 0.01,
					"confidence must be the embedding score that triggered escalation")
			}
		})
	}
}

func TestGate_EmbedderFailureDegradesToNoMatch(t *testing.T) {
	embedder := &embedmock.Provider{Err: errors.New("embedder down")}
	g := NewGate(embedder, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "input", parsed(t),
		forbiddenBundle([]string{"open the vault"}, nil))
	require.NoError(t, err)
	assert.False(t, res.AdditionalTrigger)
}

func TestGate_NoForbiddenList(t *testing.T) {
	g := NewGate(&embedmock.Provider{}, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "input", parsed(t), knowledge.Bundle{})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.False(t, res.AdditionalTrigger)
}

func TestGate_FailedDefCarriesFallbackStyle(t *testing.T) {
	bundle := knowledge.Bundle{
		knowledge.DocTriggerDef: {
			{Type: knowledge.DocTriggerDef, Trigger: &knowledge.TriggerDef{
				RequiredText:  []string{"password"},
				FallbackStyle: &knowledge.FallbackStyle{Style: "dismissive"},
			}},
		},
	}
	g := NewGate(&embedmock.Provider{}, noGen(t), gateLogger())

	res, err := g.Evaluate(context.Background(), "hello", parsed(t), bundle)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.NotNil(t, res.FallbackStyle)
	assert.Equal(t, "dismissive", res.FallbackStyle.Style)
}
