package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/state"
)

func testContext(t *testing.T) *state.ParsedContext {
	t.Helper()
	pc, err := state.ParseContext("guard_01", &state.Snapshot{
		GameState: map[string]any{
			"quest_stage": "stage_2",
			"location":    "castle_gate",
		},
		NPCState: map[string]any{
			"mood":         "wary",
			"style":        "formal",
			"relationship": 0.4,
			"trust":        0.25,
		},
		PlayerState: map[string]any{
			"reputation": "honored",
			"items":      []string{"seal", "letter"},
			"actions":    []string{"bowed"},
		},
		DialogueHistory: []state.DialogueTurn{
			{Player: "Who goes there?", NPC: "State your business."},
			{Player: "I carry the royal seal.", NPC: "Show it, then."},
		},
	})
	require.NoError(t, err)
	return pc
}

func TestBuildMainPrompt(t *testing.T) {
	bundle := knowledge.Bundle{
		knowledge.DocLore:        {{Text: "The gate has stood for a century."}},
		knowledge.DocDescription: {{Text: "A guard in dented plate."}},
	}

	got, err := New().
		WithSession("sess-1").
		WithContext(testContext(t)).
		WithBundle(bundle).
		WithUserInput("Open the gate.").
		Build()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "<SYS>\n"))
	assert.Contains(t, got, "NPC_ID=guard_01\n")
	assert.Contains(t, got, "SESSION_ID=sess-1\n")
	assert.Contains(t, got, "LOCATION=castle_gate\n")
	assert.Contains(t, got, "QUEST_STAGE=stage_2\n")
	assert.Contains(t, got, "MOOD=wary\n")
	assert.Contains(t, got, "RELATIONSHIP=0.40\n")
	assert.Contains(t, got, "TRUST=0.25\n")
	assert.Contains(t, got, "PLAYER_REPUTATION=honored\n")
	assert.Contains(t, got, "STYLE=formal\n")
	assert.Contains(t, got, "ITEMS=seal,letter\n")
	assert.Contains(t, got, "ACTIONS=bowed\n")
	assert.Contains(t, got, "<RESPONSE>...</RESPONSE>")
	assert.Contains(t, got, "<DELTA trust=\"0.0\" relationship=\"0.0\" />")
	assert.Contains(t, got, "<FLAG name=\"0.0\" />")

	assert.Contains(t, got, "<RAG>\nLORE: The gate has stood for a century.\nDESCRIPTION: A guard in dented plate.\n</RAG>\n")
	assert.Contains(t, got, "<CTX>\nPlayer: Who goes there?\nNPC: State your business.\nPlayer: I carry the royal seal.\nNPC: Show it, then.\n</CTX>\n")
	assert.Contains(t, got, "<PLAYER>Open the gate.</PLAYER>\n")
	assert.True(t, strings.HasSuffix(got, "<NPC>"), "prompt must end with the open NPC tag")

	// Section order is part of the contract.
	sys := strings.Index(got, "<SYS>")
	rag := strings.Index(got, "<RAG>")
	ctx := strings.Index(got, "<CTX>")
	player := strings.Index(got, "<PLAYER>")
	npc := strings.LastIndex(got, "<NPC>")
	assert.True(t, sys < rag && rag < ctx && ctx < player && player < npc)
}

func TestBuildMainPromptEmptyRAG(t *testing.T) {
	got, err := New().
		WithSession("sess-1").
		WithContext(testContext(t)).
		WithUserInput("Hello.").
		Build()
	require.NoError(t, err)

	assert.Contains(t, got, "<RAG/>\n")
	assert.NotContains(t, got, "<RAG>\n")
}

func TestBuildMainPromptHistoryWindow(t *testing.T) {
	got, err := New().
		WithSession("sess-1").
		WithContext(testContext(t)).
		WithHistoryWindow(1).
		WithUserInput("Hello.").
		Build()
	require.NoError(t, err)

	assert.NotContains(t, got, "Who goes there?")
	assert.Contains(t, got, "Player: I carry the royal seal.\n")
}

func TestBuildFallbackPrompt(t *testing.T) {
	bundle := knowledge.Bundle{
		knowledge.DocFallback: {{Text: "Deflect politely when conditions fail."}},
	}

	got, err := New().
		WithMode(ModeFallback).
		WithSession("sess-1").
		WithContext(testContext(t)).
		WithBundle(bundle).
		WithUserInput("Open the gate.").
		Build()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "<FALLBACK>\n"))
	assert.True(t, strings.HasSuffix(got, "</FALLBACK>"))
	assert.Contains(t, got, "NPC_ID=guard_01\n")
	assert.Contains(t, got, "MOOD=wary\n")
	assert.Contains(t, got, "EMOTION_SUMMARY=relationship 0.40, trust 0.25\n")
	assert.Contains(t, got, "INPUT=\"Open the gate.\"\n")
	assert.Contains(t, got, "- Deflect politely when conditions fail.\n")
	assert.Contains(t, got, "The story conditions for progress were not met.")
	assert.NotContains(t, got, "<SYS>")
	assert.NotContains(t, got, "<NPC>")
}

func TestBuildFallbackOverrides(t *testing.T) {
	base := New().
		WithMode(ModeFallback).
		WithSession("sess-1").
		WithContext(testContext(t)).
		WithUserInput("Give me gold.")

	t.Run("fallback style wins over trigger meta", func(t *testing.T) {
		got, err := base.
			WithFallbackStyle(&knowledge.FallbackStyle{Style: "curt", NPCEmotion: "annoyed"}).
			WithTriggerMeta(&knowledge.TriggerMeta{NPCStyle: "cold", NPCAction: "steps back"}, true).
			Build()
		require.NoError(t, err)

		assert.Contains(t, got, "dialogue style=curt")
		assert.Contains(t, got, "NPC action=steps back")
		assert.Contains(t, got, "NPC emotion=annoyed")
		assert.NotContains(t, got, "dialogue style=cold")
		assert.Contains(t, got, "restricted player utterance")
	})

	t.Run("no overrides keeps plain instruction", func(t *testing.T) {
		got, err := New().
			WithMode(ModeFallback).
			WithSession("sess-1").
			WithContext(testContext(t)).
			WithUserInput("Hello.").
			Build()
		require.NoError(t, err)

		assert.NotContains(t, got, "dialogue style=")
		assert.NotContains(t, got, "restricted player utterance")
	})
}

func TestBuildRequiresContext(t *testing.T) {
	_, err := New().WithSession("s").WithUserInput("hi").Build()
	assert.Error(t, err)
}
