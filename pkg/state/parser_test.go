package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Require: &Require{
			Items:   []string{"rusty_key", "torch"},
			Actions: []string{"knocked"},
			Delta:   map[string]float64{"trust": 0.4},
		},
		PlayerState: map[string]any{
			"items":      []any{"rusty_key", "torch"},
			"actions":    []any{"knocked"},
			"reputation": "honored",
		},
		GameState: map[string]any{
			"quest_stage": "stage_2",
			"location":    "old_mill",
			"time":        "evening",
		},
		NPCState: map[string]any{
			"mood":         "wary",
			"trust":        0.35,
			"relationship": -0.1,
		},
		DialogueHistory: []DialogueTurn{
			{Player: "Hello?", NPC: "Who goes there?"},
			{Player: "A friend.", NPC: "We shall see."},
			{Player: "I brought the key.", NPC: "Show me."},
		},
	}
}

func TestParseContext(t *testing.T) {
	pc, err := ParseContext("npc_001", testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "npc_001", pc.NPCID)
	assert.Equal(t, "stage_2", pc.QuestStage)
	assert.Equal(t, "old_mill", pc.Location)
	assert.Equal(t, "wary", pc.Mood)
	assert.Equal(t, 0.35, pc.Trust)
	assert.Equal(t, -0.1, pc.Relationship)
	assert.Equal(t, "honored", pc.Reputation)
	assert.Equal(t, []string{"rusty_key", "torch"}, pc.Items)
}

func TestParseContext_NilSnapshot(t *testing.T) {
	_, err := ParseContext("npc_001", nil)
	assert.Error(t, err)
}

func TestParseContext_Defaults(t *testing.T) {
	pc, err := ParseContext("npc_001", &Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, "default", pc.QuestStage)
	assert.Equal(t, "unknown", pc.Location)
	assert.Equal(t, "neutral", pc.Mood)
	assert.NotNil(t, pc.Require, "require should be initialized when absent")
}

func TestParseContext_NPCConfigFallbacks(t *testing.T) {
	snap := &Snapshot{
		NPCConfig: &NPCConfig{ID: "npc_cfg", DialogueStyle: "curt", Mood: "sullen"},
	}
	pc, err := ParseContext("", snap)
	require.NoError(t, err)

	assert.Equal(t, "npc_cfg", pc.NPCID)
	assert.Equal(t, "curt", pc.Style)
	assert.Equal(t, "sullen", pc.Mood)
}

func TestHistoryWindow(t *testing.T) {
	pc, err := ParseContext("npc_001", testSnapshot())
	require.NoError(t, err)

	window := pc.HistoryWindow(2)
	require.Len(t, window, 2)
	assert.Equal(t, "A friend.", window[0].Player)
	assert.Equal(t, "Show me.", window[1].NPC)

	assert.Len(t, pc.HistoryWindow(10), 3, "window larger than history returns all")
	assert.Len(t, pc.HistoryWindow(0), 3, "non-positive window returns all")
}

func TestRequire_SubsetChecks(t *testing.T) {
	r := &Require{Items: []string{"a"}}

	assert.False(t, r.HasItems([]string{"a", "b"}), "missing mandatory item must fail")
	assert.True(t, r.HasItems([]string{"a"}))
	assert.True(t, r.HasItems(nil), "empty mandatory set passes")
}

func TestRequire_DeltaAtLeast(t *testing.T) {
	r := &Require{Delta: map[string]float64{"trust": 0.5}}

	assert.True(t, r.DeltaAtLeast("trust", 0.5))
	assert.False(t, r.DeltaAtLeast("trust", 0.6))
	assert.False(t, r.DeltaAtLeast("relationship", 0.1), "absent key fails")
}
