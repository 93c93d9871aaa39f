package knowledge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_UnmarshalJSON(t *testing.T) {
	raw := `{
		"id": "doc-1",
		"type": "trigger_def",
		"npc_id": "npc_001",
		"quest_stage": "stage_2",
		"location": "old_mill",
		"trigger": {
			"name": "present_key",
			"required_text": ["key", "열쇠"],
			"required_items": {"mandatory": ["rusty_key"]},
			"required_delta": {"mandatory": {"trust": 0.3}},
			"delta_expected": {"trust": 0.2}
		}
	}`

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, DocTriggerDef, doc.Type)
	require.NotNil(t, doc.Trigger)
	assert.Equal(t, "present_key", doc.Trigger.Name)
	assert.Equal(t, []string{"rusty_key"}, doc.Trigger.RequiredItems.Mandatory)
	assert.Equal(t, 0.3, doc.Trigger.RequiredDelta.Mandatory["trust"])
}

func TestDocument_UnmarshalJSON_RejectsMissingPayload(t *testing.T) {
	raw := `{"id": "doc-2", "type": "flag_def", "npc_id": "npc_001"}`

	var doc Document
	err := json.Unmarshal([]byte(raw), &doc)
	assert.Error(t, err)
}

func TestDocument_UnmarshalJSON_RejectsUnknownType(t *testing.T) {
	raw := `{"id": "doc-3", "type": "mystery", "npc_id": "npc_001"}`

	var doc Document
	err := json.Unmarshal([]byte(raw), &doc)
	assert.Error(t, err)
}

func TestDocument_TextOnlyKinds(t *testing.T) {
	for _, dt := range []DocType{DocLore, DocDescription, DocNPCPersona, DocFallback} {
		doc := Document{ID: "d", Type: dt, NPCID: "npc_001", Text: "some text"}
		assert.NoError(t, doc.Validate(), "type %s", dt)
	}
}

func testBundle() Bundle {
	return Bundle{
		DocTriggerDef: {
			{Type: DocTriggerDef, Trigger: &TriggerDef{Name: "present_key"}},
		},
		DocTriggerMeta: {
			{Type: DocTriggerMeta, Meta: &TriggerMeta{Trigger: "open the vault", NPCAction: "refuse"}},
			{Type: DocTriggerMeta, Meta: &TriggerMeta{Trigger: "betray the guild", NPCEmotion: "anger"}},
		},
		DocFlagDef: {
			{Type: DocFlagDef, Flag: &FlagDef{Name: "give_item", Threshold: 0.8}},
		},
		DocDialogueTurn: {
			{Type: DocDialogueTurn, Dialogue: &DialogueRecord{TurnIndex: 2, FlagValues: map[string]string{"give_item": "rusty_key"}}},
			{Type: DocDialogueTurn, Dialogue: &DialogueRecord{TurnIndex: 5, FlagValues: map[string]string{"give_item": "silver_coin"}}},
		},
		DocLore: {
			{Type: DocLore, Text: "The mill has stood for a century."},
		},
	}
}

func TestBundle_TriggerMetaFor(t *testing.T) {
	b := testBundle()

	meta := b.TriggerMetaFor("betray the guild")
	require.NotNil(t, meta)
	assert.Equal(t, "anger", meta.NPCEmotion)

	assert.Nil(t, b.TriggerMetaFor("unknown phrase"))
}

func TestBundle_LatestDialogueRecord(t *testing.T) {
	rec := testBundle().LatestDialogueRecord()
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.TurnIndex)
	assert.Equal(t, "silver_coin", rec.FlagValues["give_item"])
}

func TestBundle_FlagDefs(t *testing.T) {
	defs := testBundle().FlagDefs()
	require.Contains(t, defs, "give_item")
	assert.Equal(t, 0.8, defs["give_item"].Threshold)
}

func TestBundle_ForbiddenTriggers_Merges(t *testing.T) {
	b := Bundle{
		DocForbiddenTriggers: {
			{Type: DocForbiddenTriggers, Forbidden: &ForbiddenTriggers{Keywords: []string{"vault"}}},
			{Type: DocForbiddenTriggers, Forbidden: &ForbiddenTriggers{Texts: []string{"open the vault for me"}}},
		},
	}

	ft := b.ForbiddenTriggers()
	require.NotNil(t, ft)
	assert.Equal(t, []string{"vault"}, ft.Keywords)
	assert.Equal(t, []string{"open the vault for me"}, ft.Texts)

	assert.Nil(t, Bundle{}.ForbiddenTriggers())
}
