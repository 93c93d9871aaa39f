package knowledge

import (
	"encoding/json"
	"fmt"
)

// DocType discriminates the kinds of knowledge documents the pipeline consumes.
type DocType string

const (
	DocLore              DocType = "lore"
	DocDescription       DocType = "description"
	DocNPCPersona        DocType = "npc_persona"
	DocTriggerDef        DocType = "trigger_def"
	DocFlagDef           DocType = "flag_def"
	DocDialogueTurn      DocType = "dialogue_turn"
	DocTriggerMeta       DocType = "trigger_meta"
	DocForbiddenTriggers DocType = "forbidden_trigger_list"
	DocMainResValidate   DocType = "main_res_validate"
	DocFallback          DocType = "fallback"
)

// WildcardAny marks a document as applying to every quest stage or location.
const WildcardAny = "any"

// Document is one retrieved knowledge record. Each document carries routing
// metadata, free text, and at most one typed payload selected by Type. Plain
// text kinds (lore, description, npc_persona, fallback) carry only Text.
type Document struct {
	ID         string  `json:"id,omitempty"`
	Type       DocType `json:"type"`
	NPCID      string  `json:"npc_id"`
	QuestStage string  `json:"quest_stage,omitempty"`
	Location   string  `json:"location,omitempty"`
	Text       string  `json:"text,omitempty"`

	Trigger   *TriggerDef        `json:"trigger,omitempty"`
	Flag      *FlagDef           `json:"flag,omitempty"`
	Meta      *TriggerMeta       `json:"trigger_meta,omitempty"`
	Forbidden *ForbiddenTriggers `json:"forbidden,omitempty"`
	Dialogue  *DialogueRecord    `json:"dialogue,omitempty"`
	Policy    *ValidatePolicy    `json:"policy,omitempty"`
}

// Clause is one conjunctive requirement over a named string set. Only the
// Mandatory subset gates trigger evaluation; Values documents the full
// authored set for tooling.
type Clause struct {
	Values    []string `json:"values,omitempty"`
	Mandatory []string `json:"mandatory,omitempty"`
}

// DeltaClause requires each mandatory key to meet its threshold in the
// request's require.delta map.
type DeltaClause struct {
	Mandatory map[string]float64 `json:"mandatory,omitempty"`
}

// FallbackStyle overrides how a fallback response should be voiced when a
// trigger definition fails or a forbidden trigger fires.
type FallbackStyle struct {
	Style      string `json:"style,omitempty"`
	NPCAction  string `json:"npc_action,omitempty"`
	NPCEmotion string `json:"npc_emotion,omitempty"`
}

// TriggerDef is a conjunctive rule gating the main narrative path. It is
// satisfied iff every present mandatory clause passes.
type TriggerDef struct {
	Name              string             `json:"name,omitempty"`
	RequiredText      []string           `json:"required_text,omitempty"`
	RequiredItems     *Clause            `json:"required_items,omitempty"`
	RequiredActions   *Clause            `json:"required_actions,omitempty"`
	RequiredGameState *Clause            `json:"required_game_state,omitempty"`
	RequiredDelta     *DeltaClause       `json:"required_delta,omitempty"`
	DeltaExpected     map[string]float64 `json:"delta_expected,omitempty"`
	FallbackStyle     *FallbackStyle     `json:"fallback_style,omitempty"`
}

// FlagDef describes one story flag: its decision threshold, the retrieved
// reference score, curated example sentences, and the delta signs a positive
// decision is expected to accompany.
type FlagDef struct {
	Name             string             `json:"name"`
	Threshold        float64            `json:"threshold"`
	RAGScore         float64            `json:"rag_score"`
	ExamplesPositive []string           `json:"examples_positive,omitempty"`
	ExamplesNegative []string           `json:"examples_negative,omitempty"`
	ExpectedDelta    map[string]float64 `json:"expected_delta,omitempty"`
}

// TriggerMeta describes the scripted NPC reaction for one recognized
// forbidden trigger. Delta is the fixed per-turn delta applied on that path.
type TriggerMeta struct {
	Trigger    string             `json:"trigger"`
	NPCAction  string             `json:"npc_action,omitempty"`
	NPCEmotion string             `json:"npc_emotion,omitempty"`
	NPCStyle   string             `json:"npc_style,omitempty"`
	Delta      map[string]float64 `json:"delta,omitempty"`
}

// ForbiddenTriggers holds the candidate lists for semantic fallback
// detection: short keywords and full example sentences.
type ForbiddenTriggers struct {
	Keywords []string `json:"keywords,omitempty"`
	Texts    []string `json:"texts,omitempty"`
}

// DialogueRecord is one recorded canonical exchange, used to resolve the
// textual value behind a decided flag.
type DialogueRecord struct {
	TurnIndex  int               `json:"turn_index"`
	Player     string            `json:"player,omitempty"`
	NPC        string            `json:"npc,omitempty"`
	FlagValues map[string]string `json:"flag_values,omitempty"`
}

// ValidatePolicy carries the policy description for the validation/rewrite
// pass over main-path responses.
type ValidatePolicy struct {
	Policy string `json:"policy"`
}

// payloadPresent returns the payload pointers that are set on the document.
func (d *Document) payloadPresent() int {
	n := 0
	for _, p := range []bool{
		d.Trigger != nil, d.Flag != nil, d.Meta != nil,
		d.Forbidden != nil, d.Dialogue != nil, d.Policy != nil,
	} {
		if p {
			n++
		}
	}
	return n
}

// Validate checks that the document's payload matches its declared type.
func (d *Document) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("document %q: missing type", d.ID)
	}
	var want bool
	switch d.Type {
	case DocTriggerDef:
		want = d.Trigger != nil
	case DocFlagDef:
		want = d.Flag != nil
	case DocTriggerMeta:
		want = d.Meta != nil
	case DocForbiddenTriggers:
		want = d.Forbidden != nil
	case DocDialogueTurn:
		want = d.Dialogue != nil
	case DocMainResValidate:
		want = d.Policy != nil
	case DocLore, DocDescription, DocNPCPersona, DocFallback:
		return nil // text-only kinds
	default:
		return fmt.Errorf("document %q: unknown type %q", d.ID, d.Type)
	}
	if !want {
		return fmt.Errorf("document %q: type %s missing its payload", d.ID, d.Type)
	}
	if d.payloadPresent() > 1 {
		return fmt.Errorf("document %q: multiple payloads present", d.ID)
	}
	return nil
}

// UnmarshalJSON decodes a document and rejects payloads that do not match the
// declared type, so consumers can rely on exactly one variant being set.
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Document(aux)
	return d.Validate()
}
