package state

import "fmt"

// ParsedContext is the normalized view of a Snapshot that the rest of the
// pipeline works with. Field lookups against the raw maps happen here, once,
// so downstream components never probe untyped state.
type ParsedContext struct {
	NPCID      string
	QuestStage string
	Location   string

	Mood         string
	Relationship float64
	Trust        float64
	Style        string
	Reputation   string

	Items   []string
	Actions []string

	Require *Require
	History []DialogueTurn

	snapshot *Snapshot
}

// ParseContext normalizes a raw snapshot into the views and lookup filters
// the pipeline needs. npcID is taken from the request envelope and wins over
// any id embedded in the npc_config.
func ParseContext(npcID string, snap *Snapshot) (*ParsedContext, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is required")
	}

	pc := &ParsedContext{
		NPCID:      npcID,
		QuestStage: stringField(snap.GameState, "quest_stage", "default"),
		Location:   stringField(snap.GameState, "location", "unknown"),
		Mood:       stringField(snap.NPCState, "mood", "neutral"),
		Style:      stringField(snap.NPCState, "style", "neutral"),
		Reputation: stringField(snap.PlayerState, "reputation", "average"),
		Items:      stringSlice(snap.PlayerState, "items"),
		Actions:    stringSlice(snap.PlayerState, "actions"),
		Require:    snap.Require,
		History:    snap.DialogueHistory,
		snapshot:   snap,
	}
	pc.Relationship = floatField(snap.NPCState, "relationship", 0)
	pc.Trust = floatField(snap.NPCState, "trust", 0)

	if pc.NPCID == "" && snap.NPCConfig != nil {
		pc.NPCID = snap.NPCConfig.ID
	}
	if snap.NPCConfig != nil {
		if pc.Style == "neutral" && snap.NPCConfig.DialogueStyle != "" {
			pc.Style = snap.NPCConfig.DialogueStyle
		}
		if pc.Mood == "neutral" && snap.NPCConfig.Mood != "" {
			pc.Mood = snap.NPCConfig.Mood
		}
	}
	if pc.Require == nil {
		pc.Require = &Require{}
	}
	return pc, nil
}

// Snapshot returns the raw snapshot the context was parsed from.
func (pc *ParsedContext) Snapshot() *Snapshot {
	return pc.snapshot
}

// HistoryWindow returns the last n turns of dialogue history, oldest first.
func (pc *ParsedContext) HistoryWindow(n int) []DialogueTurn {
	if n <= 0 || len(pc.History) <= n {
		return pc.History
	}
	return pc.History[len(pc.History)-n:]
}

func stringField(m map[string]any, key, fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatField(m map[string]any, key string, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func stringSlice(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		// Already decoded as []string when the snapshot was built in-process.
		if s, ok := m[key].([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
