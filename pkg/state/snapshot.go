package state

// Snapshot is the full game-state payload attached to a dialogue request.
// It is constructed once per request and treated as immutable by the pipeline.
type Snapshot struct {
	Require         *Require         `json:"require,omitempty"`
	PlayerState     map[string]any   `json:"player_state"`
	GameState       map[string]any   `json:"game_state"`
	NPCState        map[string]any   `json:"npc_state"`
	NPCConfig       *NPCConfig       `json:"npc_config,omitempty"`
	DialogueHistory []DialogueTurn   `json:"dialogue_history,omitempty"`
}

// Require carries the pre-filtered mandatory elements the game server has
// already resolved for this turn. Trigger clauses are checked against these
// sets rather than against the raw player/game state.
type Require struct {
	Items     []string           `json:"items,omitempty"`
	Actions   []string           `json:"actions,omitempty"`
	GameState []string           `json:"game_state,omitempty"`
	Delta     map[string]float64 `json:"delta,omitempty"`
}

// HasItems reports whether every name in want is present in the require item set.
func (r *Require) HasItems(want []string) bool {
	return containsAll(r.Items, want)
}

// HasActions reports whether every name in want is present in the require action set.
func (r *Require) HasActions(want []string) bool {
	return containsAll(r.Actions, want)
}

// HasGameState reports whether every key in want is present in the require
// game-state set.
func (r *Require) HasGameState(want []string) bool {
	return containsAll(r.GameState, want)
}

// DeltaAtLeast reports whether the tracked delta for key meets the threshold.
// A key that was never reported counts as failing.
func (r *Require) DeltaAtLeast(key string, threshold float64) bool {
	if r == nil || r.Delta == nil {
		return false
	}
	v, ok := r.Delta[key]
	return ok && v >= threshold
}

func containsAll(have []string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// NPCConfig is the design-time NPC definition supplied by the game server.
// Runtime values (current mood, trust) live in NPCState; this struct holds
// the authored defaults.
type NPCConfig struct {
	ID            string  `json:"id,omitempty"`
	Name          string  `json:"name,omitempty"`
	PersonaName   string  `json:"persona_name,omitempty"`
	DialogueStyle string  `json:"dialogue_style,omitempty"`
	Relationship  float64 `json:"relationship,omitempty"`
	Mood          string  `json:"npc_mood,omitempty"`
}

// DialogueTurn is one player/NPC exchange in the rolling history window.
type DialogueTurn struct {
	Player string `json:"player"`
	NPC    string `json:"npc"`
}
