// Package trigger implements the two-stage gate deciding whether a player
// turn may take the main narrative path: deterministic trigger-definition
// evaluation, then semantic forbidden-trigger detection on failure.
package trigger

import (
	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/state"
	"github.com/questforge/dialogue-engine/pkg/textnorm"
)

// Satisfied evaluates the conjunctive trigger definition against the player
// input and the pre-filtered require sets. Every present mandatory clause
// must pass; absent clauses pass vacuously.
func Satisfied(def *knowledge.TriggerDef, input string, req *state.Require) bool {
	if def == nil {
		return false
	}
	if !textClause(def.RequiredText, input) {
		return false
	}
	if def.RequiredItems != nil && !req.HasItems(def.RequiredItems.Mandatory) {
		return false
	}
	if def.RequiredActions != nil && !req.HasActions(def.RequiredActions.Mandatory) {
		return false
	}
	if def.RequiredGameState != nil && !req.HasGameState(def.RequiredGameState.Mandatory) {
		return false
	}
	if def.RequiredDelta != nil {
		for key, threshold := range def.RequiredDelta.Mandatory {
			if !req.DeltaAtLeast(key, threshold) {
				return false
			}
		}
	}
	return true
}

// textClause passes when no keywords are required or any keyword appears in
// the folded input.
func textClause(keywords []string, input string) bool {
	if len(keywords) == 0 {
		return true
	}
	_, ok := textnorm.ContainsAny(input, keywords)
	return ok
}
