package knowledge

import (
	"sort"
	"strings"
)

// Bundle is a loaded set of knowledge documents grouped by type.
type Bundle map[DocType][]Document

// TriggerDef returns the first trigger definition in the bundle, or nil.
// Authoring convention is one trigger_def per (npc, stage, location).
func (b Bundle) TriggerDef() *TriggerDef {
	for _, doc := range b[DocTriggerDef] {
		if doc.Trigger != nil {
			return doc.Trigger
		}
	}
	return nil
}

// ForbiddenTriggers returns the merged forbidden-trigger candidate lists.
func (b Bundle) ForbiddenTriggers() *ForbiddenTriggers {
	var merged ForbiddenTriggers
	for _, doc := range b[DocForbiddenTriggers] {
		if doc.Forbidden == nil {
			continue
		}
		merged.Keywords = append(merged.Keywords, doc.Forbidden.Keywords...)
		merged.Texts = append(merged.Texts, doc.Forbidden.Texts...)
	}
	if len(merged.Keywords) == 0 && len(merged.Texts) == 0 {
		return nil
	}
	return &merged
}

// TriggerMetaFor finds the trigger_meta entry whose trigger field equals the
// matched candidate string.
func (b Bundle) TriggerMetaFor(trigger string) *TriggerMeta {
	for _, doc := range b[DocTriggerMeta] {
		if doc.Meta != nil && doc.Meta.Trigger == trigger {
			return doc.Meta
		}
	}
	return nil
}

// FlagDefs returns every flag definition in the bundle, keyed by flag name.
func (b Bundle) FlagDefs() map[string]*FlagDef {
	defs := make(map[string]*FlagDef)
	for _, doc := range b[DocFlagDef] {
		if doc.Flag != nil && doc.Flag.Name != "" {
			defs[doc.Flag.Name] = doc.Flag
		}
	}
	return defs
}

// ValidatePolicy returns the main-response validation policy text, or "".
func (b Bundle) ValidatePolicy() string {
	for _, doc := range b[DocMainResValidate] {
		if doc.Policy != nil && doc.Policy.Policy != "" {
			return doc.Policy.Policy
		}
	}
	return ""
}

// LatestDialogueRecord returns the dialogue_turn document with the highest
// turn index, or nil when the bundle has none.
func (b Bundle) LatestDialogueRecord() *DialogueRecord {
	var latest *DialogueRecord
	for _, doc := range b[DocDialogueTurn] {
		if doc.Dialogue == nil {
			continue
		}
		if latest == nil || doc.Dialogue.TurnIndex > latest.TurnIndex {
			latest = doc.Dialogue
		}
	}
	return latest
}

// Texts returns the free-text field of every document of the given types.
// With no types, all documents are included.
func (b Bundle) Texts(types ...DocType) []string {
	var out []string
	appendDocs := func(docs []Document) {
		for _, doc := range docs {
			if strings.TrimSpace(doc.Text) != "" {
				out = append(out, doc.Text)
			}
		}
	}
	if len(types) == 0 {
		keys := make([]string, 0, len(b))
		for t := range b {
			keys = append(keys, string(t))
		}
		sort.Strings(keys)
		for _, t := range keys {
			appendDocs(b[DocType(t)])
		}
		return out
	}
	for _, t := range types {
		appendDocs(b[t])
	}
	return out
}

// Size returns the total document count across all types.
func (b Bundle) Size() int {
	n := 0
	for _, docs := range b {
		n += len(docs)
	}
	return n
}
