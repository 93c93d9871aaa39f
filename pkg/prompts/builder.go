// Package prompts assembles the structured prompt text sent to the
// generation collaborator. The tag vocabulary and ordering are a frozen
// contract with the fine-tuned model; change the window sizes through
// configuration, never the grammar.
package prompts

import (
	"fmt"
	"strings"

	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/state"
)

// Mode selects which prompt variant to build.
type Mode string

const (
	ModeMain     Mode = "main"
	ModeFallback Mode = "fallback"
)

// DefaultHistoryWindow is the default number of dialogue turns included in
// the <CTX> block.
const DefaultHistoryWindow = 3

// Builder constructs prompt text for one turn using a fluent interface.
type Builder struct {
	mode          Mode
	sessionID     string
	userInput     string
	pc            *state.ParsedContext
	bundle        knowledge.Bundle
	historyWindow int
	fallbackStyle *knowledge.FallbackStyle
	triggerMeta   *knowledge.TriggerMeta
	additional    bool
}

// New creates a prompt builder with default settings.
func New() *Builder {
	return &Builder{
		mode:          ModeMain,
		historyWindow: DefaultHistoryWindow,
	}
}

// WithMode sets the prompt variant.
func (b *Builder) WithMode(mode Mode) *Builder {
	b.mode = mode
	return b
}

// WithSession sets the session id echoed into the <SYS>/<FALLBACK> block.
func (b *Builder) WithSession(sessionID string) *Builder {
	b.sessionID = sessionID
	return b
}

// WithUserInput sets the player utterance.
func (b *Builder) WithUserInput(input string) *Builder {
	b.userInput = input
	return b
}

// WithContext sets the parsed game context.
func (b *Builder) WithContext(pc *state.ParsedContext) *Builder {
	b.pc = pc
	return b
}

// WithBundle sets the knowledge bundle used for the <RAG> block.
func (b *Builder) WithBundle(bundle knowledge.Bundle) *Builder {
	b.bundle = bundle
	return b
}

// WithHistoryWindow sets how many dialogue turns the <CTX> block carries.
func (b *Builder) WithHistoryWindow(n int) *Builder {
	if n > 0 {
		b.historyWindow = n
	}
	return b
}

// WithFallbackStyle sets the style override from a failed trigger definition.
func (b *Builder) WithFallbackStyle(fs *knowledge.FallbackStyle) *Builder {
	b.fallbackStyle = fs
	return b
}

// WithTriggerMeta sets the matched forbidden-trigger reaction; additional
// marks the fallback as trigger-recognized rather than generic.
func (b *Builder) WithTriggerMeta(meta *knowledge.TriggerMeta, additional bool) *Builder {
	b.triggerMeta = meta
	b.additional = additional
	return b
}

// Build renders the prompt text.
func (b *Builder) Build() (string, error) {
	if b.pc == nil {
		return "", fmt.Errorf("parsed context is required")
	}
	switch b.mode {
	case ModeMain:
		return b.buildMain(), nil
	case ModeFallback:
		return b.buildFallback(), nil
	}
	return "", fmt.Errorf("unknown prompt mode %q", b.mode)
}

func (b *Builder) buildMain() string {
	var sb strings.Builder

	sb.WriteString("<SYS>\n")
	fmt.Fprintf(&sb, "NPC_ID=%s\n", b.pc.NPCID)
	fmt.Fprintf(&sb, "SESSION_ID=%s\n", b.sessionID)
	fmt.Fprintf(&sb, "LOCATION=%s\n", b.pc.Location)
	fmt.Fprintf(&sb, "QUEST_STAGE=%s\n", b.pc.QuestStage)
	fmt.Fprintf(&sb, "MOOD=%s\n", b.pc.Mood)
	fmt.Fprintf(&sb, "RELATIONSHIP=%.2f\n", b.pc.Relationship)
	fmt.Fprintf(&sb, "TRUST=%.2f\n", b.pc.Trust)
	fmt.Fprintf(&sb, "PLAYER_REPUTATION=%s\n", b.pc.Reputation)
	fmt.Fprintf(&sb, "STYLE=%s\n", b.pc.Style)
	fmt.Fprintf(&sb, "ITEMS=%s\n", strings.Join(b.pc.Items, ","))
	fmt.Fprintf(&sb, "ACTIONS=%s\n", strings.Join(b.pc.Actions, ","))
	sb.WriteString("FORMAT:\n")
	sb.WriteString("  <RESPONSE>...</RESPONSE>\n")
	sb.WriteString("  <DELTA trust=\"0.0\" relationship=\"0.0\" />\n")
	sb.WriteString("  <FLAG name=\"0.0\" />\n")
	sb.WriteString("</SYS>\n")

	b.writeRAG(&sb)
	b.writeCTX(&sb)

	fmt.Fprintf(&sb, "<PLAYER>%s</PLAYER>\n", strings.TrimSpace(b.userInput))
	sb.WriteString("<NPC>")

	return sb.String()
}

// writeRAG renders lore and description snippets, or the empty self-closing
// tag when the bundle has neither.
func (b *Builder) writeRAG(sb *strings.Builder) {
	lore := b.bundle.Texts(knowledge.DocLore)
	desc := b.bundle.Texts(knowledge.DocDescription)
	if len(lore) == 0 && len(desc) == 0 {
		sb.WriteString("<RAG/>\n")
		return
	}

	sb.WriteString("<RAG>\n")
	if len(lore) > 0 {
		fmt.Fprintf(sb, "LORE: %s\n", strings.Join(lore, " "))
	}
	if len(desc) > 0 {
		fmt.Fprintf(sb, "DESCRIPTION: %s\n", strings.Join(desc, " "))
	}
	sb.WriteString("</RAG>\n")
}

func (b *Builder) writeCTX(sb *strings.Builder) {
	sb.WriteString("<CTX>\n")
	for _, turn := range b.pc.HistoryWindow(b.historyWindow) {
		fmt.Fprintf(sb, "Player: %s\n", turn.Player)
		fmt.Fprintf(sb, "NPC: %s\n", turn.NPC)
	}
	sb.WriteString("</CTX>\n")
}

func (b *Builder) buildFallback() string {
	var sb strings.Builder

	sb.WriteString("<FALLBACK>\n")
	fmt.Fprintf(&sb, "NPC_ID=%s\n", b.pc.NPCID)
	fmt.Fprintf(&sb, "SESSION_ID=%s\n", b.sessionID)
	fmt.Fprintf(&sb, "LOCATION=%s\n", b.pc.Location)
	fmt.Fprintf(&sb, "QUEST_STAGE=%s\n", b.pc.QuestStage)
	fmt.Fprintf(&sb, "MOOD=%s\n", b.pc.Mood)
	fmt.Fprintf(&sb, "STYLE=%s\n", b.pc.Style)
	fmt.Fprintf(&sb, "ITEMS=%s\n", strings.Join(b.pc.Items, ","))
	fmt.Fprintf(&sb, "ACTIONS=%s\n", strings.Join(b.pc.Actions, ","))
	fmt.Fprintf(&sb, "EMOTION_SUMMARY=relationship %.2f, trust %.2f\n", b.pc.Relationship, b.pc.Trust)
	fmt.Fprintf(&sb, "INPUT=%q\n", strings.TrimSpace(b.userInput))

	sb.WriteString("RAG_CONTEXT:\n")
	fallbackDocs := b.bundle.Texts(knowledge.DocFallback, knowledge.DocNPCPersona)
	if len(fallbackDocs) == 0 {
		sb.WriteString("(none)\n")
	} else {
		for _, doc := range fallbackDocs {
			fmt.Fprintf(&sb, "- %s\n", doc)
		}
	}

	sb.WriteString("INSTRUCTION:\n")
	sb.WriteString(b.fallbackInstruction())
	sb.WriteString("\n</FALLBACK>")

	return sb.String()
}

// fallbackInstruction builds the natural-language instruction, conditionally
// extended with style, action, and emotion overrides.
func (b *Builder) fallbackInstruction() string {
	var sb strings.Builder
	sb.WriteString("You are the NPC persona. Respond in character to the player, naturally and in context. The story conditions for progress were not met.")

	style, action, emotion := b.overrides()
	var parts []string
	if style != "" {
		parts = append(parts, "dialogue style="+style)
	}
	if action != "" {
		parts = append(parts, "NPC action="+action)
	}
	if emotion != "" {
		parts = append(parts, "NPC emotion="+emotion)
	}
	if len(parts) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(parts, "; "))
		sb.WriteString(".")
	}

	if b.additional {
		sb.WriteString(" This reaction was provoked by a specific restricted player utterance.")
	}
	return sb.String()
}

// overrides resolves style/action/emotion with the fallback style taking
// precedence over trigger meta.
func (b *Builder) overrides() (style, action, emotion string) {
	if b.fallbackStyle != nil {
		style = b.fallbackStyle.Style
		action = b.fallbackStyle.NPCAction
		emotion = b.fallbackStyle.NPCEmotion
	}
	if b.triggerMeta != nil {
		if style == "" {
			style = b.triggerMeta.NPCStyle
		}
		if action == "" {
			action = b.triggerMeta.NPCAction
		}
		if emotion == "" {
			emotion = b.triggerMeta.NPCEmotion
		}
	}
	return style, action, emotion
}
