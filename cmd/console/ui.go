package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
	"github.com/questforge/dialogue-engine/pkg/state"
	"github.com/questforge/dialogue-engine/pkg/textnorm"
)

const PlaceHolderText = "Say something..."

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	npcName      string
	snapshot     *state.Snapshot
	lastResponse *dialogue.TurnResponse
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool
	notice       string

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type turnResponseMsg struct {
	response *dialogue.TurnResponse
	err      error
}

type wakeDoneMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	npcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	snapshot := &state.Snapshot{
		GameState: map[string]any{
			"quest_stage": cfg.QuestStage,
			"location":    cfg.Location,
		},
		NPCState: map[string]any{
			"trust":        0.0,
			"relationship": 0.0,
		},
		PlayerState: map[string]any{},
	}

	return ConsoleUI{
		config:       cfg,
		client:       client,
		npcName:      textnorm.Title(cfg.NPCID),
		snapshot:     snapshot,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		loading:      true, // waking the NPC
	}
}

// writeChatContent rebuilds the chat panel from the local dialogue history.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6

	var content strings.Builder
	content.WriteString(titleStyle.Render("DIALOGUE ENGINE") + "\n\n")
	content.WriteString(fmt.Sprintf("Talking to %s. Type below and press Enter.\n\n", m.npcName))
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	for _, turn := range m.snapshot.DialogueHistory {
		content.WriteString(userStyle.Render("You: ") + wordwrap.String(turn.Player, chatWidth-6) + "\n\n")
		if turn.NPC != "" {
			npcPrefix := npcStyle.Render(m.npcName + ": ")
			content.WriteString(npcPrefix + wordwrap.String(turn.NPC, chatWidth-len(m.npcName)-8) + "\n\n")
		}
	}

	if m.notice != "" {
		content.WriteString(noticeStyle.Render(m.notice) + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}
	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// writeMetadata rebuilds the side panel with session and last-turn details.
func (m *ConsoleUI) writeMetadata() {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SESSION") + "\n\n")

	content.WriteString("Session ID:\n")
	content.WriteString(m.config.SessionID[:8] + "...\n\n")

	content.WriteString("NPC:\n")
	content.WriteString(m.npcName + "\n\n")

	content.WriteString("Stage / Location:\n")
	content.WriteString(m.config.QuestStage + " / " + m.config.Location + "\n\n")

	trust, _ := m.snapshot.NPCState["trust"].(float64)
	relationship, _ := m.snapshot.NPCState["relationship"].(float64)
	content.WriteString("Trust / Relationship:\n")
	content.WriteString(fmt.Sprintf("%.2f / %.2f\n\n", trust, relationship))

	if m.lastResponse != nil {
		content.WriteString("Last turn valid:\n")
		content.WriteString(fmt.Sprintf("%v\n\n", m.lastResponse.Valid))

		if len(m.lastResponse.Flags) > 0 {
			content.WriteString("Flags:\n")
			names := make([]string, 0, len(m.lastResponse.Flags))
			for name := range m.lastResponse.Flags {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				content.WriteString(fmt.Sprintf("• %s = %d\n", name, m.lastResponse.Flags[name]))
			}
			content.WriteString("\n")
		}
		if m.lastResponse.Meta != nil && m.lastResponse.Meta.AdditionalTrigger {
			content.WriteString("Special reaction triggered\n\n")
		}
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /copy: Copy last reply\n")

	m.metaViewport.SetContent(content.String())
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.wake(), progressTick())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.writeMetadata()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.err = nil
			m.notice = ""
			m.progressTick = 0

			m.snapshot.DialogueHistory = append(m.snapshot.DialogueHistory, state.DialogueTurn{Player: input})
			m.writeChatContent()

			return m, tea.Batch(m.sendTurnCmd(input), progressTick())
		}

	case wakeDoneMsg:
		m.loading = false
		if msg.err != nil {
			m.notice = "NPC warmup failed; first turn may be slow."
		}
		m.writeChatContent()
		return m, textarea.Blink

	case turnResponseMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			// Drop the pending player line so it can be retried.
			if n := len(m.snapshot.DialogueHistory); n > 0 && m.snapshot.DialogueHistory[n-1].NPC == "" {
				m.snapshot.DialogueHistory = m.snapshot.DialogueHistory[:n-1]
			}
		} else {
			m.applyTurn(msg.response)
		}
		m.writeChatContent()
		m.writeMetadata()
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applyTurn folds a completed turn into the local snapshot: the NPC reply
// joins the history and returned deltas accumulate into the NPC state.
func (m *ConsoleUI) applyTurn(resp *dialogue.TurnResponse) {
	m.lastResponse = resp

	if n := len(m.snapshot.DialogueHistory); n > 0 {
		m.snapshot.DialogueHistory[n-1].NPC = resp.NPCOutputText
	}

	for key, delta := range resp.Deltas {
		current, _ := m.snapshot.NPCState[key].(float64)
		m.snapshot.NPCState[key] = state.ClampDelta(current + delta)
	}
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		m.notice = strings.TrimSpace(`
Commands:
/help - Show this help
/copy - Copy the last NPC reply to the clipboard
Ctrl+C - Quit

Type your lines and press Enter; the NPC replies in character.`)

	case "/copy":
		if m.lastResponse == nil || m.lastResponse.NPCOutputText == "" {
			m.notice = "Nothing to copy yet."
		} else if err := clipboard.WriteAll(m.lastResponse.NPCOutputText); err != nil {
			m.notice = "Clipboard unavailable: " + err.Error()
		} else {
			m.notice = "Last reply copied."
		}

	default:
		m.notice = "Unknown command: " + cmd
	}

	m.textarea.Reset()
	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) wake() tea.Cmd {
	return func() tea.Msg {
		return wakeDoneMsg{err: wakeNPC(m.client, m.config)}
	}
}

func (m ConsoleUI) sendTurnCmd(input string) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendTurn(m.client, m.config, input, m.snapshot)
		return turnResponseMsg{resp, err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the conversation?"))
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
