package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

// ConsoleConfig holds the settings of the interactive dialogue console.
type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration

	NPCID      string
	QuestStage string
	Location   string
	SessionID  string
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func main() {
	var (
		npcID      = flag.String("npc", "", "NPC id to talk to")
		questStage = flag.String("stage", "default", "quest stage of the conversation")
		location   = flag.String("location", "unknown", "location of the conversation")
	)
	flag.Parse()

	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Timeout:    60 * time.Second,
		NPCID:      *npcID,
		QuestStage: *questStage,
		Location:   *location,
		SessionID:  uuid.NewString(),
	}

	if cfg.NPCID == "" {
		fmt.Fprintf(os.Stderr, "Missing -npc argument. Try: console -npc guard_01\n")
		os.Exit(1)
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
