package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
	"github.com/questforge/dialogue-engine/pkg/state"
)

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusServiceUnavailable
}

// wakeNPC asks the engine to warm the NPC's knowledge bundle so the first
// turn is fast.
func wakeNPC(client *http.Client, cfg *ConsoleConfig) error {
	payload := map[string]string{
		"npc_id":      cfg.NPCID,
		"quest_stage": cfg.QuestStage,
		"location":    cfg.Location,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(cfg.APIBaseURL+"/wake", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("wake failed: %s", errorResp.Error)
	}
	return nil
}

// sendTurn submits one player utterance with the console's local snapshot.
func sendTurn(client *http.Client, cfg *ConsoleConfig, input string, snapshot *state.Snapshot) (*dialogue.TurnResponse, error) {
	turnReq := dialogue.TurnRequest{
		SessionID: cfg.SessionID,
		NPCID:     cfg.NPCID,
		UserInput: input,
		Context:   snapshot,
	}

	jsonData, err := json.Marshal(turnReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(
		cfg.APIBaseURL+"/v1/dialogue",
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("dialogue request failed: %s", errorResp.Error)
	}

	var turnResp dialogue.TurnResponse
	if err := json.Unmarshal(body, &turnResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &turnResp, nil
}
