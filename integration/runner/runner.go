package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
	"github.com/questforge/dialogue-engine/pkg/state"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running dialogue-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	NPCOverride       string // If set, overrides the NPC for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence.
// Returns a list of actual test suites (expanded from the sequence if needed).
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	// This is a sequence - load all referenced cases
	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite against the live API. Each suite
// runs in its own session; deltas returned by the API accumulate into a
// local snapshot so later steps see the NPC state earlier steps produced.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	npcID := suite.NPCID
	if r.NPCOverride != "" {
		npcID = r.NPCOverride
	}
	if npcID == "" {
		result.Error = fmt.Errorf("suite %q has no npc_id", suite.Name)
		result.Duration = time.Since(start)
		return result, result.Error
	}

	sessionID := uuid.NewString()
	result.SessionID = sessionID
	snapshot := seedSnapshot(suite)

	if err := r.wakeNPC(ctx, npcID, suite); err != nil {
		result.Error = fmt.Errorf("failed to wake NPC %s: %w", npcID, err)
		result.Duration = time.Since(start)
		return result, result.Error
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		if step.UserInput == ResetSessionInput {
			sessionID = uuid.NewString()
			snapshot = seedSnapshot(suite)
			result.Results = append(result.Results, TestResult{
				TestName: suite.Name,
				StepName: step.Name,
				Success:  true,
				IsReset:  true,
			})
			continue
		}

		stepResult := r.runStep(ctx, sessionID, npcID, step, snapshot)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// seedSnapshot builds the starting snapshot for a suite run. The suite's
// seed snapshot wins where present; quest stage and location fall back to
// the suite-level fields.
func seedSnapshot(suite TestSuite) *state.Snapshot {
	if suite.SeedSnapshot != nil {
		seed := *suite.SeedSnapshot
		if seed.GameState == nil {
			seed.GameState = map[string]any{}
		}
		if seed.NPCState == nil {
			seed.NPCState = map[string]any{}
		}
		if seed.PlayerState == nil {
			seed.PlayerState = map[string]any{}
		}
		return &seed
	}

	stage := suite.QuestStage
	if stage == "" {
		stage = "default"
	}
	location := suite.Location
	if location == "" {
		location = "unknown"
	}
	return &state.Snapshot{
		GameState: map[string]any{
			"quest_stage": stage,
			"location":    location,
		},
		NPCState: map[string]any{
			"trust":        0.0,
			"relationship": 0.0,
		},
		PlayerState: map[string]any{},
	}
}

// wakeNPC warms the knowledge bundle before the first timed step.
func (r *Runner) wakeNPC(ctx context.Context, npcID string, suite TestSuite) error {
	payload, err := json.Marshal(map[string]string{
		"npc_id":      npcID,
		"quest_stage": suite.QuestStage,
		"location":    suite.Location,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal wake request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.BaseURL+"/wake", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create wake request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("wake returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// runStep posts one dialogue turn and checks the step's expectations.
func (r *Runner) runStep(ctx context.Context, sessionID, npcID string, step TestStep, snapshot *state.Snapshot) TestResult {
	start := time.Now()
	result := TestResult{
		StepName: step.Name,
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	turnReq := dialogue.TurnRequest{
		SessionID: sessionID,
		NPCID:     npcID,
		UserInput: step.UserInput,
		Context:   snapshot,
	}

	payload, err := json.Marshal(turnReq)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal turn request: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	req, err := http.NewRequestWithContext(stepCtx, "POST", r.BaseURL+"/v1/dialogue", bytes.NewBuffer(payload))
	if err != nil {
		result.Error = fmt.Errorf("failed to create turn request: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("turn request failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Errorf("failed to read turn response: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("turn returned status %d: %s", resp.StatusCode, string(body))
		result.Duration = time.Since(start)
		return result
	}

	var turnResp dialogue.TurnResponse
	if err := json.Unmarshal(body, &turnResp); err != nil {
		result.Error = fmt.Errorf("failed to parse turn response: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.ResponseText = turnResp.NPCOutputText
	result.Duration = time.Since(start)

	if err := checkExpectations(step.Expectations, &turnResp); err != nil {
		result.Error = err
		return result
	}

	applyTurn(snapshot, step.UserInput, &turnResp)
	result.Success = true
	return result
}

// applyTurn folds a completed turn into the local snapshot the way a real
// client would: the exchange joins the history and deltas accumulate into
// NPC state, clamped to the valid range.
func applyTurn(snapshot *state.Snapshot, input string, resp *dialogue.TurnResponse) {
	snapshot.DialogueHistory = append(snapshot.DialogueHistory, state.DialogueTurn{
		Player: input,
		NPC:    resp.NPCOutputText,
	})
	for key, delta := range resp.Deltas {
		current, _ := snapshot.NPCState[key].(float64)
		snapshot.NPCState[key] = state.ClampDelta(current + delta)
	}
}

// checkDeltaBounds verifies one delta against optional inclusive bounds,
// nil meaning unbounded on that side.
func checkDeltaBounds(name string, got float64, min, max *float64) error {
	if min != nil && got < *min {
		return fmt.Errorf("expected %s delta >= %v, got %v", name, *min, got)
	}
	if max != nil && got > *max {
		return fmt.Errorf("expected %s delta <= %v, got %v", name, *max, got)
	}
	return nil
}

func checkExpectations(expect Expectations, resp *dialogue.TurnResponse) error {
	if expect.Valid != nil && resp.Valid != *expect.Valid {
		return fmt.Errorf("expected valid=%v, got %v", *expect.Valid, resp.Valid)
	}

	for name, want := range expect.Flags {
		got, ok := resp.Flags[name]
		if !ok {
			return fmt.Errorf("expected flag %q in response, got flags %v", name, resp.Flags)
		}
		if got != want {
			return fmt.Errorf("expected flag %q=%d, got %d", name, want, got)
		}
	}

	if err := checkDeltaBounds("trust", resp.Deltas["trust"], expect.TrustMin, expect.TrustMax); err != nil {
		return err
	}
	if err := checkDeltaBounds("relationship", resp.Deltas["relationship"], expect.RelationshipMin, expect.RelationshipMax); err != nil {
		return err
	}

	text := resp.NPCOutputText
	lower := strings.ToLower(text)
	for _, want := range expect.ResponseContains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			return fmt.Errorf("expected response to contain %q, got: %s", want, text)
		}
	}
	for _, banned := range expect.ResponseNotContains {
		if strings.Contains(lower, strings.ToLower(banned)) {
			return fmt.Errorf("expected response not to contain %q, got: %s", banned, text)
		}
	}
	if expect.ResponseRegex != "" {
		re, err := regexp.Compile(expect.ResponseRegex)
		if err != nil {
			return fmt.Errorf("invalid response_regex %q: %w", expect.ResponseRegex, err)
		}
		if !re.MatchString(text) {
			return fmt.Errorf("expected response to match %q, got: %s", expect.ResponseRegex, text)
		}
	}
	if expect.ResponseMinLength != nil && len(text) < *expect.ResponseMinLength {
		return fmt.Errorf("expected response length >= %d, got %d", *expect.ResponseMinLength, len(text))
	}
	if expect.ResponseMaxLength != nil && len(text) > *expect.ResponseMaxLength {
		return fmt.Errorf("expected response length <= %d, got %d", *expect.ResponseMaxLength, len(text))
	}

	return nil
}
