package runner

import (
	"time"

	"github.com/questforge/dialogue-engine/pkg/state"
)

// Special user input values that trigger non-dialogue actions
const (
	ResetSessionInput = "RESET_SESSION"
)

// TestSuite defines a complete integration test scenario.
// Can either be a regular test with Steps, or a suite that references other Cases.
type TestSuite struct {
	Name         string          `json:"name"`
	NPCID        string          `json:"npc_id,omitempty"`
	QuestStage   string          `json:"quest_stage,omitempty"`
	Location     string          `json:"location,omitempty"`
	SeedSnapshot *state.Snapshot `json:"seed_snapshot,omitempty"`
	Steps        []TestStep      `json:"steps,omitempty"`
	Cases        []string        `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single dialogue turn and its expected outcomes.
// Use user_input: "RESET_SESSION" to start a fresh session with the seed snapshot.
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	UserInput    string       `json:"user_input"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	Valid *bool `json:"valid,omitempty"`

	// Flag values (trigger decisions and value-bearing flags)
	Flags map[string]int `json:"flags,omitempty"`

	// Delta bounds on the turn's emotional adjustments
	TrustMin        *float64 `json:"trust_min,omitempty"`
	TrustMax        *float64 `json:"trust_max,omitempty"`
	RelationshipMin *float64 `json:"relationship_min,omitempty"`
	RelationshipMax *float64 `json:"relationship_max,omitempty"`

	// Response Analysis
	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
	ResponseMinLength   *int     `json:"response_min_length,omitempty"`
	ResponseMaxLength   *int     `json:"response_max_length,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
	IsReset      bool // True if this was a RESET_SESSION step (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID string
}
