//go:build integration
// +build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/questforge/dialogue-engine/integration/runner"
)

var caseFlag = flag.String("case", "", "Name of test case to run (from integration/cases/)")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")
var runsFlag = flag.Int("runs", 1, "Number of times to run each test suite (useful for testing non-deterministic behavior)")
var npcFlag = flag.String("npc", "", "Override NPC for all test cases (e.g., 'blacksmith')")

func TestMain(m *testing.M) {
	apiBaseURL := os.Getenv("API_BASE_URL")
	if apiBaseURL == "" {
		apiBaseURL = "http://localhost:8080"
	}

	fmt.Printf("Running Dialogue Engine Integration Tests\n")
	fmt.Printf("   API Base URL: %s\n", apiBaseURL)

	code := m.Run()
	os.Exit(code)
}

func TestIntegrationSuites(t *testing.T) {
	apiBaseURL := os.Getenv("API_BASE_URL")
	if apiBaseURL == "" {
		apiBaseURL = "http://localhost:8080"
	}
	timeoutSeconds := getIntEnv("TEST_TIMEOUT_SECONDS", 30)

	testRunner := runner.NewRunner(apiBaseURL)
	testRunner.Timeout = time.Duration(timeoutSeconds) * time.Second
	testRunner.ErrorHandlingMode = "continue" // see all results in bulk runs
	testRunner.NPCOverride = *npcFlag
	testRunner.Logger = func(format string, args ...interface{}) {
		fmt.Printf(format+"\n", args...)
	}

	if testRunner.NPCOverride != "" {
		t.Logf("NPC override enabled: %s", testRunner.NPCOverride)
	}

	testFiles, err := discoverTestFiles("cases")
	if err != nil {
		t.Fatalf("Failed to discover test files: %v", err)
	}
	if len(testFiles) == 0 {
		t.Fatal("No test files found in cases directory")
	}

	var jobs []runner.TestJob
	for _, file := range testFiles {
		expandedJobs, err := runner.LoadTestSuiteWithExpansion(file, "cases")
		if err != nil {
			t.Errorf("Failed to load test suite %s: %v", file, err)
			continue
		}
		jobs = append(jobs, expandedJobs...)
	}

	if *runsFlag > 1 {
		t.Logf("Running each suite %d times", *runsFlag)
		base := jobs
		jobs = nil
		for i := 0; i < *runsFlag; i++ {
			jobs = append(jobs, base...)
		}
	}

	var passed, failed int
	for _, job := range jobs {
		t.Run(job.Name, func(t *testing.T) {
			result, err := testRunner.RunSuite(context.Background(), job.Suite)
			reportSuite(t, result)
			if err != nil {
				failed++
				t.Errorf("Suite %s failed: %v", job.Name, err)
				return
			}
			passed++
		})
	}

	t.Logf("Suites: %d passed, %d failed", passed, failed)
}

func TestSingleCase(t *testing.T) {
	if *caseFlag == "" {
		t.Skip("No -case flag provided, skipping single case test")
	}

	apiBaseURL := os.Getenv("API_BASE_URL")
	if apiBaseURL == "" {
		apiBaseURL = "http://localhost:8080"
	}

	testRunner := runner.NewRunner(apiBaseURL)
	testRunner.Timeout = time.Duration(getIntEnv("TEST_TIMEOUT_SECONDS", 30)) * time.Second
	testRunner.ErrorHandlingMode = runner.ErrorHandlingMode(*errFlag)
	testRunner.NPCOverride = *npcFlag
	testRunner.Logger = func(format string, args ...interface{}) {
		fmt.Printf(format+"\n", args...)
	}

	caseFile := *caseFlag
	if !strings.HasSuffix(caseFile, ".json") {
		caseFile += ".json"
	}
	casePath := filepath.Join("cases", caseFile)

	jobs, err := runner.LoadTestSuiteWithExpansion(casePath, "cases")
	if err != nil {
		t.Fatalf("Failed to load test case %s: %v", casePath, err)
	}

	for _, job := range jobs {
		t.Run(job.Name, func(t *testing.T) {
			result, err := testRunner.RunSuite(context.Background(), job.Suite)
			reportSuite(t, result)
			if err != nil {
				t.Errorf("Suite %s failed: %v", job.Name, err)
			}
		})
	}
}

// reportSuite prints a per-step summary for one suite run
func reportSuite(t *testing.T, result runner.TestRunResult) {
	t.Helper()
	var steps, failures int
	for _, step := range result.Results {
		if step.IsReset {
			continue
		}
		steps++
		if step.Error != nil {
			failures++
			t.Logf("  ✗ %s: %v", step.StepName, step.Error)
		}
	}
	t.Logf("Suite %s: %d/%d steps passed in %v (session %s)",
		result.Job.Name, steps-failures, steps, result.Duration, result.SessionID)
}

// discoverTestFiles finds all JSON test case files in the given directory
func discoverTestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
