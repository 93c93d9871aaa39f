package services

import (
	"context"
	"sync"

	"github.com/questforge/dialogue-engine/pkg/dialogue"
)

// MockGenerationService is a mock implementation of GenerationService for testing
type MockGenerationService struct {
	InitModelFunc func(ctx context.Context, modelName string) error
	GenerateFunc  func(ctx context.Context, prompt string) (*dialogue.GenerationResult, error)
	PingFunc      func(ctx context.Context) error

	// Track calls for testing
	InitModelCalls []string
	GenerateCalls  []string
	PingCalls      int

	mu sync.Mutex // protects all fields above
}

// NewMockGenerationService creates a new mock generation service
func NewMockGenerationService() *MockGenerationService {
	return &MockGenerationService{
		InitModelCalls: make([]string, 0),
		GenerateCalls:  make([]string, 0),
	}
}

// InitModel mocks model initialization
func (m *MockGenerationService) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InitModelCalls = append(m.InitModelCalls, modelName)

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx, modelName)
	}

	// Default behavior - success
	return nil
}

// Generate mocks completion generation
func (m *MockGenerationService) Generate(ctx context.Context, prompt string) (*dialogue.GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerateCalls = append(m.GenerateCalls, prompt)

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}

	return &dialogue.GenerationResult{Text: "<RESPONSE>Mock response</RESPONSE>"}, nil
}

// Ping mocks the reachability check
func (m *MockGenerationService) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PingCalls++

	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Reset clears all call tracking
func (m *MockGenerationService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = make([]string, 0)
	m.GenerateCalls = make([]string, 0)
	m.PingCalls = 0
}

// SetGenerateError sets up the mock to return an error on Generate
func (m *MockGenerationService) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, prompt string) (*dialogue.GenerationResult, error) {
		return nil, err
	}
}

// SetGenerateResponse sets up the mock to return fixed generated text
func (m *MockGenerationService) SetGenerateResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, prompt string) (*dialogue.GenerationResult, error) {
		return &dialogue.GenerationResult{Text: text}, nil
	}
}

// GetGenerateCalls returns a copy of the recorded prompts in a thread-safe way
func (m *MockGenerationService) GetGenerateCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]string, len(m.GenerateCalls))
	copy(calls, m.GenerateCalls)
	return calls
}
