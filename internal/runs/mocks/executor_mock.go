package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/copyleftdev/scryflow/internal/scenario"
)

// MockExecutor implements runs.Executor for testing.
type MockExecutor struct {
	mu       sync.Mutex
	plans    []scenario.Plan
	failStep string
	block    bool
	started  chan struct{}
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{started: make(chan struct{}, 16)}
}

// FailAt makes every run fail at step.
func (m *MockExecutor) FailAt(step string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStep = step
}

// Block makes runs wait for their context to end.
func (m *MockExecutor) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = true
}

// Started receives once per run as it begins.
func (m *MockExecutor) Started() <-chan struct{} { return m.started }

func (m *MockExecutor) Run(ctx context.Context, plan scenario.Plan) *scenario.Verdict {
	m.mu.Lock()
	m.plans = append(m.plans, plan)
	failStep, block := m.failStep, m.block
	m.mu.Unlock()

	select {
	case m.started <- struct{}{}:
	default:
	}

	v := &scenario.Verdict{RunID: plan.RunID, Status: scenario.StatusPass, StartedAt: time.Now().UTC()}
	if block {
		<-ctx.Done()
		v.Status = scenario.StatusFail
		v.FailedStep = "login_admin"
		v.Err = ctx.Err()
		v.Error = ctx.Err().Error()
	} else if failStep != "" {
		v.Status = scenario.StatusFail
		v.FailedStep = failStep
		v.Error = failStep + " failed"
	}
	v.FinishedAt = time.Now().UTC()
	return v
}

// Plans returns the plans executed so far.
func (m *MockExecutor) Plans() []scenario.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scenario.Plan(nil), m.plans...)
}
