// Package runs executes scenario runs in the background on behalf of the
// HTTP API and keeps their results for retrieval.
package runs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/copyleftdev/scryflow/internal/report"
	"github.com/copyleftdev/scryflow/internal/scenario"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunExists      = errors.New("run already exists")
	ErrShuttingDown   = errors.New("run manager is shutting down")
	defaultRunTimeout = 5 * time.Minute
)

type Option func(*Manager)

// WithRunTimeout bounds a single run, teardown included.
func WithRunTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.runTimeout = d
		}
	}
}

// WithHTTPClient sets the client used for completion callbacks.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

type Manager struct {
	executor   Executor
	logger     *zap.Logger
	client     *http.Client
	runTimeout time.Duration

	mu       sync.RWMutex
	runs     map[uuid.UUID]*Run
	closed   bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancelFn context.CancelFunc
}

func NewManager(executor Executor, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		executor:   executor,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
		runTimeout: defaultRunTimeout,
		runs:       make(map[uuid.UUID]*Run),
		baseCtx:    ctx,
		cancelFn:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit stores run and starts executing it in the background.
func (m *Manager) Submit(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrShuttingDown
	}
	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	m.runs[run.ID] = run

	m.wg.Add(1)
	go m.execute(run)

	m.logger.Info("Run submitted", zap.String("run_id", run.ID.String()))
	return nil
}

// Get returns a copy of the run.
func (m *Manager) Get(id uuid.UUID) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	runCopy := *run
	return &runCopy, nil
}

func (m *Manager) execute(run *Run) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("run_id", run.ID.String()))

	m.mu.Lock()
	run.UpdateStatus(StatusRunning)
	plan := run.Plan
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.baseCtx, m.runTimeout)
	defer cancel()
	verdict := m.executor.Run(ctx, plan)

	m.mu.Lock()
	run.Verdict = verdict
	switch {
	case verdict.Passed():
		run.UpdateStatus(StatusPassed)
	case m.baseCtx.Err() != nil:
		run.UpdateStatus(StatusCancelled)
	default:
		run.UpdateStatus(StatusFailed)
	}
	final := *run
	m.mu.Unlock()

	logger.Info("Run finished", zap.String("status", string(final.Status)), zap.String("failed_step", verdict.FailedStep))

	if final.CallbackURL != "" {
		m.notifyCallback(ctx, &final, logger)
	}
}

// notifyCallback posts the final run to its callback URL.
func (m *Manager) notifyCallback(ctx context.Context, run *Run, logger *zap.Logger) {
	body, err := report.FormatResult(run.ID.String(), run, "")
	if err != nil {
		logger.Error("Error encoding callback body", zap.Error(err))
		return
	}

	// The run context may be spent by now; the callback gets its own budget.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.client.Timeout+time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, run.CallbackURL, bytes.NewReader(body))
	if err != nil {
		logger.Error("Error creating callback request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		logger.Warn("Error sending callback", zap.String("url", run.CallbackURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logger.Debug("Callback notification sent", zap.String("status", resp.Status))
	} else {
		logger.Warn("Callback notification rejected", zap.String("status", resp.Status))
	}
}

// Shutdown stops accepting runs, cancels the ones in flight and waits for
// them to tear down or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelFn()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Run manager shut down")
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for id, run := range m.runs {
			if !run.Status.Done() {
				m.logger.Warn("Run still active at shutdown", zap.String("run_id", id.String()))
				run.UpdateStatus(StatusCancelled)
			}
		}
		m.mu.Unlock()
		return ctx.Err()
	}
}

// Verdict of a run, shorthand for the API.
func (m *Manager) Verdict(id uuid.UUID) (*scenario.Verdict, error) {
	run, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return run.Verdict, nil
}
