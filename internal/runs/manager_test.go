package runs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/copyleftdev/scryflow/internal/report"
	"github.com/copyleftdev/scryflow/internal/runs/mocks"
	"github.com/copyleftdev/scryflow/internal/scenario"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, m *Manager, id uuid.UUID) *Run {
	t.Helper()
	var run *Run
	require.Eventually(t, func() bool {
		var err error
		run, err = m.Get(id)
		return err == nil && run.Status.Done()
	}, 2*time.Second, 10*time.Millisecond)
	return run
}

func TestManager_SubmitAndGet(t *testing.T) {
	executor := mocks.NewMockExecutor()
	manager := NewManager(executor, nil)

	run := NewRun(scenario.DefaultPlan(), "")
	require.NoError(t, manager.Submit(run))

	final := waitForStatus(t, manager, run.ID)
	assert.Equal(t, StatusPassed, final.Status)
	require.NotNil(t, final.Verdict)
	assert.Equal(t, run.ID.String(), final.Verdict.RunID)

	plans := executor.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, run.ID.String(), plans[0].RunID)
	assert.Equal(t, "staff", plans[0].Staff.Username)
}

func TestManager_FailedRun(t *testing.T) {
	executor := mocks.NewMockExecutor()
	executor.FailAt("logout_admin")
	manager := NewManager(executor, nil)

	run := NewRun(scenario.DefaultPlan(), "")
	require.NoError(t, manager.Submit(run))

	final := waitForStatus(t, manager, run.ID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, "logout_admin", final.Verdict.FailedStep)
}

func TestManager_DuplicateAndMissing(t *testing.T) {
	manager := NewManager(mocks.NewMockExecutor(), nil)
	run := NewRun(scenario.DefaultPlan(), "")
	require.NoError(t, manager.Submit(run))

	assert.ErrorIs(t, manager.Submit(run), ErrRunExists)

	_, err := manager.Get(uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestManager_Callback(t *testing.T) {
	received := make(chan report.Message, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var msg report.Message
		assert.NoError(t, json.Unmarshal(body, &msg))
		received <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	manager := NewManager(mocks.NewMockExecutor(), nil)
	run := NewRun(scenario.DefaultPlan(), srv.URL)
	require.NoError(t, manager.Submit(run))

	select {
	case msg := <-received:
		assert.Equal(t, run.ID.String(), msg.RunID)
		data, ok := msg.Content.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, string(StatusPassed), data["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("callback not received")
	}
}

func TestManager_ShutdownCancelsRuns(t *testing.T) {
	executor := mocks.NewMockExecutor()
	executor.Block()
	manager := NewManager(executor, nil)

	run := NewRun(scenario.DefaultPlan(), "")
	require.NoError(t, manager.Submit(run))
	<-executor.Started()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(ctx))

	final, err := manager.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, final.Status)

	assert.ErrorIs(t, manager.Submit(NewRun(scenario.DefaultPlan(), "")), ErrShuttingDown)
}

func TestManager_RunTimeout(t *testing.T) {
	executor := mocks.NewMockExecutor()
	executor.Block()
	manager := NewManager(executor, nil, WithRunTimeout(50*time.Millisecond))

	run := NewRun(scenario.DefaultPlan(), "")
	require.NoError(t, manager.Submit(run))

	final := waitForStatus(t, manager, run.ID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.ErrorIs(t, final.Verdict.Err, context.DeadlineExceeded)
}

func TestRun_PlanPasswordsNotSerialized(t *testing.T) {
	run := NewRun(scenario.DefaultPlan(), "")
	data, err := json.Marshal(run)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "pirineus")
	assert.NotContains(t, string(data), "password1_st")
	assert.Contains(t, string(data), `"username":"isard"`)
}
