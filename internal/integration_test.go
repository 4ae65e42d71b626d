package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/copyleftdev/scryflow/internal/browser"
	"github.com/copyleftdev/scryflow/internal/browser/mocks"
	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/provision"
	"github.com/copyleftdev/scryflow/internal/report"
	"github.com/copyleftdev/scryflow/internal/runs"
	"github.com/copyleftdev/scryflow/internal/scenario"
	"github.com/copyleftdev/scryflow/internal/server"
	"github.com/copyleftdev/scryflow/internal/wait"
	"github.com/copyleftdev/scryflow/internal/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// This integration test drives the whole service over HTTP against the fake
// admin site, so no Chrome is needed.

const baseURL = "http://app.test"

type stack struct {
	site     *mocks.AdminSite
	manager  *runs.Manager
	api      *httptest.Server
	artifact string
}

func newStack(t *testing.T, cfg *config.Config) *stack {
	t.Helper()
	logger := zap.NewNop()
	site := mocks.NewAdminSite(baseURL)
	// The account createsuperuser would have made.
	site.AddUser(mocks.User{
		Username: cfg.Scenario.Admin.Username, Password: cfg.Scenario.Admin.Password,
		Active: true, Staff: true, Superuser: true,
	})

	opener := scenario.OpenerFunc(func(ctx context.Context) (*browser.Session, error) {
		return browser.NewSession(site, browser.SessionOptions{
			BaseURL: cfg.Target.BaseURL,
			Wait:    wait.Options{Timeout: cfg.Wait.Timeout, PollInterval: cfg.Wait.PollInterval},
		}, logger)
	})
	dir := t.TempDir()
	runner := scenario.NewRunner(opener, provision.Noop{}, workflow.DjangoAdmin().WithTarget(cfg.Target), logger,
		scenario.WithLogoutTimeout(cfg.Wait.LogoutTimeout),
		scenario.WithArtifacts(report.NewWriter(dir, logger)),
	)
	manager := runs.NewManager(runner, logger, runs.WithRunTimeout(10*time.Second))
	api := httptest.NewServer(server.NewRouter(cfg, manager, scenario.PlanFromConfig(cfg.Scenario), logger))
	t.Cleanup(func() {
		api.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	return &stack{site: site, manager: manager, api: api, artifact: dir}
}

func testConfig() *config.Config {
	return &config.Config{
		Wait: config.WaitConfig{
			Timeout:       500 * time.Millisecond,
			PollInterval:  10 * time.Millisecond,
			LogoutTimeout: 200 * time.Millisecond,
		},
		Target: config.TargetConfig{BaseURL: baseURL},
		Scenario: config.ScenarioConfig{
			Admin:       config.CredentialConfig{Username: "isard", Password: "pirineus", Email: "admin@example.com"},
			Staff:       config.CredentialConfig{Username: "staff", Password: "password1_st"},
			NewPassword: "NuevaContraseña456!",
		},
		Security: config.SecurityConfig{AllowedOrigins: []string{"*"}},
	}
}

func submit(t *testing.T, s *stack) uuid.UUID {
	t.Helper()
	resp, err := http.Post(s.api.URL+"/api/v1/runs", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body server.SubmitRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	id, err := uuid.Parse(body.RunID)
	require.NoError(t, err)
	return id
}

func waitForRun(t *testing.T, s *stack, id uuid.UUID, timeout time.Duration) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		run, err := s.manager.Get(id)
		if err == nil && run.Status.Done() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, err := http.Get(s.api.URL + "/api/v1/runs/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	return run
}

func TestScryflowIntegrationWorkflow(t *testing.T) {
	s := newStack(t, testConfig())

	id := submit(t, s)
	run := waitForRun(t, s, id, 5*time.Second)

	require.Equal(t, "passed", run["status"], "run: %v", run)
	verdict := run["verdict"].(map[string]interface{})
	assert.Equal(t, "PASS", verdict["status"])
	assert.Len(t, verdict["steps"], 8)

	staff, ok := s.site.User("staff")
	require.True(t, ok)
	assert.Equal(t, "NuevaContraseña456!", staff.Password)
	assert.True(t, staff.Staff)
	assert.True(t, s.site.Closed())
	assert.FileExists(t, filepath.Join(s.artifact, id.String(), "verdict.json"))
}

func TestScryflowIntegrationLogoutNeverAppears(t *testing.T) {
	s := newStack(t, testConfig())
	s.site.Suppress("form#logout-form button[type='submit']")

	id := submit(t, s)
	run := waitForRun(t, s, id, 5*time.Second)

	require.Equal(t, "failed", run["status"], "run: %v", run)
	verdict := run["verdict"].(map[string]interface{})
	assert.Equal(t, "logout_admin", verdict["failed_step"])
	assert.Equal(t, workflow.ReasonTimeout, verdict["reason"])
	assert.True(t, s.site.Closed())

	resp, err := http.Get(s.api.URL + "/api/v1/runs/" + id.String() + "/snapshot?format=html")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg report.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Contains(t, msg.Content.Data, "user-tools")

	data, err := os.ReadFile(filepath.Join(s.artifact, id.String(), "failure.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "user-tools")
}
