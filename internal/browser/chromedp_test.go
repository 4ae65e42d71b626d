package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/dom"
	"github.com/copyleftdev/scryflow/internal/wait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const loginPage = `<html><head><title>Log in</title></head><body>
<form id="login-form" method="post" action="/login">
  <input type="text" name="username" id="id_username">
  <input type="password" name="password" id="id_password">
  <input type="checkbox" name="remember" id="id_remember" checked>
  <input type="submit" value="Log in">
</form>%s
</body></html>`

const homePage = `<html><head><title>Site administration</title></head><body>
<div id="user-tools">Welcome, <strong>%s</strong>.</div>
</body></html>`

func loginServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.Method == http.MethodPost {
			if r.FormValue("username") == "isard" && r.FormValue("password") == "pirineus" {
				http.Redirect(w, r, "/home?user=isard", http.StatusFound)
				return
			}
			fmt.Fprintf(w, loginPage, `<p class="errornote">Please enter the correct username and password.</p>`)
			return
		}
		fmt.Fprintf(w, loginPage, "")
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, homePage, r.URL.Query().Get("user"))
	})
	return httptest.NewServer(mux)
}

// newTestLauncher skips unless a local Chrome can be used.
func newTestLauncher(t *testing.T, maxSessions int) *Launcher {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping chromedp test in short mode")
	}
	found := false
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if _, err := exec.LookPath(name); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("No Chrome executable found")
	}

	l, err := NewLauncher(&config.BrowserConfig{
		Headless:     true,
		WindowWidth:  1280,
		WindowHeight: 1024,
		MaxSessions:  maxSessions,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = l.Shutdown(ctx)
	})
	return l
}

func openTestSession(t *testing.T, l *Launcher, baseURL string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := l.Open(ctx, SessionOptions{
		BaseURL: baseURL,
		Wait:    wait.Options{Timeout: 5 * time.Second, PollInterval: 100 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestLauncher_SessionDrivesLoginForm(t *testing.T) {
	l := newTestLauncher(t, 1)
	srv := loginServer()
	defer srv.Close()

	// The session must outlive the context Open was called with.
	s := openTestSession(t, l, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, "/login"))

	checked, err := s.Checked(ctx, dom.ID("id_remember"))
	require.NoError(t, err)
	assert.True(t, checked)

	require.NoError(t, s.Fill(ctx, dom.Name("username"), "isard"))
	require.NoError(t, s.Fill(ctx, dom.Name("password"), "wrong"))
	require.NoError(t, s.Fill(ctx, dom.Name("password"), "pirineus"))
	require.NoError(t, s.Click(ctx, dom.XPath("//input[@value='Log in']")))

	el, err := s.Find(ctx, dom.ID("user-tools"))
	require.NoError(t, err)
	text, err := el.Text(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "isard")

	loc, err := s.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/home?user=isard", loc)

	snap := s.Snapshot(ctx)
	assert.Empty(t, snap.Problems)
	assert.Equal(t, "Site administration", snap.Title)
	assert.Contains(t, snap.HTML, "user-tools")
	assert.Contains(t, snap.Simplified, "user-tools")
	assert.NotEmpty(t, snap.Screenshot)
}

func TestLauncher_RejectedLoginShowsErrorNote(t *testing.T) {
	l := newTestLauncher(t, 1)
	srv := loginServer()
	defer srv.Close()

	s := openTestSession(t, l, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, "/login"))
	require.NoError(t, s.Fill(ctx, dom.Name("username"), "isard"))
	require.NoError(t, s.Fill(ctx, dom.Name("password"), "nope"))
	require.NoError(t, s.Click(ctx, dom.XPath("//input[@value='Log in']")))

	idx, err := s.AwaitAny(ctx, []wait.Condition{
		wait.Present(dom.ID("user-tools")),
		wait.Present(dom.Query(".errornote")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = s.Find(ctx, dom.ID("user-tools"), WithTimeout(300*time.Millisecond))
	assert.ErrorIs(t, err, wait.ErrElementNotFound)
}

func TestLauncher_ElementGoesStaleAfterNavigation(t *testing.T) {
	l := newTestLauncher(t, 1)
	srv := loginServer()
	defer srv.Close()

	s := openTestSession(t, l, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, "/login"))
	el, err := s.Find(ctx, dom.Name("username"))
	require.NoError(t, err)

	require.NoError(t, s.Navigate(ctx, "/home?user=isard"))
	_, err = s.Find(ctx, dom.ID("user-tools"))
	require.NoError(t, err)

	_, err = el.Text(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dom.ErrStaleElement), "got %v", err)
}

func TestLauncher_SlotsAreBounded(t *testing.T) {
	l := newTestLauncher(t, 1)
	srv := loginServer()
	defer srv.Close()

	first := openTestSession(t, l, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := l.Open(ctx, SessionOptions{BaseURL: srv.URL})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Close(context.Background()))
	second := openTestSession(t, l, srv.URL)
	assert.True(t, second.Alive())
}

func TestLauncher_Verify(t *testing.T) {
	l := newTestLauncher(t, 1)
	srv := loginServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := l.Verify(ctx, srv.URL+"/login")
	require.NoError(t, err)
	assert.Equal(t, "Log in", result["title"])
	assert.Equal(t, true, result["body_present"])
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("No node with given id found (-32000)"))
	assert.ErrorIs(t, err, dom.ErrStaleElement)

	plain := errors.New("net::ERR_CONNECTION_REFUSED")
	assert.Equal(t, plain, classify(plain))
}
