// Package workflow drives an admin site through authenticated states. The
// state machine is explicit: steps that need an anonymous session exist only
// on *Anonymous, steps that need an identity only on *Authenticated, and a
// handle superseded by a later transition refuses to act.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/copyleftdev/scryflow/internal/browser"
	"github.com/copyleftdev/scryflow/internal/dom"
	"github.com/copyleftdev/scryflow/internal/wait"
	"go.uber.org/zap"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	StepLogin          = "login"
	StepLogout         = "logout"
	StepCreateUser     = "create_user"
	StepSetPermissions = "set_permissions"
	StepExpectMarker   = "expect_marker"
	StepChangePassword = "change_password"
)

// fillAttempts bounds how often a field is re-resolved and refilled after
// it detached mid-type. Submit clicks are never repeated.
const fillAttempts = 2

type Option func(*Flow)

// WithLogoutTimeout sets the wait for the logout control, which renders on
// its own schedule. Zero keeps the session default.
func WithLogoutTimeout(d time.Duration) Option {
	return func(f *Flow) { f.logoutTimeout = d }
}

// Flow tracks the state of one session. It is not safe for concurrent steps.
type Flow struct {
	sess          *browser.Session
	site          Site
	logger        *zap.Logger
	logoutTimeout time.Duration

	mu       sync.Mutex
	gen      int
	state    State
	identity Credential
}

// Start takes over a fresh, anonymous session.
func Start(sess *browser.Session, site Site, logger *zap.Logger, opts ...Option) *Anonymous {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Flow{sess: sess, site: site, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return &Anonymous{flow: f, gen: f.gen}
}

// State is the current state, Closed once the session is gone.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sess.Alive() {
		return StateClosed
	}
	return f.state
}

// Identity returns the logged-in credential, if any.
func (f *Flow) Identity() (Credential, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, f.state == StateAuthenticated && f.sess.Alive()
}

// enter checks that a handle of generation gen may still act.
func (f *Flow) enter(step string, gen int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sess.Alive() {
		return &StepError{Step: step, Kind: ErrIllegalTransition, Reason: "session closed"}
	}
	if gen != f.gen {
		return &StepError{
			Step:   step,
			Kind:   ErrIllegalTransition,
			Reason: fmt.Sprintf("handle superseded, session is %s", f.state),
		}
	}
	return nil
}

func (f *Flow) transition(to State, identity Credential) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.state = to
	f.identity = identity
	f.logger.Debug("Session state changed", zap.Stringer("state", to), zap.String("identity", identity.Username))
	return f.gen
}

// fail builds the StepError for a failed step, taking condition and snapshot
// from a wait timeout when there is one.
func (f *Flow) fail(ctx context.Context, step string, kind error, reason string, err error) *StepError {
	se := &StepError{Step: step, Kind: kind, Reason: reason, Err: err}
	var nf *wait.NotFoundError
	switch {
	case errors.As(err, &nf):
		se.Condition = nf.Condition
		se.Snapshot = nf.Snapshot
		if se.Reason == "" {
			se.Reason = ReasonTimeout
		}
	case errors.Is(err, dom.ErrStaleElement) && se.Reason == "":
		se.Reason = ReasonStale
	}
	if se.Snapshot == nil && f.sess.Alive() {
		se.Snapshot = f.sess.Snapshot(ctx)
	}
	f.logger.Warn("Step failed", zap.String("step", step), zap.String("reason", se.Reason), zap.Error(err))
	return se
}

// fill types into a field, re-resolving it if it detached while typing.
func (f *Flow) fill(ctx context.Context, loc dom.Locator, value string) error {
	var err error
	for attempt := 1; attempt <= fillAttempts; attempt++ {
		err = f.sess.Fill(ctx, loc, value)
		if !errors.Is(err, dom.ErrStaleElement) {
			return err
		}
		f.logger.Debug("Field detached while typing", zap.Stringer("locator", loc), zap.Int("attempt", attempt))
	}
	return err
}

func (f *Flow) fillAll(ctx context.Context, fields []field) error {
	for _, fd := range fields {
		if err := f.fill(ctx, fd.loc, fd.value); err != nil {
			return err
		}
	}
	return nil
}

type field struct {
	loc   dom.Locator
	value string
}

// errorNote reads the text of the error note the form was re-shown with.
func (f *Flow) errorNote(ctx context.Context) error {
	el, err := f.sess.Find(ctx, f.site.ErrorNote, browser.WithTimeout(time.Second))
	if err != nil {
		return errors.New("form re-shown with errors")
	}
	text, err := el.Text(ctx)
	if err != nil || text == "" {
		return errors.New("form re-shown with errors")
	}
	return fmt.Errorf("form re-shown: %s", text)
}

// Anonymous is a session with nobody logged in.
type Anonymous struct {
	flow *Flow
	gen  int
}

func (a *Anonymous) Flow() *Flow { return a.flow }

// Authenticated is a session logged in as one identity.
type Authenticated struct {
	flow     *Flow
	gen      int
	identity Credential
}

func (a *Authenticated) Flow() *Flow { return a.flow }

func (a *Authenticated) Identity() Credential { return a.identity }
