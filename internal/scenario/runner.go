// Package scenario runs the end-to-end admin workflow: provision the admin
// account, open a session, drive the steps in a fixed order and reduce the
// outcome to a PASS/FAIL verdict.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/copyleftdev/scryflow/internal/browser"
	"github.com/copyleftdev/scryflow/internal/report"
	"github.com/copyleftdev/scryflow/internal/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Opener hands out a fresh anonymous session owned by the caller.
type Opener interface {
	Open(ctx context.Context) (*browser.Session, error)
}

type OpenerFunc func(ctx context.Context) (*browser.Session, error)

func (f OpenerFunc) Open(ctx context.Context) (*browser.Session, error) { return f(ctx) }

// Provisioner makes sure the admin account exists before the run.
type Provisioner interface {
	Provision(ctx context.Context, cred workflow.Credential) error
}

const (
	stepProvision   = "provision"
	stepOpenSession = "open_session"

	defaultCloseTimeout = 10 * time.Second
)

type Option func(*Runner)

func WithLogoutTimeout(d time.Duration) Option {
	return func(r *Runner) { r.logoutTimeout = d }
}

// WithArtifacts stores every verdict, and the snapshot of a failure, through w.
func WithArtifacts(w *report.Writer) Option {
	return func(r *Runner) { r.artifacts = w }
}

// WithCloseTimeout bounds session teardown.
func WithCloseTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.closeTimeout = d
		}
	}
}

type Runner struct {
	opener        Opener
	provisioner   Provisioner
	site          workflow.Site
	logger        *zap.Logger
	logoutTimeout time.Duration
	closeTimeout  time.Duration
	artifacts     *report.Writer
}

func NewRunner(opener Opener, provisioner Provisioner, site workflow.Site, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		opener:       opener,
		provisioner:  provisioner,
		site:         site,
		logger:       logger,
		closeTimeout: defaultCloseTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// state is what the steps hand to each other.
type state struct {
	plan   Plan
	anon   *workflow.Anonymous
	authed *workflow.Authenticated
}

type step struct {
	name string
	run  func(ctx context.Context, st *state) error
}

// steps is the fixed order of the scenario. Each step only starts once the
// previous one verified its postcondition.
func (r *Runner) steps() []step {
	return []step{
		{"login_admin", func(ctx context.Context, st *state) error {
			authed, err := st.anon.Login(ctx, st.plan.Admin)
			if err == nil {
				st.authed = authed
			}
			return err
		}},
		{"create_staff", func(ctx context.Context, st *state) error {
			return st.authed.CreateUser(ctx, st.plan.Staff, st.plan.StaffFlags...)
		}},
		{"logout_admin", func(ctx context.Context, st *state) error {
			anon, err := st.authed.Logout(ctx)
			if err == nil {
				st.anon, st.authed = anon, nil
			}
			return err
		}},
		{"login_staff", func(ctx context.Context, st *state) error {
			authed, err := st.anon.Login(ctx, st.plan.Staff)
			if err == nil {
				st.authed = authed
			}
			return err
		}},
		{"expect_staff_access", func(ctx context.Context, st *state) error {
			return st.authed.ExpectMarker(ctx, r.site.StaffMarker)
		}},
		{"change_password", func(ctx context.Context, st *state) error {
			authed, err := st.authed.ChangePassword(ctx, st.plan.Staff.Password, st.plan.NewPassword)
			if err == nil {
				st.authed = authed
			}
			return err
		}},
	}
}

// Run executes plan and never returns a nil verdict. The session is closed on
// every exit path before the verdict is returned, panics included.
func (r *Runner) Run(ctx context.Context, plan Plan) (v *Verdict) {
	if plan.RunID == "" {
		plan.RunID = uuid.NewString()
	}
	v = &Verdict{RunID: plan.RunID, Status: StatusPass, StartedAt: time.Now().UTC()}
	logger := r.logger.With(zap.String("run_id", plan.RunID))
	logger.Info("Scenario started", zap.String("admin", plan.Admin.Username), zap.String("staff", plan.Staff.Username))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Scenario panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			v.fail(v.currentStep(), fmt.Errorf("panic: %v", p))
		}
		v.FinishedAt = time.Now().UTC()
		r.writeArtifacts(logger, v)
		logger.Info("Scenario finished",
			zap.String("status", string(v.Status)),
			zap.String("failed_step", v.FailedStep),
			zap.Duration("elapsed", v.FinishedAt.Sub(v.StartedAt)))
	}()

	if err := r.record(ctx, v, stepProvision, func(ctx context.Context) error {
		return r.provisioner.Provision(ctx, plan.Admin)
	}); err != nil {
		return v
	}

	var sess *browser.Session
	if err := r.record(ctx, v, stepOpenSession, func(ctx context.Context) error {
		var err error
		sess, err = r.opener.Open(ctx)
		if err == nil && sess == nil {
			err = errors.New("opener returned no session")
		}
		return err
	}); err != nil {
		return v
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("Failed to close session", zap.Error(err))
		}
	}()

	st := &state{
		plan: plan,
		anon: workflow.Start(sess, r.site, logger, workflow.WithLogoutTimeout(r.logoutTimeout)),
	}
	for _, s := range r.steps() {
		if err := r.record(ctx, v, s.name, func(ctx context.Context) error { return s.run(ctx, st) }); err != nil {
			break
		}
	}
	return v
}

// record runs fn as the step called name and appends its record. A panic in
// fn fails the step rather than the process.
func (r *Runner) record(ctx context.Context, v *Verdict, name string, fn func(context.Context) error) (err error) {
	rec := StepRecord{Name: name, Status: StatusPass, Started: time.Now().UTC()}
	v.Steps = append(v.Steps, rec)
	idx := len(v.Steps) - 1

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Step panicked", zap.String("run_id", v.RunID), zap.String("step", name),
				zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
		v.Steps[idx].Duration = time.Since(v.Steps[idx].Started)
		if err != nil {
			v.Steps[idx].Status = StatusFail
			v.Steps[idx].Error = err.Error()
			v.fail(name, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (r *Runner) writeArtifacts(logger *zap.Logger, v *Verdict) {
	if r.artifacts == nil {
		return
	}
	if v.Snapshot != nil {
		files, err := r.artifacts.WriteSnapshot(v.RunID, "failure", v.Snapshot)
		if err != nil {
			logger.Warn("Failed to write failure snapshot", zap.Error(err))
		}
		v.Artifacts = append(v.Artifacts, files...)
	}
	path, err := r.artifacts.WriteVerdict(v.RunID, v)
	if err != nil {
		logger.Warn("Failed to write verdict", zap.Error(err))
		return
	}
	v.Artifacts = append(v.Artifacts, path)
}

// currentStep is the step that was running when a panic escaped.
func (v *Verdict) currentStep() string {
	if len(v.Steps) == 0 {
		return "setup"
	}
	return v.Steps[len(v.Steps)-1].Name
}
