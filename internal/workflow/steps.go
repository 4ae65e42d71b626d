package workflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/copyleftdev/scryflow/internal/auth"
	"github.com/copyleftdev/scryflow/internal/browser"
	"github.com/copyleftdev/scryflow/internal/dom"
	"github.com/copyleftdev/scryflow/internal/wait"
	"go.uber.org/zap"
)

// Login authenticates as cred. It succeeds only once the login form is gone
// and the authenticated marker is shown in the same poll; a re-shown form
// with an error note is a rejection. A second-factor prompt is answered with
// a code from cred.TOTPSecret.
func (a *Anonymous) Login(ctx context.Context, cred Credential) (*Authenticated, error) {
	f := a.flow
	if err := f.enter(StepLogin, a.gen); err != nil {
		return nil, err
	}
	site := f.site
	logger := f.logger.With(zap.String("step", StepLogin), zap.String("username", cred.Username))

	if err := f.sess.Navigate(ctx, site.LoginPath); err != nil {
		return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
	}
	err := f.fillAll(ctx, []field{
		{site.LoginUsername, cred.Username},
		{site.LoginPassword, cred.Password},
	})
	if err != nil {
		return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
	}
	if err := f.sess.Click(ctx, site.LoginSubmit); err != nil {
		return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
	}

	loggedIn := wait.All(wait.Absent(site.LoginForm), wait.Absent(site.OTPField), wait.Present(site.AuthMarker))
	idx, err := f.sess.AwaitAny(ctx, []wait.Condition{
		loggedIn,
		wait.Visible(site.OTPField),
		wait.Present(site.ErrorNote),
	})
	if err != nil {
		return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
	}

	switch idx {
	case 1:
		if cred.TOTPSecret == "" {
			return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "second factor required", nil)
		}
		logger.Debug("Answering second-factor prompt")
		code, err := auth.GenerateTOTP(cred.TOTPSecret)
		if err != nil {
			return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
		}
		if err := f.fill(ctx, site.OTPField, code); err != nil {
			return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
		}
		if err := f.sess.Click(ctx, site.OTPSubmit); err != nil {
			return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
		}
		idx, err = f.sess.AwaitAny(ctx, []wait.Condition{loggedIn, wait.Present(site.ErrorNote)})
		if err != nil {
			return nil, f.fail(ctx, StepLogin, ErrLoginFailed, "", err)
		}
		if idx == 1 {
			return nil, f.fail(ctx, StepLogin, ErrLoginFailed, ReasonRejected, f.errorNote(ctx))
		}
	case 2:
		return nil, f.fail(ctx, StepLogin, ErrLoginFailed, ReasonRejected, f.errorNote(ctx))
	}

	gen := f.transition(StateAuthenticated, cred)
	logger.Info("Logged in")
	return &Authenticated{flow: f, gen: gen, identity: cred}, nil
}

// Logout uses the dedicated logout control rather than a URL, since the
// application requires a POST. The control is waited for on its own timeout.
// It succeeds once the authenticated marker is gone and a way back to the
// login form is shown.
func (a *Authenticated) Logout(ctx context.Context) (*Anonymous, error) {
	f := a.flow
	if err := f.enter(StepLogout, a.gen); err != nil {
		return nil, err
	}
	site := f.site

	var opts []browser.CallOption
	if f.logoutTimeout > 0 {
		opts = append(opts, browser.WithTimeout(f.logoutTimeout))
	}
	if err := f.sess.Click(ctx, site.LogoutControl, opts...); err != nil {
		return nil, f.fail(ctx, StepLogout, ErrLogoutFailed, "", err)
	}
	if _, err := f.sess.Await(ctx, wait.All(wait.Absent(site.AuthMarker), wait.Present(site.LoginEntry))); err != nil {
		return nil, f.fail(ctx, StepLogout, ErrLogoutFailed, "", err)
	}

	gen := f.transition(StateAnonymous, Credential{})
	f.logger.Info("Logged out", zap.String("step", StepLogout), zap.String("username", a.identity.Username))
	return &Anonymous{flow: f, gen: gen}, nil
}

// CreateUser adds cred through the add form, then opens the created record
// and sets exactly the requested flags on it.
func (a *Authenticated) CreateUser(ctx context.Context, cred Credential, flags ...Flag) error {
	f := a.flow
	if err := a.requireSuperuser(StepCreateUser); err != nil {
		return err
	}
	site := f.site

	if err := f.sess.Navigate(ctx, site.AddUserPath); err != nil {
		return f.fail(ctx, StepCreateUser, ErrCreationFailed, "", err)
	}
	err := f.fillAll(ctx, []field{
		{site.NewUsername, cred.Username},
		{site.NewPassword1, cred.Password},
		{site.NewPassword2, cred.Password},
	})
	if err != nil {
		return f.fail(ctx, StepCreateUser, ErrCreationFailed, "", err)
	}
	if err := f.sess.Click(ctx, site.SaveButton); err != nil {
		return f.fail(ctx, StepCreateUser, ErrCreationFailed, "", err)
	}

	idx, err := f.sess.AwaitAny(ctx, []wait.Condition{
		wait.All(wait.Absent(site.NewPassword1), wait.Present(site.SuccessMessage)),
		wait.Present(site.ErrorNote),
	})
	if err != nil {
		return f.fail(ctx, StepCreateUser, ErrCreationFailed, "", err)
	}
	if idx == 1 {
		return f.fail(ctx, StepCreateUser, ErrCreationFailed, ReasonRejected, f.errorNote(ctx))
	}

	// The add form redirects to the change form of the new record.
	record, err := f.sess.Location(ctx)
	if err != nil {
		return f.fail(ctx, StepCreateUser, ErrCreationFailed, "", err)
	}
	f.logger.Info("User created", zap.String("step", StepCreateUser), zap.String("username", cred.Username), zap.String("record", record))

	if _, err := a.SetPermissions(ctx, record, flags...); err != nil {
		return err
	}
	return nil
}

// SetPermissions opens the user change form at record and reconciles the
// managed flags: requested ones checked, the rest unchecked. Each checkbox is
// read before it is clicked, and nothing is saved when all already match. It
// reports how many checkboxes were toggled.
func (a *Authenticated) SetPermissions(ctx context.Context, record string, flags ...Flag) (int, error) {
	f := a.flow
	if err := a.requireSuperuser(StepSetPermissions); err != nil {
		return 0, err
	}
	site := f.site

	managed := slices.Clone(site.ManagedFlags)
	for _, fl := range flags {
		if !slices.Contains(managed, fl) {
			managed = append(managed, fl)
		}
	}

	if err := f.sess.Navigate(ctx, record); err != nil {
		return 0, f.fail(ctx, StepSetPermissions, ErrCreationFailed, "", err)
	}

	toggled := 0
	for _, fl := range managed {
		loc := site.FlagLocator(fl)
		want := slices.Contains(flags, fl)
		got, err := f.sess.Checked(ctx, loc)
		if err != nil {
			return toggled, f.fail(ctx, StepSetPermissions, ErrCreationFailed, "", err)
		}
		if got == want {
			continue
		}
		if err := f.sess.Click(ctx, loc); err != nil {
			return toggled, f.fail(ctx, StepSetPermissions, ErrCreationFailed, "", err)
		}
		toggled++
		if got, err = f.sess.Checked(ctx, loc); err != nil || got != want {
			if err == nil {
				err = fmt.Errorf("%s did not toggle", fl)
			}
			return toggled, f.fail(ctx, StepSetPermissions, ErrCreationFailed, "", err)
		}
	}

	if toggled == 0 {
		f.logger.Debug("Permissions already match", zap.String("step", StepSetPermissions), zap.String("record", record))
		return 0, nil
	}

	if err := f.sess.Click(ctx, site.SaveButton); err != nil {
		return toggled, f.fail(ctx, StepSetPermissions, ErrCreationFailed, "", err)
	}
	idx, err := f.sess.AwaitAny(ctx, []wait.Condition{
		wait.All(wait.Absent(site.FlagLocator(managed[0])), wait.Present(site.SuccessMessage)),
		wait.Present(site.ErrorNote),
	})
	if err != nil {
		return toggled, f.fail(ctx, StepSetPermissions, ErrCreationFailed, "", err)
	}
	if idx == 1 {
		return toggled, f.fail(ctx, StepSetPermissions, ErrCreationFailed, ReasonRejected, f.errorNote(ctx))
	}

	f.logger.Info("Permissions saved", zap.String("step", StepSetPermissions), zap.String("record", record), zap.Int("toggled", toggled))
	return toggled, nil
}

// ExpectMarker checks that the current identity is shown loc.
func (a *Authenticated) ExpectMarker(ctx context.Context, loc dom.Locator) error {
	f := a.flow
	if err := f.enter(StepExpectMarker, a.gen); err != nil {
		return err
	}
	if _, err := f.sess.Find(ctx, loc); err != nil {
		return f.fail(ctx, StepExpectMarker, ErrAccessDenied, "", err)
	}
	return nil
}

// ChangePassword changes the identity's own password. The change counts only
// once the confirmation text appears. A form re-shown with an error note is a
// rejection and is reported without a timeout cause. The returned handle
// carries the new password and supersedes a.
func (a *Authenticated) ChangePassword(ctx context.Context, oldPassword, newPassword string) (*Authenticated, error) {
	f := a.flow
	if err := f.enter(StepChangePassword, a.gen); err != nil {
		return nil, err
	}
	site := f.site

	if err := f.sess.Navigate(ctx, site.PasswordChangePath); err != nil {
		return nil, f.fail(ctx, StepChangePassword, ErrPasswordChangeFailed, "", err)
	}
	err := f.fillAll(ctx, []field{
		{site.OldPassword, oldPassword},
		{site.NewPassword, newPassword},
		{site.ConfirmPassword, newPassword},
	})
	if err != nil {
		return nil, f.fail(ctx, StepChangePassword, ErrPasswordChangeFailed, "", err)
	}
	if err := f.sess.Click(ctx, site.PasswordChangeSubmit); err != nil {
		return nil, f.fail(ctx, StepChangePassword, ErrPasswordChangeFailed, "", err)
	}

	idx, err := f.sess.AwaitAny(ctx, []wait.Condition{
		wait.TextPresent(site.PasswordChangedText),
		wait.Present(site.ErrorNote),
	})
	if err != nil {
		return nil, f.fail(ctx, StepChangePassword, ErrPasswordChangeFailed, "", err)
	}
	if idx == 1 {
		return nil, f.fail(ctx, StepChangePassword, ErrPasswordChangeFailed, ReasonRejected, f.errorNote(ctx))
	}

	identity := a.identity.WithPassword(newPassword)
	gen := f.transition(StateAuthenticated, identity)
	f.logger.Info("Password changed", zap.String("step", StepChangePassword), zap.String("username", identity.Username))
	return &Authenticated{flow: f, gen: gen, identity: identity}, nil
}

func (a *Authenticated) requireSuperuser(step string) error {
	if err := a.flow.enter(step, a.gen); err != nil {
		return err
	}
	if !a.identity.Superuser {
		return &StepError{
			Step:   step,
			Kind:   ErrIllegalTransition,
			Reason: fmt.Sprintf("%s is not a superuser", a.identity.Username),
		}
	}
	return nil
}
