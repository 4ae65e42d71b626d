package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/copyleftdev/scryflow/internal/dom"
)

var (
	ErrLoginFailed          = errors.New("login failed")
	ErrLogoutFailed         = errors.New("logout failed")
	ErrCreationFailed       = errors.New("user creation failed")
	ErrPasswordChangeFailed = errors.New("password change failed")
	ErrAccessDenied         = errors.New("access marker not shown")
	ErrIllegalTransition    = errors.New("illegal state transition")
)

// Failure reasons recorded in StepError.Reason.
const (
	ReasonTimeout  = "timeout"
	ReasonRejected = "rejected"
	ReasonStale    = "stale element"
)

// StepError is the failure of one workflow step. It matches both its Kind
// and, through Err, the underlying cause:
//
//	errors.Is(err, workflow.ErrLogoutFailed)   // the transition that broke
//	errors.Is(err, wait.ErrElementNotFound)    // why
type StepError struct {
	Step      string
	Kind      error
	Condition string
	Reason    string
	Snapshot  *dom.Snapshot
	Err       error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Step, e.Kind)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
