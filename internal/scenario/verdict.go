package scenario

import (
	"errors"
	"time"

	"github.com/copyleftdev/scryflow/internal/dom"
	"github.com/copyleftdev/scryflow/internal/workflow"
)

type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// StepRecord is the timing and outcome of one step.
type StepRecord struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Verdict is the binary outcome of a run. A failed verdict names the step
// that broke, the condition it was waiting for and what the page looked like.
type Verdict struct {
	RunID      string        `json:"run_id"`
	Status     Status        `json:"status"`
	Steps      []StepRecord  `json:"steps"`
	FailedStep string        `json:"failed_step,omitempty"`
	Condition  string        `json:"condition,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	Snapshot   *dom.Snapshot `json:"snapshot,omitempty"`
	Artifacts  []string      `json:"artifacts,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	// Err is the failure itself, for errors.Is checks.
	Err error `json:"-"`
}

func (v *Verdict) Passed() bool { return v.Status == StatusPass }

func (v *Verdict) fail(step string, err error) {
	v.Status = StatusFail
	v.FailedStep = step
	v.Err = err
	v.Error = err.Error()

	var se *workflow.StepError
	if errors.As(err, &se) {
		v.Condition = se.Condition
		v.Reason = se.Reason
		v.Snapshot = se.Snapshot
	}
}
