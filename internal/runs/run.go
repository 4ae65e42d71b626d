package runs

import (
	"time"

	"github.com/copyleftdev/scryflow/internal/scenario"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Done reports whether the run reached a final status.
func (s Status) Done() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusCancelled
}

// Run is one scenario execution requested through the API.
type Run struct {
	ID          uuid.UUID         `json:"id"`
	Status      Status            `json:"status"`
	Plan        scenario.Plan     `json:"plan"`
	Verdict     *scenario.Verdict `json:"verdict,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func NewRun(plan scenario.Plan, callback string) *Run {
	id := uuid.New()
	plan.RunID = id.String()
	now := time.Now().UTC()
	return &Run{
		ID:          id,
		Status:      StatusPending,
		Plan:        plan,
		CallbackURL: callback,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// UpdateStatus should be called with the manager's lock held.
func (r *Run) UpdateStatus(status Status) {
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
}
