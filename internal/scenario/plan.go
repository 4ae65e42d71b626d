package scenario

import (
	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/workflow"
)

// Plan is the input of one scenario run.
type Plan struct {
	// RunID names the run in logs and artifacts. Run assigns one if empty.
	RunID       string              `json:"run_id,omitempty"`
	Admin       workflow.Credential `json:"admin"`
	Staff       workflow.Credential `json:"staff"`
	StaffFlags  []workflow.Flag     `json:"staff_flags"`
	NewPassword string              `json:"-"`
}

// DefaultPlan is the reference scenario against a stock Django admin.
func DefaultPlan() Plan {
	return Plan{
		Admin: workflow.Credential{
			Username:  "isard",
			Password:  "pirineus",
			Email:     "admin@example.com",
			Staff:     true,
			Superuser: true,
		},
		Staff: workflow.Credential{
			Username: "staff",
			Password: "password1_st",
			Staff:    true,
		},
		StaffFlags:  []workflow.Flag{workflow.FlagStaff},
		NewPassword: "NuevaContraseña456!",
	}
}

// PlanFromConfig builds the plan configured under scenario.
func PlanFromConfig(cfg config.ScenarioConfig) Plan {
	plan := DefaultPlan()
	plan.Admin.Username = cfg.Admin.Username
	plan.Admin.Password = cfg.Admin.Password
	plan.Admin.Email = cfg.Admin.Email
	plan.Admin.TOTPSecret = cfg.Admin.TOTPSecret
	plan.Staff.Username = cfg.Staff.Username
	plan.Staff.Password = cfg.Staff.Password
	plan.Staff.Email = cfg.Staff.Email
	plan.Staff.TOTPSecret = cfg.Staff.TOTPSecret
	if cfg.NewPassword != "" {
		plan.NewPassword = cfg.NewPassword
	}
	return plan
}
