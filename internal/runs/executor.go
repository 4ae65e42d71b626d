package runs

import (
	"context"

	"github.com/copyleftdev/scryflow/internal/scenario"
)

// Executor runs a scenario plan to a verdict. *scenario.Runner implements it.
// Run must honor ctx and never return nil.
type Executor interface {
	Run(ctx context.Context, plan scenario.Plan) *scenario.Verdict
}
