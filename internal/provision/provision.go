// Package provision seeds the administrative account a scenario logs in
// with, before any browser work starts.
package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/workflow"
	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

var ErrEmptyCommand = errors.New("provisioning command is empty")

// Output Django prints when createsuperuser finds the account in place.
var alreadyProvisioned = []string{
	"That username is already taken",
	"already exists",
}

// Noop is for applications whose admin account is seeded elsewhere.
type Noop struct{}

func (Noop) Provision(context.Context, workflow.Credential) error { return nil }

// Command runs a command line such as
// "python manage.py createsuperuser --noinput" with the credential exported
// as DJANGO_SUPERUSER_USERNAME, DJANGO_SUPERUSER_EMAIL and
// DJANGO_SUPERUSER_PASSWORD. An account that already exists is not an error.
type Command struct {
	args    []string
	dir     string
	timeout time.Duration
	logger  *zap.Logger
}

func NewCommand(cfg config.ProvisionConfig, logger *zap.Logger) (*Command, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid provisioning command %q: %w", cfg.Command, err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{args: args, dir: cfg.Dir, timeout: cfg.Timeout, logger: logger}, nil
}

func (c *Command) Args() []string { return append([]string(nil), c.args...) }

func (c *Command) Provision(ctx context.Context, cred workflow.Credential) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(),
		"DJANGO_SUPERUSER_USERNAME="+cred.Username,
		"DJANGO_SUPERUSER_EMAIL="+cred.Email,
		"DJANGO_SUPERUSER_PASSWORD="+cred.Password,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	c.logger.Info("Provisioning admin account", zap.String("username", cred.Username), zap.Strings("command", c.args))
	start := time.Now()
	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		for _, marker := range alreadyProvisioned {
			if strings.Contains(output, marker) {
				c.logger.Info("Admin account already present", zap.String("username", cred.Username))
				return nil
			}
		}
		if ctx.Err() != nil {
			return fmt.Errorf("provisioning %s: %w", cred.Username, ctx.Err())
		}
		return fmt.Errorf("provisioning %s: %w: %s", cred.Username, err, lastLines(output, 5))
	}
	c.logger.Debug("Provisioning finished", zap.Duration("elapsed", time.Since(start)), zap.String("output", output))
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
