package provision

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = workflow.Credential{Username: "isard", Password: "pirineus", Email: "admin@example.com"}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestNewCommand_Parses(t *testing.T) {
	cmd, err := NewCommand(config.ProvisionConfig{Command: `python manage.py createsuperuser --noinput --settings "app.settings dev"`}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "manage.py", "createsuperuser", "--noinput", "--settings", "app.settings dev"}, cmd.Args())

	_, err = NewCommand(config.ProvisionConfig{Command: "   "}, nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = NewCommand(config.ProvisionConfig{Command: `echo "unterminated`}, nil)
	assert.Error(t, err)
}

func TestCommand_ExportsCredential(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	cmd, err := NewCommand(config.ProvisionConfig{
		Command: `sh -c 'echo "$DJANGO_SUPERUSER_USERNAME:$DJANGO_SUPERUSER_EMAIL:$DJANGO_SUPERUSER_PASSWORD" > seeded'`,
		Dir:     dir,
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, cmd.Provision(context.Background(), admin))
	data, err := os.ReadFile(filepath.Join(dir, "seeded"))
	require.NoError(t, err)
	assert.Equal(t, "isard:admin@example.com:pirineus\n", string(data))
}

func TestCommand_ExistingAccountIsFine(t *testing.T) {
	requireShell(t)
	cmd, err := NewCommand(config.ProvisionConfig{
		Command: `sh -c 'echo "CommandError: Error: That username is already taken." >&2; exit 1'`,
	}, nil)
	require.NoError(t, err)
	assert.NoError(t, cmd.Provision(context.Background(), admin))
}

func TestCommand_Failure(t *testing.T) {
	requireShell(t)
	cmd, err := NewCommand(config.ProvisionConfig{Command: `sh -c 'echo "no such table: auth_user" >&2; exit 3'`}, nil)
	require.NoError(t, err)

	err = cmd.Provision(context.Background(), admin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table: auth_user")
}

func TestCommand_Timeout(t *testing.T) {
	requireShell(t)
	cmd, err := NewCommand(config.ProvisionConfig{Command: "sleep 5", Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	err = cmd.Provision(context.Background(), admin)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Provision(context.Background(), admin))
}
