package main

import (
	"errors"
	"testing"

	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/provision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(&failedError{step: "logout_admin"}))
	assert.Equal(t, 2, exitCode(errors.New("chrome not found")))
}

func TestNewProvisioner(t *testing.T) {
	cfg := &config.Config{}
	prov, err := newProvisioner(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, provision.Noop{}, prov)

	cfg.Provision.Command = "python manage.py createsuperuser --noinput"
	prov, err = newProvisioner(cfg, zap.NewNop())
	require.NoError(t, err)
	cmd, ok := prov.(*provision.Command)
	require.True(t, ok)
	assert.Equal(t, []string{"python", "manage.py", "createsuperuser", "--noinput"}, cmd.Args())

	cfg.Provision.Command = `python "unterminated`
	_, err = newProvisioner(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "verify"} {
		assert.True(t, names[want], want)
	}
}
