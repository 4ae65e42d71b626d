package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/copyleftdev/scryflow/internal/browser"
	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/provision"
	"github.com/copyleftdev/scryflow/internal/report"
	"github.com/copyleftdev/scryflow/internal/runs"
	"github.com/copyleftdev/scryflow/internal/scenario"
	"github.com/copyleftdev/scryflow/internal/server"
	"github.com/copyleftdev/scryflow/internal/wait"
	"github.com/copyleftdev/scryflow/internal/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	runID     string
	servePort int
	verifyURL string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scenario once against target.baseURL",
	Args:  cobra.NoArgs,
	RunE:  runScenario,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Load a page in Chrome and print what the browser saw",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

// newProvisioner returns the configured createsuperuser command, or a no-op
// when the admin account is managed elsewhere.
func newProvisioner(cfg *config.Config, logger *zap.Logger) (scenario.Provisioner, error) {
	cmd, err := provision.NewCommand(cfg.Provision, logger)
	if errors.Is(err, provision.ErrEmptyCommand) {
		logger.Info("No provision command configured, assuming the admin account exists")
		return provision.Noop{}, nil
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func sessionOptions(cfg *config.Config) browser.SessionOptions {
	return browser.SessionOptions{
		BaseURL: cfg.Target.BaseURL,
		Wait:    wait.Options{Timeout: cfg.Wait.Timeout, PollInterval: cfg.Wait.PollInterval},
	}
}

func newRunner(cfg *config.Config, launcher *browser.Launcher, logger *zap.Logger) (*scenario.Runner, error) {
	prov, err := newProvisioner(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := sessionOptions(cfg)
	opener := scenario.OpenerFunc(func(ctx context.Context) (*browser.Session, error) {
		return launcher.Open(ctx, opts)
	})
	return scenario.NewRunner(opener, prov, workflow.DjangoAdmin().WithTarget(cfg.Target), logger,
		scenario.WithLogoutTimeout(cfg.Wait.LogoutTimeout),
		scenario.WithArtifacts(report.NewWriter(cfg.Artifacts.Dir, logger)),
		scenario.WithCloseTimeout(cfg.Browser.ShutdownTimeout),
	), nil
}

func shutdownLauncher(launcher *browser.Launcher, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := launcher.Shutdown(ctx); err != nil {
		logger.Warn("Browser launcher shutdown incomplete", zap.Error(err))
	}
}

func runScenario(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	launcher, err := browser.NewLauncher(&cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer shutdownLauncher(launcher, cfg.Browser.ShutdownTimeout, logger)

	runner, err := newRunner(cfg, launcher, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan := scenario.PlanFromConfig(cfg.Scenario)
	plan.RunID = runID
	verdict := runner.Run(ctx, plan)

	out, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !verdict.Passed() {
		return &failedError{step: verdict.FailedStep}
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	launcher, err := browser.NewLauncher(&cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer shutdownLauncher(launcher, cfg.Browser.ShutdownTimeout, logger)

	runner, err := newRunner(cfg, launcher, logger)
	if err != nil {
		return err
	}
	manager := runs.NewManager(runner, logger.Named("runs"), runs.WithRunTimeout(cfg.Server.RunTimeout))
	srv := server.NewServer(cfg, manager, scenario.PlanFromConfig(cfg.Scenario), logger.Named("server"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Browser.ShutdownTimeout+5*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("run manager shutdown: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	target := verifyURL
	if target == "" {
		target = cfg.Target.BaseURL
	}

	launcher, err := browser.NewLauncher(&cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer shutdownLauncher(launcher, cfg.Browser.ShutdownTimeout, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	logger.Info("Running browser verification", zap.String("url", target))
	result, err := launcher.Verify(ctx, target)
	if err != nil {
		return fmt.Errorf("browser verification failed: %w", err)
	}

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(cmd.OutOrStdout(), "Browser verification passed:")
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s: %v\n", k, result[k])
	}
	return nil
}
