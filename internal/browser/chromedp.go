package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/dom"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Launcher starts one Chrome process per session from a shared allocator and
// caps how many run at once.
type Launcher struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	cfg             *config.BrowserConfig
	logger          *zap.Logger
	sem             *semaphore.Weighted
	activeCtxWg     sync.WaitGroup
}

func NewLauncher(cfg *config.BrowserConfig, logger *zap.Logger) (*Launcher, error) {
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("browser.maxSessions must be at least 1, got %d", cfg.MaxSessions)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.IgnoreCertErrors,
	)

	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	} else {
		opts = append(opts, chromedp.Flag("guest", true))
	}

	allocatorCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Launcher{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: cancel,
		cfg:             cfg,
		logger:          logger,
		sem:             semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}, nil
}

// Open starts a fresh tab with no cookies and wraps it in a Session. The
// session must be closed to release its slot.
func (l *Launcher) Open(ctx context.Context, opts SessionOptions) (*Session, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire browser slot: %w", err)
	}
	l.activeCtxWg.Add(1)

	sugar := l.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(l.allocatorCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	var once sync.Once
	release := func() {
		once.Do(func() {
			tabCancel()
			l.sem.Release(1)
			l.activeCtxWg.Done()
		})
	}

	page := &cdpPage{tabCtx: tabCtx, close: release}
	// The first run allocates the browser and binds it to the context it is
	// given, so it must run on tabCtx itself and never on a derived context.
	// Clearing cookies keeps the session anonymous even with a persistent
	// profile. ctx can still abort the start by closing the tab.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx, network.ClearBrowserCookies())
	if !stop() {
		release()
		return nil, fmt.Errorf("failed to start browser tab: %w", ctx.Err())
	}
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to start browser tab: %w", classify(err))
	}

	if target := chromedp.FromContext(tabCtx); target != nil && target.Target != nil {
		l.logger.Debug("Browser tab opened", zap.String("target_id", target.Target.TargetID.String()))
	}

	s, err := NewSession(page, opts, l.logger)
	if err != nil {
		release()
		return nil, err
	}
	return s, nil
}

// Verify loads url in a throwaway tab and reports what the browser saw.
func (l *Launcher) Verify(ctx context.Context, url string) (map[string]interface{}, error) {
	s, err := l.Open(ctx, SessionOptions{BaseURL: url})
	if err != nil {
		return nil, err
	}
	defer s.Close(ctx)

	page, ok := s.page.(*cdpPage)
	if !ok {
		return nil, fmt.Errorf("session page is %T, not a browser tab", s.page)
	}
	result := make(map[string]interface{})
	if err := page.run(ctx, dom.VerifyBrowserAction(url, result)); err != nil {
		return nil, err
	}
	return result, nil
}

// Shutdown cancels the allocator and waits for open sessions to be released.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.logger.Info("Shutting down browser launcher")

	shutdownComplete := make(chan struct{})
	go func() {
		l.activeCtxWg.Wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		l.logger.Info("All browser sessions have been released")
	case <-ctx.Done():
		l.logger.Warn("Shutdown timeout reached while waiting for browser sessions")
		l.allocatorCancel()
		return ctx.Err()
	}

	l.allocatorCancel()
	l.logger.Info("Browser launcher shutdown complete")
	return nil
}
