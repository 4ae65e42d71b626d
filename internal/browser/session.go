package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/copyleftdev/scryflow/internal/dom"
	"github.com/copyleftdev/scryflow/internal/wait"
	"go.uber.org/zap"
)

var ErrSessionClosed = errors.New("browser session is closed")

type SessionOptions struct {
	BaseURL string
	Wait    wait.Options
}

// CallOption overrides the session's wait options for a single call.
type CallOption func(*wait.Options)

func WithTimeout(d time.Duration) CallOption {
	return func(o *wait.Options) { o.Timeout = d }
}

func WithPollInterval(d time.Duration) CallOption {
	return func(o *wait.Options) { o.PollInterval = d }
}

// Session is a single-owner handle on one browser page. Every interaction
// waits explicitly for its target with a bounded wait, then mutates the page.
// Element handles are never kept between calls, so nothing survives a
// navigation. Failures are returned as-is; this layer never retries, since a
// retried click can submit a form twice.
type Session struct {
	page    dom.Page
	baseURL *url.URL
	wait    wait.Options
	logger  *zap.Logger

	mu     sync.Mutex
	epoch  int
	closed bool
}

func NewSession(page dom.Page, opts SessionOptions, logger *zap.Logger) (*Session, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base URL %q must be absolute", opts.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		page:    page,
		baseURL: base,
		wait:    opts.Wait,
		logger:  logger,
	}, nil
}

// URL resolves ref against the session's base URL.
func (s *Session) URL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return s.baseURL.String() + ref
	}
	return s.baseURL.ResolveReference(u).String()
}

func (s *Session) options(opts []CallOption) wait.Options {
	o := s.wait
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (s *Session) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// Alive reports whether the session has not been closed.
func (s *Session) Alive() bool { return s.live() == nil }

// Epoch counts navigations. Any element obtained in an earlier epoch must be
// considered invalid.
func (s *Session) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Navigate loads ref, relative to the base URL unless absolute.
func (s *Session) Navigate(ctx context.Context, ref string) error {
	if err := s.live(); err != nil {
		return err
	}
	target := s.URL(ref)
	s.logger.Debug("Navigating", zap.String("url", target))

	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()

	if err := s.page.Navigate(ctx, target); err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}
	return nil
}

// Await blocks until cond holds, using the session's wait options unless
// overridden.
func (s *Session) Await(ctx context.Context, cond wait.Condition, opts ...CallOption) (dom.Element, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	return wait.Until(ctx, s.page, cond, s.options(opts))
}

// AwaitAny blocks until one of conds holds and returns its index.
func (s *Session) AwaitAny(ctx context.Context, conds []wait.Condition, opts ...CallOption) (int, error) {
	if err := s.live(); err != nil {
		return -1, err
	}
	idx, _, err := wait.UntilAny(ctx, s.page, s.options(opts), conds...)
	return idx, err
}

// Find waits for an element matching loc to be present.
func (s *Session) Find(ctx context.Context, loc dom.Locator, opts ...CallOption) (dom.Element, error) {
	return s.Await(ctx, wait.Present(loc), opts...)
}

// Fill waits for loc to be visible, clears it and types value.
func (s *Session) Fill(ctx context.Context, loc dom.Locator, value string, opts ...CallOption) error {
	el, err := s.Await(ctx, wait.Visible(loc), opts...)
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", loc, err)
	}
	if err := el.SendKeys(ctx, value); err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

// Click waits for loc to be clickable and clicks it once.
func (s *Session) Click(ctx context.Context, loc dom.Locator, opts ...CallOption) error {
	el, err := s.Await(ctx, wait.Clickable(loc), opts...)
	if err != nil {
		return err
	}
	s.logger.Debug("Clicking", zap.Stringer("locator", loc))
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// Checked waits for loc to be present and reports its checked state.
func (s *Session) Checked(ctx context.Context, loc dom.Locator, opts ...CallOption) (bool, error) {
	el, err := s.Find(ctx, loc, opts...)
	if err != nil {
		return false, err
	}
	checked, err := el.Checked(ctx)
	if err != nil {
		return false, fmt.Errorf("read checked state of %s: %w", loc, err)
	}
	return checked, nil
}

func (s *Session) Location(ctx context.Context) (string, error) {
	if err := s.live(); err != nil {
		return "", err
	}
	return s.page.Location(ctx)
}

// Snapshot captures the current page for diagnosis.
func (s *Session) Snapshot(ctx context.Context) *dom.Snapshot {
	return dom.Capture(ctx, s.page)
}

// Close releases the page. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session")
	return s.page.Close(ctx)
}
