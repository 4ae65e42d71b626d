// Package wait polls a remote page until a condition holds or a bounded
// timeout elapses. A single call is one bounded wait; callers compose waits
// for multi-stage conditions.
package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/copyleftdev/scryflow/internal/dom"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// ErrElementNotFound is matched by every *NotFoundError.
var ErrElementNotFound = errors.New("element not found")

// Options bound a single wait.
type Options struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// NotFoundError is returned when a condition was not met within the timeout.
type NotFoundError struct {
	Condition string
	Timeout   time.Duration
	Elapsed   time.Duration
	Snapshot  *dom.Snapshot
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s (waited %s of %s)", e.Condition, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrElementNotFound }

// Until waits for cond and returns the element it matched, if any.
func Until(ctx context.Context, p dom.Page, cond Condition, opts Options) (dom.Element, error) {
	_, el, err := UntilAny(ctx, p, opts, cond)
	return el, err
}

// UntilAny waits until one of conds holds and reports which one. Conditions
// are checked in order on every poll, so earlier conditions win ties.
func UntilAny(ctx context.Context, p dom.Page, opts Options, conds ...Condition) (int, dom.Element, error) {
	if len(conds) == 0 {
		return -1, nil, errors.New("wait: no conditions given")
	}
	opts = opts.withDefaults()
	start := time.Now()
	deadline := start.Add(opts.Timeout + opts.PollInterval)

	// The hard bound covers a check that hangs on the remote side, and the
	// failure snapshot.
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		for i, cond := range conds {
			el, ok, err := cond.Check(waitCtx, p)
			if err != nil && !transient(err) {
				if waitCtx.Err() != nil && ctx.Err() == nil {
					break
				}
				return -1, nil, fmt.Errorf("checking %s: %w", cond, err)
			}
			if ok {
				return i, el, nil
			}
		}

		elapsed := time.Since(start)
		if elapsed >= opts.Timeout || waitCtx.Err() != nil {
			if ctx.Err() != nil {
				return -1, nil, ctx.Err()
			}
			return -1, nil, &NotFoundError{
				Condition: describe(conds),
				Timeout:   opts.Timeout,
				Elapsed:   elapsed,
				Snapshot:  dom.CaptureUntil(ctx, p, deadline),
			}
		}

		next := opts.PollInterval
		if remaining := opts.Timeout - elapsed; remaining < next {
			next = remaining
		}
		timer.Reset(next)
		select {
		case <-waitCtx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func describe(conds []Condition) string {
	if len(conds) == 1 {
		return conds[0].String()
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return "any of (" + strings.Join(parts, "; ") + ")"
}
