// Package poll implements a fixed-interval wait loop for asynchronous
// remote operations: keep running a status check until it reports the
// target state or a wall-clock deadline passes.
package poll

import (
	gocontext "context"
	"time"

	"github.com/stackhand/novactl/context"
)

const (
	// DefaultInterval is the sleep between successive status checks.
	DefaultInterval = 1 * time.Second

	// DefaultTimeout is the wall-clock budget for reaching the target
	// state.
	DefaultTimeout = 300 * time.Second
)

// CheckFunc queries the current state of a remote resource. An error means
// the resource was not queryable on this attempt, not that the wait has
// failed.
type CheckFunc[S any] func() (S, error)

// TargetFunc reports whether an observed state is the one being waited
// for.
type TargetFunc[S any] func(S) bool

// Opts configures a single Until invocation.
type Opts struct {
	// Name labels log entries for this wait, e.g. "volume-attach".
	Name string

	// Timeout is the wall-clock deadline, measured from the first check.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// Interval is the sleep between checks. Zero means DefaultInterval.
	Interval time.Duration
}

// Outcome is the final result of a wait: either the state that satisfied
// the target predicate, or a timeout marker. A timeout is a value, not an
// error — it means the operation's final status is unknown, not that the
// operation failed.
type Outcome[S any] struct {
	state S
	ready bool
}

// Ready returns the observed target state and true if the wait succeeded.
func (o Outcome[S]) Ready() (S, bool) {
	return o.state, o.ready
}

// TimedOut reports whether the wait gave up before observing the target
// state.
func (o Outcome[S]) TimedOut() bool {
	return !o.ready
}

// Until invokes check until isTarget accepts its result or the timeout
// elapses. Check errors are absorbed and retried: a resource is often not
// queryable immediately after the mutating call that created it.
//
// The deadline is only consulted after the sleep that follows a failed
// attempt, so a slow check can overshoot the timeout by up to one interval
// plus one check round-trip. A cancelled context ends the wait with the
// timed-out outcome.
func Until[S any](ctx gocontext.Context, check CheckFunc[S], isTarget TargetFunc[S], opts Opts) Outcome[S] {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	logger := context.LoggerFromContext(ctx).WithField("self", "poll")
	if opts.Name != "" {
		logger = logger.WithField("op", opts.Name)
	}

	start := time.Now()
	attempt := 0
	for {
		attempt++

		state, err := check()
		if err == nil && isTarget(state) {
			return Outcome[S]{state: state, ready: true}
		}
		if err != nil {
			logger.WithField("err", err).Debug("state not yet available")
		}

		select {
		case <-ctx.Done():
			logger.Warn("context done while waiting for target state, giving up")
			return Outcome[S]{}
		case <-time.After(opts.Interval):
		}

		if time.Since(start) > opts.Timeout {
			logger.WithField("timeout", opts.Timeout).Error("timed out while waiting for target state")
			return Outcome[S]{}
		}

		logger.WithField("attempt", attempt).Debug("retrying status check")
	}
}
