package execution

import (
	"context"
	"time"

	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
)

// StatusFunc performs one status query for a submitted task. Errors are
// treated as transient and consume an attempt; the poller never aborts on a
// single failed read.
type StatusFunc func(ctx context.Context) (Status, error)

// PollOptions bound the polling loop. The budget is a timeout mechanism, not
// cancellation: an exhausted budget stops waiting but revokes nothing.
type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

func DefaultPollOptions() PollOptions {
	return PollOptions{MaxAttempts: 12, Interval: 5 * time.Second}
}

// AwaitTerminal queries status until a terminal state or the attempt budget is
// exhausted. Budget exhaustion yields StateExpired with the last observed
// snapshot attached, so the caller can re-check independently. Attempts are
// separated by the configured interval; there is no busy loop.
func AwaitTerminal(ctx context.Context, query StatusFunc, opts PollOptions) (Status, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	last := Status{State: StatePending}
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return last, clierr.Wrap(clierr.CodeTimeout, "status polling cancelled", ctx.Err())
			case <-time.After(opts.Interval):
			}
		}
		status, err := query(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return last, clierr.Wrap(clierr.CodeTimeout, "status polling cancelled", ctx.Err())
			}
			// Transient query failure; spend the attempt and keep going.
			continue
		}
		last = status
		if status.State.Terminal() {
			return status, nil
		}
	}
	last.State = StateExpired
	return last, nil
}
