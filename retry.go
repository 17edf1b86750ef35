package runner

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// relayPollBackOff retries relay.GetTask once a second for the first 30
// attempts (covering the common case where the task record is written to
// the relay microseconds after the on-chain event fires) and then falls
// back to a 10s interval, bounded by maxElapsed overall. Grounded on
// task_runner.py's wait_chain(stop_after_attempt(30) | wait_fixed(1),
// wait_fixed(10)) retry policy for the same call.
type relayPollBackOff struct {
	attempt     int
	fastAttempts int
	fast        time.Duration
	slow        time.Duration
}

func newRelayPollBackOff() *relayPollBackOff {
	return &relayPollBackOff{fastAttempts: 30, fast: time.Second, slow: 10 * time.Second}
}

func (b *relayPollBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt <= b.fastAttempts {
		return b.fast
	}
	return b.slow
}

func (b *relayPollBackOff) Reset() { b.attempt = 0 }

// isTransientRelayError reports whether err is a RelayError indicating the
// task record is not yet visible to the relay — the only condition under
// which GetTask is retried (spec.md §4.2/§7).
func isTransientRelayError(err error) bool {
	rerr, ok := err.(*RelayError)
	if !ok {
		return false
	}
	return rerr.Message == "Task not found" || rerr.Message == "Task not ready"
}

// pollGetTask fetches the task args from the relay, retrying on the
// transient conditions above for up to maxElapsed total.
func pollGetTask(ctx context.Context, relay RelayClient, taskID uint64, maxElapsed time.Duration) (TaskArgs, error) {
	var args TaskArgs
	bo := backoff.WithContext(backoff.WithMaxElapsedTime(newRelayPollBackOff(), maxElapsed), ctx)

	op := func() error {
		a, err := relay.GetTask(ctx, taskID)
		if err != nil {
			if isTransientRelayError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		args = a
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return TaskArgs{}, err
	}
	return args, nil
}
