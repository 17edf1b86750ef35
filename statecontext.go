package runner

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// stateContext owns the single TaskState record for a runner and is the
// only place the record is ever mutated. Every exit from withState — normal
// return, mutator error, or panic — persists the new state to the cache
// under a shielded timeout (detached from any caller context, per spec.md
// §4.4) and then wakes every waitForStatus waiter. This mirrors the
// source's asynccontextmanager state_context/_state_condition pair; Go has
// no equivalent to anyio's fail_after(shield=True), so the shield is
// synthesized by rooting the persistence timeout in context.Background()
// rather than the context the caller happened to pass in.
type stateContext struct {
	mu     sync.Mutex
	state  TaskState
	waitCh chan struct{}

	// update serializes withState calls so concurrent mutations never
	// overwrite each other.
	update sync.Mutex

	cache       StateCache
	drainWindow time.Duration
}

func newStateContext(cache StateCache, drainWindow time.Duration, initial TaskState) *stateContext {
	return &stateContext{
		state:       initial,
		waitCh:      make(chan struct{}),
		cache:       cache,
		drainWindow: drainWindow,
	}
}

// get returns a snapshot of the current state.
func (s *stateContext) get() TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// withState runs mutate against a mutable copy of the state, installs the
// result, persists it under a shielded timeout, and broadcasts to
// waitForStatus callers — in that order, regardless of how mutate exits. The
// persist-and-broadcast step runs from a defer so it still executes if
// mutate panics: the defer runs during the unwind before the panic
// propagates out of withState.
func (s *stateContext) withState(mutate func(*TaskState) error) (mutateErr error) {
	s.update.Lock()
	defer s.update.Unlock()

	s.mu.Lock()
	next := s.state
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state = next
		s.mu.Unlock()

		persistCtx, cancel := context.WithTimeout(context.Background(), s.drainWindow)
		dumpErr := s.cache.Dump(persistCtx, next)
		cancel()

		s.mu.Lock()
		close(s.waitCh)
		s.waitCh = make(chan struct{})
		s.mu.Unlock()

		if mutateErr == nil {
			mutateErr = dumpErr
		}
	}()

	return mutate(&next)
}

// waitForStatus blocks until the state's Status equals want, ctx is done, or
// the task reaches a terminal status other than want — the last case means
// some concurrent handler has already resolved the task (typically
// StatusAborted arriving out of order ahead of want's predecessor event), so
// want can never be reached and the caller must give up rather than block
// until the whole-task deadline.
func (s *stateContext) waitForStatus(ctx context.Context, want Status) error {
	for {
		s.mu.Lock()
		cur := s.state.Status
		ch := s.waitCh
		s.mu.Unlock()

		if cur == want {
			return nil
		}
		if cur.IsTerminal() {
			return fmt.Errorf("%s: task reached %s while waiting for %s", Namespace, cur, want)
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitForTerminal blocks until the state's Status is terminal or ctx is done.
func (s *stateContext) waitForTerminal(ctx context.Context) error {
	for {
		s.mu.Lock()
		cur := s.state.Status
		ch := s.waitCh
		s.mu.Unlock()

		if cur.IsTerminal() {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
