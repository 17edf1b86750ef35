package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateContextWithStatePersistsAndBroadcasts(t *testing.T) {
	cache := newMockStateCache()
	sc := newStateContext(cache, time.Second, TaskState{TaskID: 1, Status: StatusPending})

	done := make(chan error, 1)
	go func() {
		done <- sc.waitForStatus(context.Background(), StatusExecuting)
	}()

	time.Sleep(10 * time.Millisecond)

	err := sc.withState(func(s *TaskState) error {
		s.Status = StatusExecuting
		return nil
	})
	require.NoError(t, err)

	select {
	case waitErr := <-done:
		require.NoError(t, waitErr)
	case <-time.After(time.Second):
		t.Fatal("waitForStatus did not observe the transition")
	}

	persisted, err := cache.Load(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusExecuting, persisted.Status)
}

func TestStateContextWaitForStatusHonorsCancellation(t *testing.T) {
	cache := newMockStateCache()
	sc := newStateContext(cache, time.Second, TaskState{TaskID: 1, Status: StatusPending})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := sc.waitForStatus(ctx, StatusExecuting)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStateContextWaitForStatusFailsFastOnOtherTerminalStatus(t *testing.T) {
	cache := newMockStateCache()
	sc := newStateContext(cache, time.Second, TaskState{TaskID: 1, Status: StatusResultUploaded})

	done := make(chan error, 1)
	go func() {
		done <- sc.waitForStatus(context.Background(), StatusDisclosed)
	}()
	time.Sleep(10 * time.Millisecond)

	// The task resolves to Aborted instead of ever reaching Disclosed — the
	// waiter must give up immediately rather than block until ctx.Done(),
	// since Disclosed can now never arrive.
	require.NoError(t, sc.withState(func(s *TaskState) error {
		s.Status = StatusAborted
		return nil
	}))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitForStatus blocked past a terminal status it was not waiting for")
	}
}

func TestStateContextWaitForTerminalBlocksUntilTerminal(t *testing.T) {
	cache := newMockStateCache()
	sc := newStateContext(cache, time.Second, TaskState{TaskID: 1, Status: StatusExecuting})

	done := make(chan error, 1)
	go func() { done <- sc.waitForTerminal(context.Background()) }()

	select {
	case <-done:
		t.Fatal("waitForTerminal returned before the task reached a terminal status")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, sc.withState(func(s *TaskState) error {
		s.Status = StatusSuccess
		return nil
	}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitForTerminal did not observe the terminal transition")
	}
}

func TestStateContextPersistsEvenWhenMutateErrors(t *testing.T) {
	cache := newMockStateCache()
	sc := newStateContext(cache, time.Second, TaskState{TaskID: 1, Status: StatusPending})

	sentinel := ErrTaskInvalid
	err := sc.withState(func(s *TaskState) error {
		s.Round = 9
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	persisted, loadErr := cache.Load(context.Background(), 1)
	require.NoError(t, loadErr)
	require.Equal(t, uint32(9), persisted.Round)
}

func TestStateContextPersistsEvenWhenMutatePanics(t *testing.T) {
	cache := newMockStateCache()
	sc := newStateContext(cache, time.Second, TaskState{TaskID: 1, Status: StatusPending})

	func() {
		defer func() { _ = recover() }()
		_ = sc.withState(func(s *TaskState) error {
			s.Round = 5
			panic("boom")
		})
	}()

	persisted, err := cache.Load(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint32(5), persisted.Round, "state mutated before a panic must still be persisted")
}
