package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crynux-network/taskrunner/metrics"
)

func TestRunnerHappyPathLocalSuccess(t *testing.T) {
	r, chain, watcher, relay := NewMock(1, "demo", t.TempDir())

	chain.tasks[1] = &ChainTask{
		ID:         1,
		Timeout:    time.Now().Add(time.Hour),
		ResultNode: chain.Self(),
	}
	relay.SetArgs(1, TaskArgs{TaskID: 1, Raw: []byte(`{"prompt":"hello"}`)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, r.Init(ctx))

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.state.get().Status == StatusResultUploaded
	}, time.Second, time.Millisecond, "expected commitment submission to reach ResultUploaded")

	watcher.Emit(NewTaskResultCommitmentsReady(1))
	require.Eventually(t, func() bool {
		return r.state.get().Status == StatusDisclosed
	}, time.Second, time.Millisecond, "expected disclosure to reach Disclosed")

	watcher.Emit(NewTaskSuccess(1, chain.Self()))

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after TaskSuccess")
	}

	final := r.state.get()
	require.Equal(t, StatusSuccess, final.Status)
	require.NotEmpty(t, final.Result)
	require.Equal(t, []string{relay.uploads[1][0]}, final.Files)
}

func TestRunnerDeadlineAbortsAndCancelsOnChain(t *testing.T) {
	r, chain, _, relay := NewMock(2, "demo", t.TempDir())

	chain.tasks[2] = &ChainTask{ID: 2, Timeout: time.Now().Add(30 * time.Millisecond)}
	relay.SetArgs(2, TaskArgs{TaskID: 2, Raw: []byte(`{}`)})

	ctx := context.Background()
	require.NoError(t, r.Init(ctx))

	err := r.Run(ctx)
	require.ErrorIs(t, err, ErrDeadlineReached)
	require.Equal(t, StatusAborted, r.state.get().Status)
}

func TestRunnerSkipsWorkAlreadyTerminalOnInit(t *testing.T) {
	r, chain, _, _ := NewMock(3, "demo", t.TempDir())
	chain.tasks[3] = &ChainTask{ID: 3, Timeout: time.Now().Add(time.Hour), Aborted: true}

	ctx := context.Background()
	require.NoError(t, r.Init(ctx))
	require.Equal(t, StatusAborted, r.state.get().Status)

	require.NoError(t, r.Run(ctx))
	require.Empty(t, r.watchIDs, "a terminal Init must not subscribe to chain watches")
}

func TestRunnerReachesSuccessWithOutOfOrderEventDelivery(t *testing.T) {
	r, chain, watcher, relay := NewMock(7, "demo", t.TempDir())
	chain.tasks[7] = &ChainTask{ID: 7, Timeout: time.Now().Add(time.Hour), ResultNode: chain.Self()}
	relay.SetArgs(7, TaskArgs{TaskID: 7, Raw: []byte(`{}`)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Init(ctx))

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.state.get().Status == StatusResultUploaded
	}, time.Second, time.Millisecond)

	// Deliver TaskSuccess before its predecessor TaskResultCommitmentsReady —
	// spec.md §4.2 allows events to arrive in any order (e.g. a redelivered
	// chain log). A single sequential consumer would block forever inside
	// handleTaskSuccess's waitForStatus(StatusDisclosed) here, never calling
	// Recv again to pick up the commitment-ready event that would unblock it.
	watcher.Emit(NewTaskSuccess(7, chain.Self()))
	time.Sleep(20 * time.Millisecond)
	watcher.Emit(NewTaskResultCommitmentsReady(7))

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not reach Success with out-of-order event delivery")
	}

	require.Equal(t, StatusSuccess, r.state.get().Status)
}

func TestInitForcesAbortedWhenChainTaskMissing(t *testing.T) {
	r, _, _, _ := NewMock(8, "demo", t.TempDir())
	// chain has no record for task 8: GetTask returns ErrTaskNotFound.

	require.NoError(t, r.Init(context.Background()))
	require.Equal(t, StatusAborted, r.state.get().Status)
	require.Empty(t, r.watchIDs, "a forced-Aborted Init must not subscribe to chain watches")
}

func TestInitForcesAbortedWhenChainTaskIDMismatches(t *testing.T) {
	r, chain, _, _ := NewMock(9, "demo", t.TempDir())
	// A record is present but reports a different task's ID entirely.
	chain.tasks[9] = &ChainTask{ID: 999, Timeout: time.Now().Add(time.Hour)}

	require.NoError(t, r.Init(context.Background()))
	require.Equal(t, StatusAborted, r.state.get().Status)
}

func TestRunnerEventsProcessedCounterIncrementsOnBasicProvider(t *testing.T) {
	provider := metrics.NewBasicProvider()
	r, chain, watcher, relay := NewMock(4, "demo", t.TempDir(), WithMetrics(provider))

	chain.tasks[4] = &ChainTask{ID: 4, Timeout: time.Now().Add(time.Hour), ResultNode: chain.Self()}
	relay.SetArgs(4, TaskArgs{TaskID: 4, Raw: []byte(`{}`)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Init(ctx))

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.state.get().Status == StatusResultUploaded
	}, time.Second, time.Millisecond)

	watcher.Emit(NewTaskResultCommitmentsReady(4))
	require.Eventually(t, func() bool {
		return r.state.get().Status == StatusDisclosed
	}, time.Second, time.Millisecond)

	watcher.Emit(NewTaskSuccess(4, chain.Self()))
	<-runDone

	snapshot := provider.Counter("taskrunner_events_processed_total").(*metrics.BasicCounter).Snapshot()
	require.Greater(t, snapshot, int64(0))
}
