package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crynux-network/taskrunner/metrics"
)

// Runner drives exactly one on-chain task through its protocol stages. A
// Runner is single-use: once Run returns, construct a new one for the next
// task. Collaborators are supplied via Option; any left unset default to
// the package's in-memory mocks (runner_mock.go), so New(...) alone is
// enough to exercise the whole state machine in a test.
type Runner struct {
	taskID    uint64
	taskName  string
	outputDir string

	cfg   config
	log   zerolog.Logger
	state *stateContext
	tx    *txCoordinator

	eventsProcessed metrics.Counter
	eventErrors     metrics.Counter

	watchIDs    []uint64
	cleanupOnce sync.Once
}

// New builds a Runner for taskID/taskName. outputDir is the local directory
// under which worker artifacts for this task are written.
func New(taskID uint64, taskName, outputDir string, opts ...Option) *Runner {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cache == nil {
		cfg.cache = newMockStateCache()
	}
	if cfg.queue == nil {
		cfg.queue = newMockEventQueue()
	}
	if cfg.chain == nil {
		cfg.chain = newMockChainClient()
	}
	if cfg.watcher == nil {
		cfg.watcher = newMockWatcher()
	}
	if cfg.relay == nil {
		cfg.relay = newMockRelayClient()
	}
	if cfg.dispatcher == nil {
		cfg.dispatcher = newMockWorkerDispatcher()
	}

	r := &Runner{
		taskID:    taskID,
		taskName:  taskName,
		outputDir: filepath.Join(outputDir, fmt.Sprintf("%d", taskID)),
		cfg:       cfg,
		log:       cfg.logger.With().Uint64("task_id", taskID).Str("task_name", taskName).Logger(),
	}
	r.eventsProcessed = cfg.metrics.Counter(
		"taskrunner_events_processed_total",
		metrics.WithDescription("task events dispatched to a handler"),
		metrics.WithUnit("1"),
	)
	r.eventErrors = cfg.metrics.Counter(
		"taskrunner_event_handler_errors_total",
		metrics.WithDescription("task event handler failures"),
		metrics.WithUnit("1"),
	)
	return r
}

// NewMock builds a Runner wired entirely to in-memory collaborators,
// returning them alongside the Runner so a test can drive chain state and
// watcher events directly. Mirrors task_runner.py's MockTaskRunner.
func NewMock(taskID uint64, taskName, outputDir string, opts ...Option) (*Runner, *mockChainClient, *mockWatcher, *mockRelayClient) {
	chain := newMockChainClient()
	watcher := newMockWatcher()
	relay := newMockRelayClient()
	all := append([]Option{
		WithChainClient(chain),
		WithWatcher(watcher),
		WithRelayClient(relay),
	}, opts...)
	return New(taskID, taskName, outputDir, all...), chain, watcher, relay
}

// Status reports this task's current protocol stage. Safe to call
// concurrently with Run, mirroring the teacher's GetResults/GetErrors
// observer channels adapted to a single polled value instead of a stream.
func (r *Runner) Status() Status { return r.state.get().Status }

// State returns a snapshot of this task's durable state.
func (r *Runner) State() TaskState { return r.state.get() }

// Init loads or creates this task's durable state, validates it against the
// chain, and subscribes to the three chain-log filters that drive the rest
// of the protocol forward. It must be called exactly once, before Run.
func (r *Runner) Init(ctx context.Context) error {
	exists, err := r.cfg.cache.Has(ctx, r.taskID)
	if err != nil {
		return err
	}

	var initial TaskState
	if exists {
		initial, err = r.cfg.cache.Load(ctx, r.taskID)
		if err != nil {
			return err
		}
	} else {
		initial = TaskState{TaskID: r.taskID, Status: StatusPending}
	}

	// A missing or mismatched chain task (GetTask erroring, or answering
	// with a different task's record) means there is nothing left for this
	// runner to do: force the task straight to Aborted rather than
	// propagating a raw error, matching the source's get_task() -> None ->
	// aborted behavior.
	chainTask, err := r.cfg.chain.GetTask(ctx, r.taskID)
	switch {
	case err != nil:
		r.log.Warn().Err(err).Msg("chain task lookup failed; forcing aborted")
		initial.Status = StatusAborted
	case chainTask == nil || chainTask.ID != r.taskID:
		r.log.Warn().Msg("chain task missing or id mismatch; forcing aborted")
		initial.Status = StatusAborted
	case chainTask.Aborted:
		initial.Status = StatusAborted
		initial.Timeout = chainTask.Timeout
	default:
		initial.Timeout = chainTask.Timeout
	}

	r.state = newStateContext(r.cfg.cache, r.cfg.drainWindow, initial)
	r.tx = newTxCoordinator(r.state, r.cfg.chain)

	if initial.Status.IsTerminal() {
		return r.state.withState(func(s *TaskState) error { return nil })
	}

	for _, sub := range []string{"TaskResultCommitmentsReady", "TaskSuccess", "TaskAborted"} {
		eventName := sub
		watchID, err := r.cfg.watcher.WatchEvent(ctx, eventName, r.taskID, func(event TaskEvent) {
			putCtx, cancel := context.WithTimeout(context.Background(), r.cfg.drainWindow)
			defer cancel()
			if err := r.cfg.queue.Put(putCtx, event); err != nil {
				r.log.Error().Err(err).Str("event", eventName).Msg("failed to enqueue watched event")
			}
		})
		if err != nil {
			return err
		}
		r.watchIDs = append(r.watchIDs, watchID)
	}

	return r.state.withState(func(s *TaskState) error { return nil })
}

// Run drives the event loop until the task reaches a terminal status or its
// on-chain deadline passes, then runs cleanup. Each event is acked when its
// handler succeeds and no-acked when it fails; events the queue still holds
// when the loop stops are not drained, acked or no-acked by Run. Run returns
// nil once a handler brings the task to a terminal status, regardless of
// whether it ended in Success or Aborted — the terminal TaskState is the
// result. When the deadline passes first, Run forces Aborted, submits
// cancelTask and returns ErrDeadlineReached.
//
// Each received event is dispatched from its own goroutine, tracked by a
// sync.WaitGroup — adapted from the teacher's dispatcher.go inflight-goroutine
// pattern. A single sequential consumer cannot work here: handlers block
// inside waitForStatus for their predecessor status, and events are allowed
// to arrive in any order (e.g. a redelivered TaskSuccess ahead of
// TaskResultCommitmentsReady), so a handler blocked on one event would
// otherwise prevent Recv from ever picking up the event that unblocks it.
func (r *Runner) Run(ctx context.Context) error {
	defer r.cleanup(context.Background())

	if r.state.get().Status.IsTerminal() {
		return nil
	}

	deadline := r.state.get().Timeout
	runCtx := ctx
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		runCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	if r.state.get().Status == StatusPending {
		if err := r.cfg.queue.Put(runCtx, NewTaskCreated(r.taskID, r.state.get().Round)); err != nil {
			return err
		}
	}

	// recvCtx unblocks queue.Recv as soon as the task reaches a terminal
	// status from any in-flight handler, instead of waiting for the next
	// event or the whole-task deadline.
	recvCtx, recvCancel := context.WithCancel(runCtx)
	defer recvCancel()
	go func() {
		_ = r.state.waitForTerminal(recvCtx)
		recvCancel()
	}()

	var wg sync.WaitGroup
	for {
		ackID, event, err := r.cfg.queue.Recv(recvCtx)
		if err != nil {
			break
		}
		wg.Add(1)
		go func(ackID uint64, event TaskEvent) {
			defer wg.Done()
			r.handleEvent(runCtx, ackID, event)
		}(ackID, event)
	}
	wg.Wait()

	if r.state.get().Status.IsTerminal() {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return r.onDeadline(context.Background())
}

// handleEvent dispatches a single received event to its handler and
// acks/no-acks the delivery according to the outcome.
func (r *Runner) handleEvent(ctx context.Context, ackID uint64, event TaskEvent) {
	handlerErr := r.dispatch(ctx, event)
	r.eventsProcessed.Add(1)
	if handlerErr != nil {
		r.eventErrors.Add(1)
		r.log.Error().Err(handlerErr).Str("event", event.kind()).Msg("event handler failed")
		_ = r.cfg.queue.NoAck(context.Background(), ackID)
	} else {
		_ = r.cfg.queue.Ack(context.Background(), ackID)
	}
}

func (r *Runner) onDeadline(ctx context.Context) error {
	if r.state.get().Status.IsTerminal() {
		return nil
	}
	_ = r.state.withState(func(s *TaskState) error {
		s.Status = StatusAborted
		return nil
	})
	if _, err := r.cfg.chain.CancelTask(ctx, r.taskID); err != nil {
		r.log.Error().Err(err).Msg("cancelTask after deadline failed")
	}
	return ErrDeadlineReached
}

func (r *Runner) dispatch(ctx context.Context, event TaskEvent) error {
	switch ev := event.(type) {
	case TaskCreated:
		return r.handleTaskCreated(ctx, ev)
	case TaskResultReady:
		return r.handleResultReady(ctx, ev)
	case TaskResultCommitmentsReady:
		return r.handleCommitmentReady(ctx, ev)
	case TaskSuccess:
		return r.handleTaskSuccess(ctx, ev)
	case TaskAborted:
		return r.handleTaskAborted(ctx, ev)
	default:
		return fmt.Errorf("%s: unrecognized event %T", Namespace, event)
	}
}

// cleanup unsubscribes every chain watch and removes the task's local
// artifact directory. It is idempotent — safe to invoke from both a normal
// Run() return and an abnormal one — and shielded from the caller's
// context, so it always runs to completion even during shutdown.
func (r *Runner) cleanup(_ context.Context) {
	r.cleanupOnce.Do(func() {
		for _, id := range r.watchIDs {
			if err := r.cfg.watcher.Unwatch(id); err != nil {
				r.log.Warn().Err(err).Uint64("watch_id", id).Msg("unwatch failed during cleanup")
			}
		}
		r.watchIDs = nil
		removeArtifactDir(r.outputDir)
	})
}
