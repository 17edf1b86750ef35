package runner

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// The mocks in this file back every collaborator a Runner needs when no
// Option supplies a real one, so a Runner can run its full state machine
// against nothing but memory — the Go analogue of task_runner.py's
// MockTaskRunner, generalized into per-collaborator fakes instead of one
// subclass that overrides every abstract method.

type mockStateCache struct {
	mu     sync.Mutex
	states map[uint64]TaskState
}

func newMockStateCache() *mockStateCache {
	return &mockStateCache{states: make(map[uint64]TaskState)}
}

func (c *mockStateCache) Has(_ context.Context, taskID uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.states[taskID]
	return ok, nil
}

func (c *mockStateCache) Load(_ context.Context, taskID uint64) (TaskState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[taskID]
	if !ok {
		return TaskState{}, ErrTaskNotFound
	}
	return st.clone(), nil
}

func (c *mockStateCache) Dump(_ context.Context, state TaskState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[state.TaskID] = state.clone()
	return nil
}

type mockEventQueue struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]TaskEvent
	q       *intake
}

func newMockEventQueue() *mockEventQueue {
	return &mockEventQueue{pending: make(map[uint64]TaskEvent), q: newIntake()}
}

func (q *mockEventQueue) Put(_ context.Context, event TaskEvent) error {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.pending[id] = event
	q.mu.Unlock()
	q.q.send(id, event)
	return nil
}

func (q *mockEventQueue) Recv(ctx context.Context) (uint64, TaskEvent, error) {
	return q.q.recv(ctx)
}

func (q *mockEventQueue) Ack(_ context.Context, ackID uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, ackID)
	return nil
}

func (q *mockEventQueue) NoAck(_ context.Context, ackID uint64) error {
	q.mu.Lock()
	event, ok := q.pending[ackID]
	q.mu.Unlock()
	if !ok {
		return nil
	}
	q.q.requeue(ackID, event)
	return nil
}

type mockTxWaiter struct {
	hash []byte
	err  error
}

func (w *mockTxWaiter) Hash() []byte { return w.hash }
func (w *mockTxWaiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return w.err
	}
}

type mockChainClient struct {
	mu    sync.Mutex
	tasks map[uint64]*ChainTask
	self  common.Address
	seq   uint64
}

func newMockChainClient() *mockChainClient {
	return &mockChainClient{tasks: make(map[uint64]*ChainTask)}
}

func (c *mockChainClient) Self() common.Address { return c.self }

// SetTask installs a task as it would read on-chain, for tests/examples
// that only have access to the exported mockChainClient surface.
func (c *mockChainClient) SetTask(task *ChainTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *task
	c.tasks[task.ID] = &cp
}

func (c *mockChainClient) GetTask(_ context.Context, taskID uint64) (*ChainTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (c *mockChainClient) nextHash() []byte {
	c.mu.Lock()
	c.seq++
	n := c.seq
	c.mu.Unlock()
	h := sha256.Sum256([]byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)})
	return h[:]
}

func (c *mockChainClient) SubmitTaskResultCommitment(_ context.Context, _ uint64, _ uint32, _, _ []byte) (TxWaiter, error) {
	return &mockTxWaiter{hash: c.nextHash()}, nil
}

func (c *mockChainClient) DiscloseTaskResult(_ context.Context, _ uint64, _ uint32, _ []byte) (TxWaiter, error) {
	return &mockTxWaiter{hash: c.nextHash()}, nil
}

func (c *mockChainClient) ReportResultsUploaded(_ context.Context, _ uint64, _ uint32) (TxWaiter, error) {
	return &mockTxWaiter{hash: c.nextHash()}, nil
}

func (c *mockChainClient) ReportTaskError(_ context.Context, _ uint64, _ uint32) (TxWaiter, error) {
	return &mockTxWaiter{hash: c.nextHash()}, nil
}

func (c *mockChainClient) CancelTask(_ context.Context, _ uint64) (TxWaiter, error) {
	return &mockTxWaiter{hash: c.nextHash()}, nil
}

func (c *mockChainClient) NewWaiter(_ string, txHash []byte) TxWaiter {
	return &mockTxWaiter{hash: txHash}
}

type mockWatcher struct {
	mu        sync.Mutex
	nextID    uint64
	callbacks map[uint64]func(TaskEvent)
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{callbacks: make(map[uint64]func(TaskEvent))}
}

func (w *mockWatcher) WatchEvent(_ context.Context, _ string, _ uint64, callback func(TaskEvent)) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.callbacks[id] = callback
	return id, nil
}

func (w *mockWatcher) Unwatch(watchID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.callbacks, watchID)
	return nil
}

// Emit fires every live callback with event — used by tests to simulate a
// chain log arriving.
func (w *mockWatcher) Emit(event TaskEvent) {
	w.mu.Lock()
	cbs := make([]func(TaskEvent), 0, len(w.callbacks))
	for _, cb := range w.callbacks {
		cbs = append(cbs, cb)
	}
	w.mu.Unlock()
	for _, cb := range cbs {
		cb(event)
	}
}

type mockRelayClient struct {
	mu      sync.Mutex
	args    map[uint64]TaskArgs
	uploads map[uint64][]string
}

func newMockRelayClient() *mockRelayClient {
	return &mockRelayClient{args: make(map[uint64]TaskArgs), uploads: make(map[uint64][]string)}
}

func (r *mockRelayClient) SetArgs(taskID uint64, args TaskArgs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args[taskID] = args
}

func (r *mockRelayClient) GetTask(_ context.Context, taskID uint64) (TaskArgs, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.args[taskID]
	if !ok {
		return TaskArgs{}, &RelayError{Message: "Task not found"}
	}
	return a, nil
}

func (r *mockRelayClient) UploadTaskResult(_ context.Context, taskID uint64, files []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[taskID] = files
	return nil
}

type mockWorkerDispatcher struct{}

func newMockWorkerDispatcher() *mockWorkerDispatcher { return &mockWorkerDispatcher{} }

func (mockWorkerDispatcher) RunLocal(ctx context.Context, taskID uint64, args TaskArgs, outputDir string) (TaskResultReady, error) {
	select {
	case <-ctx.Done():
		return TaskResultReady{}, ctx.Err()
	default:
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return TaskResultReady{}, err
	}
	path := filepath.Join(outputDir, "output.bin")
	if err := os.WriteFile(path, args.Raw, 0o644); err != nil {
		return TaskResultReady{}, err
	}
	h := sha256.Sum256(args.Raw)
	return NewTaskResultReady(taskID, [][]byte{h[:]}, []string{path}), nil
}

func (mockWorkerDispatcher) RunDistributed(ctx context.Context, _ string, _ uint64, _ TaskArgs) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
