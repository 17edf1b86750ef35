package runner

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// StateCache is the durable key/value store for TaskState, keyed by task id.
// Dump must be atomic and durable on return.
type StateCache interface {
	Has(ctx context.Context, taskID uint64) (bool, error)
	Load(ctx context.Context, taskID uint64) (TaskState, error)
	Dump(ctx context.Context, state TaskState) error
}

// EventQueue delivers TaskEvent values at least once. Ack commits
// consumption of a previously received delivery; NoAck releases it for
// redelivery.
type EventQueue interface {
	Put(ctx context.Context, event TaskEvent) error
	Recv(ctx context.Context) (ackID uint64, event TaskEvent, err error)
	Ack(ctx context.Context, ackID uint64) error
	NoAck(ctx context.Context, ackID uint64) error
}

// TxWaiter awaits the receipt of a single submitted transaction. Wait
// returns a *RevertedError when the receipt reports a revert.
type TxWaiter interface {
	Hash() []byte
	Wait(ctx context.Context) error
}

// ChainClient is the contract client used for every on-chain call the
// protocol makes. Each submit method returns a TxWaiter without blocking for
// the receipt; NewWaiter rebuilds a waiter from a persisted hash without
// resubmitting, so a crash mid-transaction can resume deterministically.
type ChainClient interface {
	GetTask(ctx context.Context, taskID uint64) (*ChainTask, error)
	SubmitTaskResultCommitment(ctx context.Context, taskID uint64, round uint32, commitment, nonce []byte) (TxWaiter, error)
	DiscloseTaskResult(ctx context.Context, taskID uint64, round uint32, result []byte) (TxWaiter, error)
	ReportResultsUploaded(ctx context.Context, taskID uint64, round uint32) (TxWaiter, error)
	ReportTaskError(ctx context.Context, taskID uint64, round uint32) (TxWaiter, error)
	CancelTask(ctx context.Context, taskID uint64) (TxWaiter, error)
	NewWaiter(method string, txHash []byte) TxWaiter
	Self() common.Address
}

// Watcher subscribes to chain log filters scoped to one task id and
// translates matching logs into TaskEvent values delivered through callback.
type Watcher interface {
	WatchEvent(ctx context.Context, eventName string, taskID uint64, callback func(TaskEvent)) (watchID uint64, err error)
	Unwatch(watchID uint64) error
}

// TaskArgs is the opaque task input fetched from the relay.
type TaskArgs struct {
	TaskID uint64
	Raw    json.RawMessage
}

// RelayClient fetches task inputs and uploads final artifacts.
type RelayClient interface {
	GetTask(ctx context.Context, taskID uint64) (TaskArgs, error)
	UploadTaskResult(ctx context.Context, taskID uint64, files []string) error
}

// RelayError carries the relay's textual error message, per spec.md §6/§7.
type RelayError struct {
	Message string
}

func (e *RelayError) Error() string { return e.Message }

// WorkerDispatcher runs the inference worker, either in-process (local) or
// by submitting a job to an external worker service (distributed).
type WorkerDispatcher interface {
	// RunLocal runs the worker in-process for taskID against args, writing
	// artifacts directly under outputDir (a Runner passes its per-task
	// directory, already suffixed with <taskID>), and returns the resulting
	// TaskResultReady event (hashes + ordered file paths). Cancellable.
	RunLocal(ctx context.Context, taskID uint64, args TaskArgs, outputDir string) (TaskResultReady, error)

	// RunDistributed submits taskName/args to the external job service and
	// blocks until it completes. It never produces a TaskResultReady: the
	// remote worker is expected to drive the rest of the protocol itself
	// (see SPEC_FULL.md §9 Open Question resolution).
	RunDistributed(ctx context.Context, taskName string, taskID uint64, args TaskArgs) error
}
