package runner

import "github.com/ethereum/go-ethereum/common"

// TaskEvent is the tagged variant delivered by the event queue. Every
// concrete event carries the task it belongs to; the queue boundary wraps it
// with an ack id (see EventQueue.Recv).
type TaskEvent interface {
	taskID() uint64
	kind() string
}

type baseEvent struct {
	TaskID uint64
}

func (e baseEvent) taskID() uint64 { return e.TaskID }

// TaskCreated signals that this node has been selected for the given round.
type TaskCreated struct {
	baseEvent
	Round uint32
}

func (TaskCreated) kind() string { return "TaskCreated" }

// TaskResultReady is self-generated by the local worker once artifacts are
// produced; it is never delivered by the chain watcher.
type TaskResultReady struct {
	baseEvent
	Hashes [][]byte
	Files  []string
}

func (TaskResultReady) kind() string { return "TaskResultReady" }

// TaskResultCommitmentsReady signals that every selected peer has committed
// and it is safe to disclose.
type TaskResultCommitmentsReady struct {
	baseEvent
}

func (TaskResultCommitmentsReady) kind() string { return "TaskResultCommitmentsReady" }

// TaskSuccess signals the task was verified; ResultNode is the peer chosen
// to upload the final artifacts.
type TaskSuccess struct {
	baseEvent
	ResultNode common.Address
}

func (TaskSuccess) kind() string { return "TaskSuccess" }

// TaskAborted signals the task terminated on-chain without success.
type TaskAborted struct {
	baseEvent
}

func (TaskAborted) kind() string { return "TaskAborted" }

// NewTaskCreated builds a TaskCreated event for taskID/round.
func NewTaskCreated(taskID uint64, round uint32) TaskCreated {
	return TaskCreated{baseEvent: baseEvent{TaskID: taskID}, Round: round}
}

// NewTaskResultReady builds a TaskResultReady event.
func NewTaskResultReady(taskID uint64, hashes [][]byte, files []string) TaskResultReady {
	return TaskResultReady{baseEvent: baseEvent{TaskID: taskID}, Hashes: hashes, Files: files}
}

// NewTaskResultCommitmentsReady builds a TaskResultCommitmentsReady event.
func NewTaskResultCommitmentsReady(taskID uint64) TaskResultCommitmentsReady {
	return TaskResultCommitmentsReady{baseEvent: baseEvent{TaskID: taskID}}
}

// NewTaskSuccess builds a TaskSuccess event.
func NewTaskSuccess(taskID uint64, resultNode common.Address) TaskSuccess {
	return TaskSuccess{baseEvent: baseEvent{TaskID: taskID}, ResultNode: resultNode}
}

// NewTaskAborted builds a TaskAborted event.
func NewTaskAborted(taskID uint64) TaskAborted {
	return TaskAborted{baseEvent: baseEvent{TaskID: taskID}}
}
