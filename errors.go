package runner

import (
	"errors"
	"fmt"
)

// Namespace prefixes every sentinel error in this package, matching the
// teacher library's Namespace-prefixed error convention.
const Namespace = "taskrunner"

var (
	ErrTaskNotFound    = errors.New(Namespace + ": task not found on chain")
	ErrInvalidTxState  = errors.New(Namespace + ": inconsistent waiting-tx state")
	ErrDeadlineReached = errors.New(Namespace + ": task deadline reached before a terminal status")
	ErrTaskInvalid     = errors.New(Namespace + ": worker reported task content invalid")
)

// RevertedError is returned by a chain.Client call whose transaction receipt
// reports a revert. Reason is the decoded revert string when available.
type RevertedError struct {
	Method string
	Reason string
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("%s: tx reverted calling %s: %s", Namespace, e.Method, e.Reason)
}

// TaskMetaError exposes correlation metadata for a failure raised while
// processing a task event. Adapted from the teacher's error_tagging.go,
// generalized from (taskID, taskIndex) to (taskID, round, status).
type TaskMetaError interface {
	error
	Unwrap() error
	TaskID() (uint64, bool)
	Round() (uint32, bool)
	Status() (Status, bool)
}

type taskTaggedError struct {
	err    error
	taskID uint64
	round  uint32
	status Status
}

func newTaskTaggedError(err error, taskID uint64, round uint32, status Status) error {
	if err == nil {
		return nil
	}
	return &taskTaggedError{err: err, taskID: taskID, round: round, status: status}
}

func (e *taskTaggedError) Error() string { return e.err.Error() }
func (e *taskTaggedError) Unwrap() error { return e.err }

func (e *taskTaggedError) TaskID() (uint64, bool) { return e.taskID, true }
func (e *taskTaggedError) Round() (uint32, bool)  { return e.round, true }
func (e *taskTaggedError) Status() (Status, bool)  { return e.status, true }

func (e *taskTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "task(id=%d,round=%d,status=%s): %+v", e.taskID, e.round, e.status, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractTaskID returns the task ID carried by err, if any.
func ExtractTaskID(err error) (uint64, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskID()
	}
	return 0, false
}
