package runner

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is a protocol stage of a task. Status is monotonic: it only moves
// forward along the declared order, or jumps to StatusAborted.
type Status int

const (
	StatusPending Status = iota
	StatusExecuting
	StatusResultUploaded
	StatusDisclosed
	StatusSuccess
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuting:
		return "executing"
	case StatusResultUploaded:
		return "result_uploaded"
	case StatusDisclosed:
		return "disclosed"
	case StatusSuccess:
		return "success"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the two terminal statuses.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusAborted
}

// TaskState is the durable record for one task. It is owned exclusively by
// its runner and mutated only through withState (see statecontext.go).
type TaskState struct {
	TaskID  uint64
	Round   uint32
	Timeout time.Time
	Status  Status

	// Result is the locally computed commitment material. Empty until the
	// commitment transaction has been submitted.
	Result []byte

	// Disclosed is true once discloseTaskResult has been submitted successfully.
	Disclosed bool

	// Files holds the ordered local artifact paths produced by the worker.
	Files []string

	// WaitingTxMethod/WaitingTxHash are either both empty or both set; set
	// only while a submitted transaction has not yet been confirmed.
	WaitingTxMethod string
	WaitingTxHash   []byte
}

// clone returns a deep-enough copy for safe handoff across the state
// condition's broadcast (slices are not mutated in place by handlers).
func (s TaskState) clone() TaskState {
	out := s
	if s.Result != nil {
		out.Result = append([]byte(nil), s.Result...)
	}
	if s.Files != nil {
		out.Files = append([]string(nil), s.Files...)
	}
	if s.WaitingTxHash != nil {
		out.WaitingTxHash = append([]byte(nil), s.WaitingTxHash...)
	}
	return out
}

// ChainTask is a read-only projection of a task as recorded on-chain.
type ChainTask struct {
	ID            uint64
	Timeout       time.Time
	SelectedNodes []common.Address
	Commitments   [][]byte
	ResultNode    common.Address
	Aborted       bool
}
