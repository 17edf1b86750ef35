package runner

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"strings"
)

// handleTaskCreated runs after this node is selected for a round: it fetches
// the task's input from the relay (retrying while the record is not yet
// visible there) and runs the inference worker, local or distributed
// depending on configuration. Grounded on task_runner.py's task_created.
func (r *Runner) handleTaskCreated(ctx context.Context, ev TaskCreated) error {
	if err := r.state.waitForStatus(ctx, StatusPending); err != nil {
		return err
	}

	if err := r.state.withState(func(s *TaskState) error {
		s.Round = ev.Round
		return nil
	}); err != nil {
		return err
	}

	args, err := pollGetTask(ctx, r.cfg.relay, r.taskID, r.cfg.getTaskMax)
	if err != nil {
		return r.reportInvalidTask(err)
	}

	if r.cfg.distributed {
		if err := r.cfg.dispatcher.RunDistributed(ctx, r.taskName, r.taskID, args); err != nil {
			return r.reportInvalidTask(err)
		}
		return r.state.withState(func(s *TaskState) error {
			s.Status = StatusExecuting
			return nil
		})
	}

	if err := r.state.withState(func(s *TaskState) error {
		s.Status = StatusExecuting
		return nil
	}); err != nil {
		return err
	}

	result, err := r.cfg.dispatcher.RunLocal(ctx, r.taskID, args, r.outputDir)
	if err != nil {
		return r.reportInvalidTask(err)
	}

	return r.cfg.queue.Put(ctx, result)
}

// reportInvalidTask aborts the task and reports the error to the chain under
// a shielded budget, so a cancelled runCtx can't prevent the abort report
// from being submitted. Grounded on task_runner.py's TaskInvalid handling in
// task_created (fail_after(60, shield=True) around report_task_error).
func (r *Runner) reportInvalidTask(cause error) error {
	reportCtx, cancel := context.WithTimeout(context.Background(), r.cfg.errWindow)
	defer cancel()

	if err := r.state.withState(func(s *TaskState) error {
		s.Status = StatusAborted
		return nil
	}); err != nil {
		return err
	}

	if err := r.tx.call(reportCtx, "reportTaskError", func(ctx context.Context) (TxWaiter, error) {
		return r.cfg.chain.ReportTaskError(ctx, r.taskID, r.state.get().Round)
	}); err != nil {
		return newTaskTaggedError(err, r.taskID, r.state.get().Round, StatusAborted)
	}

	return newTaskTaggedError(ErrTaskInvalid, r.taskID, r.state.get().Round, StatusAborted)
}

// makeResultCommitments builds the commit-then-disclose material for a set
// of worker output hashes: result is their concatenation, nonce is 32 random
// bytes, and commitment binds both via sha256(result||nonce). This is a
// fixed external protocol primitive (spec.md §4.3) with no room for a
// library substitution, hence the direct crypto/rand and crypto/sha256 use.
func makeResultCommitments(hashes [][]byte) (result, commitment, nonce []byte, err error) {
	result = bytes.Join(hashes, nil)
	nonce = make([]byte, 32)
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}
	sum := sha256.Sum256(append(append([]byte(nil), result...), nonce...))
	commitment = sum[:]
	return result, commitment, nonce, nil
}

// handleResultReady submits the result commitment once the worker has
// produced it, or resumes an in-flight submission from a prior crash.
// Grounded on task_runner.py's result_ready.
func (r *Runner) handleResultReady(ctx context.Context, ev TaskResultReady) error {
	if err := r.state.waitForStatus(ctx, StatusExecuting); err != nil {
		return err
	}

	st := r.state.get()
	result := st.Result
	var commitment, nonce []byte
	if len(result) == 0 {
		var err error
		result, commitment, nonce, err = makeResultCommitments(ev.Hashes)
		if err != nil {
			return err
		}
	}

	err := r.tx.call(ctx, "submitTaskResultCommitment", func(ctx context.Context) (TxWaiter, error) {
		return r.cfg.chain.SubmitTaskResultCommitment(ctx, r.taskID, st.Round, commitment, nonce)
	})
	// Only a revert whose reason is the contract's own "Task is aborted"
	// means the task already resolved on-chain out from under this node;
	// that is the sole case worth converting into a self-reported abort.
	// Any other revert reason (insufficient stake, wrong round, ...) is a
	// distinct failure that must propagate, not be silently swallowed into
	// reportTaskError.
	if revertErr, ok := err.(*RevertedError); ok && strings.Contains(revertErr.Reason, "Task is aborted") {
		return r.reportInvalidTask(revertErr)
	}
	if err != nil {
		return err
	}

	return r.state.withState(func(s *TaskState) error {
		s.Result = result
		s.Status = StatusResultUploaded
		s.Files = ev.Files
		return nil
	})
}

// handleCommitmentReady discloses the result once every selected peer has
// committed. Grounded on task_runner.py's commitment_ready.
func (r *Runner) handleCommitmentReady(ctx context.Context, _ TaskResultCommitmentsReady) error {
	if err := r.state.waitForStatus(ctx, StatusResultUploaded); err != nil {
		return err
	}

	st := r.state.get()
	if !st.Disclosed {
		if err := r.tx.call(ctx, "discloseTaskResult", func(ctx context.Context) (TxWaiter, error) {
			return r.cfg.chain.DiscloseTaskResult(ctx, r.taskID, st.Round, st.Result)
		}); err != nil {
			return err
		}
		if err := r.state.withState(func(s *TaskState) error {
			s.Disclosed = true
			return nil
		}); err != nil {
			return err
		}
	}

	return r.state.withState(func(s *TaskState) error {
		s.Status = StatusDisclosed
		return nil
	})
}

// handleTaskSuccess uploads the output artifacts if this node was chosen as
// the result node, then marks the task Success. Grounded on
// task_runner.py's task_success.
func (r *Runner) handleTaskSuccess(ctx context.Context, ev TaskSuccess) error {
	if err := r.state.waitForStatus(ctx, StatusDisclosed); err != nil {
		return err
	}

	st := r.state.get()
	if ev.ResultNode == r.cfg.chain.Self() {
		if err := r.cfg.relay.UploadTaskResult(ctx, r.taskID, st.Files); err != nil {
			return err
		}
		if err := r.tx.call(ctx, "reportResultsUploaded", func(ctx context.Context) (TxWaiter, error) {
			return r.cfg.chain.ReportResultsUploaded(ctx, r.taskID, st.Round)
		}); err != nil {
			return err
		}
	}

	return r.state.withState(func(s *TaskState) error {
		s.Status = StatusSuccess
		return nil
	})
}

// handleTaskAborted unconditionally marks the task Aborted; no status
// precondition is enforced since an abort can arrive at any stage.
// Grounded on task_runner.py's task_aborted.
func (r *Runner) handleTaskAborted(_ context.Context, _ TaskAborted) error {
	return r.state.withState(func(s *TaskState) error {
		s.Status = StatusAborted
		return nil
	})
}
