// Package worker provides concrete WorkerDispatcher implementations: Local
// runs the inference job in-process, Distributed submits it to an external
// worker service over NATS and waits for acceptance.
package worker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	runner "github.com/crynux-network/taskrunner"
	"github.com/crynux-network/taskrunner/pool"
)

// InferenceFunc runs a task's model inference, writing output artifacts
// under outputDir and returning their paths in a stable order. Swap in the
// real model-serving call; DefaultInference is a deterministic stand-in
// used when a Local is built without one, so the dispatcher is exercisable
// without a model runtime.
type InferenceFunc func(ctx context.Context, args runner.TaskArgs, outputDir string) ([]string, error)

// Local runs the inference task in-process. Cancellation is honored even
// though InferenceFunc may itself block uninterruptibly, by racing its
// completion against ctx.Done in a detached goroutine — adapted from the
// teacher's task.go cancellable-execute-with-panic-recovery pattern,
// specialized from a generic task[R] to this one job shape.
type Local struct {
	infer    InferenceFunc
	hashPool pool.Pool[hash.Hash]
}

// NewLocal builds a Local dispatcher. infer is nil-safe: a nil InferenceFunc
// falls back to DefaultInference. hashPool reuses sha256 hashers across the
// (usually few, occasionally many) output files a task produces, grounded
// on the teacher's pool.NewFixed fixed-capacity object pool.
func NewLocal(infer InferenceFunc) *Local {
	if infer == nil {
		infer = DefaultInference
	}
	return &Local{
		infer:    infer,
		hashPool: pool.NewFixed[hash.Hash](4, func() hash.Hash { return sha256.New() }),
	}
}

func (l *Local) RunLocal(ctx context.Context, taskID uint64, args runner.TaskArgs, outputDir string) (runner.TaskResultReady, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return runner.TaskResultReady{}, err
	}

	type outcome struct {
		files []string
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("taskrunner/worker: inference panicked: %v", p)}
			}
		}()
		files, err := l.infer(ctx, args, outputDir)
		done <- outcome{files: files, err: err}
	}()

	var o outcome
	select {
	case <-ctx.Done():
		return runner.TaskResultReady{}, ctx.Err()
	case o = <-done:
	}
	if o.err != nil {
		return runner.TaskResultReady{}, o.err
	}

	hashes := make([][]byte, len(o.files))
	for i, path := range o.files {
		sum, err := l.hashFile(path)
		if err != nil {
			return runner.TaskResultReady{}, err
		}
		hashes[i] = sum
	}

	return runner.NewTaskResultReady(taskID, hashes, o.files), nil
}

func (l *Local) hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := l.hashPool.Get()
	h.Reset()
	defer l.hashPool.Put(h)

	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// RunDistributed is unsupported on Local; a Runner configured with
// WithDistributed must be given a Distributed dispatcher instead.
func (l *Local) RunDistributed(_ context.Context, _ string, taskID uint64, _ runner.TaskArgs) error {
	return fmt.Errorf("taskrunner/worker: Local dispatcher does not support distributed dispatch (task %d)", taskID)
}
