package worker

import (
	"context"
	"crypto/sha256"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	runner "github.com/crynux-network/taskrunner"
)

func TestRunLocalWithDefaultInferenceHashesOutput(t *testing.T) {
	l := NewLocal(nil)
	args := runner.TaskArgs{TaskID: 1, Raw: []byte("hello world")}

	ready, err := l.RunLocal(context.Background(), 1, args, t.TempDir())
	require.NoError(t, err)

	want := sha256.Sum256(args.Raw)
	require.Equal(t, [][]byte{want[:]}, ready.Hashes)
	require.Len(t, ready.Files, 1)
}

func TestRunLocalCancellationStopsWaitingOnInference(t *testing.T) {
	blocked := make(chan struct{})
	l := NewLocal(func(ctx context.Context, args runner.TaskArgs, outputDir string) ([]string, error) {
		<-blocked
		return nil, nil
	})
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.RunLocal(ctx, 1, runner.TaskArgs{}, t.TempDir())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunLocalRecoversInferencePanic(t *testing.T) {
	l := NewLocal(func(ctx context.Context, args runner.TaskArgs, outputDir string) ([]string, error) {
		panic("boom")
	})

	_, err := l.RunLocal(context.Background(), 1, runner.TaskArgs{}, t.TempDir())
	require.Error(t, err)
}

func TestRunLocalPropagatesInferenceError(t *testing.T) {
	wantErr := errors.New("inference failed")
	l := NewLocal(func(ctx context.Context, args runner.TaskArgs, outputDir string) ([]string, error) {
		return nil, wantErr
	})

	_, err := l.RunLocal(context.Background(), 1, runner.TaskArgs{}, t.TempDir())
	require.ErrorIs(t, err, wantErr)
}

func TestRunDistributedUnsupportedOnLocal(t *testing.T) {
	l := NewLocal(nil)
	err := l.RunDistributed(context.Background(), "demo", 1, runner.TaskArgs{})
	require.Error(t, err)
}

func TestDefaultInferenceWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	files, err := DefaultInference(context.Background(), runner.TaskArgs{Raw: []byte("x")}, dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "output.bin")}, files)
}
