package worker

import (
	"context"
	"os"
	"path/filepath"

	runner "github.com/crynux-network/taskrunner"
)

// DefaultInference writes the task's raw args back out as a single
// artifact. It stands in for a real model-serving call so Local can be
// constructed and exercised in tests without one.
func DefaultInference(_ context.Context, args runner.TaskArgs, outputDir string) ([]string, error) {
	path := filepath.Join(outputDir, "output.bin")
	if err := os.WriteFile(path, args.Raw, 0o644); err != nil {
		return nil, err
	}
	return []string{path}, nil
}
