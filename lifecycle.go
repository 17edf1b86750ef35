package runner

import (
	"os"
	"path/filepath"
)

// removeArtifactDir best-effort removes a task's local working directory.
// Adapted from task_runner.py's cleanup(), which derives the directory from
// the parent of files[0]; here the Runner already tracks the directory
// directly (outputDir), so there is nothing to derive — this just
// centralizes the best-effort-delete policy (errors are swallowed: cleanup
// must never fail the run) in one named place, matching the teacher's
// convention of giving each shutdown step in lifecycle.go its own function.
func removeArtifactDir(dir string) {
	if dir == "" {
		return
	}
	_ = os.RemoveAll(filepath.Clean(dir))
}
