// Package staging manages the per-job working directories the pipeline
// copies images into before running external tools over them.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"imagemill/internal/fileutil"
)

// DirFor returns (creating if needed) the staging directory for a job. Jobs
// are keyed by content fingerprint so a retried item reuses its directory;
// when the fingerprint is empty a random one-off directory is created.
func DirFor(stagingRoot, fingerprint string) (string, error) {
	name := strings.TrimSpace(fingerprint)
	if name == "" {
		name = "job-" + uuid.NewString()
	}
	dir := filepath.Join(stagingRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// Stage copies the source image into the job directory, verifying the copy,
// and returns the staged path.
func Stage(sourcePath, jobDir string) (string, error) {
	staged := filepath.Join(jobDir, filepath.Base(sourcePath))
	if err := fileutil.CopyFileVerified(sourcePath, staged); err != nil {
		return "", fmt.Errorf("stage %s: %w", filepath.Base(sourcePath), err)
	}
	return staged, nil
}

// Remove deletes a job directory and everything in it.
func Remove(jobDir string) error {
	jobDir = strings.TrimSpace(jobDir)
	if jobDir == "" {
		return nil
	}
	return os.RemoveAll(jobDir)
}
