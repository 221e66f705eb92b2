// Package report writes and parses the runtime's structured report files.
//
// Reports are append-only text blocks of "key: value" lines, one file per
// subsystem. Appending (never truncating) lets repeated runs in the same
// directory accumulate one block per run for external scripts to parse.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/phuslu/log"

	"regionprof/internal/logger"
)

// EnvOutputDir overrides the report directory when set.
const EnvOutputDir = "REGIONPROF_OUTPUT_DIR"

// ResolveDir picks the report directory: the environment variable wins,
// then the configured directory, then the platform temp directory.
func ResolveDir(configured string) string {
	if dir := os.Getenv(EnvOutputDir); dir != "" {
		return dir
	}
	if configured != "" {
		return configured
	}
	return os.TempDir()
}

// Writer appends report blocks to files in one directory.
type Writer struct {
	dir string
	log log.Logger
}

// NewWriter creates a writer for the given directory (already resolved via
// ResolveDir).
func NewWriter(dir string) *Writer {
	return &Writer{
		dir: dir,
		log: logger.NewLoggerWithContext("report"),
	}
}

// Dir returns the directory reports are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// Append appends one report block to the named file, creating the directory
// and file as needed. The file is never truncated.
func (w *Writer) Append(filename, content string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, content); err != nil {
		return fmt.Errorf("write report file %s: %w", path, err)
	}
	return nil
}

// AppendAll appends blocks to their files, logging failures instead of
// aborting: a failed report must never take the host program down.
func (w *Writer) AppendAll(blocks map[string]string) {
	for filename, content := range blocks {
		if err := w.Append(filename, content); err != nil {
			w.log.Error().Err(err).Str("file", filename).Msg("failed to write report")
		}
	}
}
