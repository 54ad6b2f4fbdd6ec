package logstore

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tjper/sshp/internal/sshp/job"
)

// iso8601 formats t the way the header/footer lines require.
func iso8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// HostWriter is the append-only combined-output file for a single Job, per
// spec.md 4.2. It owns the file handle for the Job's entire lifetime:
// opened on job start, closed on job end, on every exit path — the scoped-
// acquisition discipline spec.md 9 calls for.
type HostWriter struct {
	path string
	file *os.File
}

// OpenHostWriter creates (or truncates) the log file at path and writes its
// header line. cmd is the human-readable command description used in the
// header.
func OpenHostWriter(path, host, cmd string, start time.Time) (*HostWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FileMode)
	if err != nil {
		return nil, fmt.Errorf("open host log %s: %w", path, err)
	}
	w := &HostWriter{path: path, file: f}

	header := fmt.Sprintf("# host=%s cmd=%s start=%s\n", host, cmd, iso8601(start))
	if _, err := w.file.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header to %s: %w", path, err)
	}
	return w, nil
}

// WriteLine appends a single line of child output, exactly as received,
// terminated with a newline. Lines for a single host are strictly ordered
// (spec.md 5): HostWriter is only ever driven by the one worker that owns
// its Job, so no further locking is needed here.
func (w *HostWriter) WriteLine(line string) error {
	line = strings.TrimRight(line, "\r\n")
	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write line to %s: %w", w.path, err)
	}
	return nil
}

// Close writes the footer line and closes the file. end, exitCode, and
// state describe the Job's terminal outcome.
func (w *HostWriter) Close(end time.Time, exitCode int, state job.State) error {
	footer := fmt.Sprintf("# end=%s exit=%d state=%s\n", iso8601(end), exitCode, state)
	_, writeErr := w.file.WriteString(footer)
	closeErr := w.file.Close()
	if writeErr != nil {
		return fmt.Errorf("write footer to %s: %w", w.path, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", w.path, closeErr)
	}
	return nil
}

// CloseSpawnError writes a footer recording a spawn failure instead of a
// normal exit, and closes the file. Used when the ssh child never started
// (spec.md 7's spawn_error kind).
func (w *HostWriter) CloseSpawnError(end time.Time, spawnErr error) error {
	footer := fmt.Sprintf("# end=%s exit=%d state=%s error=%q\n", iso8601(end), job.NoExit, job.Failed, spawnErr.Error())
	_, writeErr := w.file.WriteString(footer)
	closeErr := w.file.Close()
	if writeErr != nil {
		return fmt.Errorf("write footer to %s: %w", w.path, writeErr)
	}
	return closeErr
}
