// Package kinds enumerates the closed set of error kinds sshp's core can
// produce (spec.md 7), following the sentinel-plus-wrap convention the
// teacher's internal/validator package established for ErrInvalidInput.
package kinds

import "errors"

// ErrSpawn indicates an ssh child could not be started (binary missing,
// permission denied). The owning Job is classified Failed with ExitCode
// job.NoExit and this error's text is written to the log footer.
var ErrSpawn = errors.New("spawn error")

// ErrIO indicates a log file could not be written. This is fatal: the run
// aborts and the terminal is restored.
var ErrIO = errors.New("io error")

// ErrUsage indicates a collaborator (argument parsing, host resolution)
// rejected its input before the core ever ran. The core never produces
// this kind itself; it is defined here only so the driver can recognize and
// propagate it consistently.
var ErrUsage = errors.New("usage error")

// ErrLogQuery indicates a -L pattern resolved to no files.
var ErrLogQuery = errors.New("log query error")
