// Package term provides the symbol/terminal primitives spec.md 2 calls out
// as leaf components: glyph overrides read from the environment, ANSI
// styling helpers, terminal size queries, and raw-mode keyboard reads. The
// raw syscalls are grounded on the teacher's direct golang.org/x/sys/unix
// usage (internal/device, internal/fsnotify) — here aimed at a terminal
// file descriptor instead of a device node or inotify instance.
package term

import "os"

// Symbols is the immutable, closed-set configuration spec.md 9 calls for:
// read once at startup from SSHP_SYM_*, never mutated afterward.
type Symbols struct {
	Begin    string // SSHP_SYM_BEG: left bracket of the progress bar
	End      string // SSHP_SYM_END: right bracket of the progress bar
	Progress string // SSHP_SYM_PROG: progress bar fill glyph
	Result   string // SSHP_SYM_RES: glyph drawn beside a running job's row
}

// DefaultSymbols are used for any SSHP_SYM_* variable left unset.
var DefaultSymbols = Symbols{
	Begin:    "[",
	End:      "]",
	Progress: "=",
	Result:   "*",
}

// SymbolsFromEnv reads the closed set of SSHP_SYM_* overrides, falling back
// to DefaultSymbols for anything unset.
func SymbolsFromEnv() Symbols {
	s := DefaultSymbols
	if v := os.Getenv("SSHP_SYM_BEG"); v != "" {
		s.Begin = v
	}
	if v := os.Getenv("SSHP_SYM_END"); v != "" {
		s.End = v
	}
	if v := os.Getenv("SSHP_SYM_PROG"); v != "" {
		s.Progress = v
	}
	if v := os.Getenv("SSHP_SYM_RES"); v != "" {
		s.Result = v
	}
	return s
}

// StateGlyph returns the glyph the renderer draws beside a job row for the
// given state: sym.Result (which may be more than one character) for a
// running job, a fixed single character for every other state.
func StateGlyph(sym Symbols, state string) string {
	switch state {
	case "queued":
		return "."
	case "running":
		return sym.Result
	case "success":
		return "+"
	case "failed":
		return "x"
	case "timeout":
		return "!"
	case "killed":
		return "#"
	case "aborted":
		return "~"
	default:
		return "?"
	}
}
