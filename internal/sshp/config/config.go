// Package config holds the runtime-knobs value object the (out-of-scope)
// argument-parsing collaborator builds and the core validates once at
// startup, in the style of the teacher's internal/validator package.
package config

import (
	"fmt"
	"time"

	"github.com/tjper/sshp/internal/validator"
)

// MaxDotsFull means DisplayHost retains every dot-separated label (the full
// FQDN). MaxDotsShort means only the short name (first label) is kept.
const (
	MaxDotsFull  = -1
	MaxDotsShort = 1
)

// Config carries every runtime knob spec.md 6 lists as consumed-not-parsed
// by the core.
type Config struct {
	// Hosts is the final, ordered, already-resolved host list. Duplicates are
	// accepted; see SPEC_FULL.md's Open Question decision.
	Hosts []string
	// Command is the remote command vector. Mutually exclusive with
	// ScriptPath.
	Command []string
	// ScriptPath is a local file streamed to the remote shell's stdin in lieu
	// of Command.
	ScriptPath string
	// EnvDefaultOpts are SSHP_OPTS, shell-split (spec.md 6). Inserted first
	// in the ssh argument vector.
	EnvDefaultOpts []string
	// PassThroughOpts are additional ssh options supplied by the
	// argument-parsing collaborator, inserted ahead of BatchMode and the
	// host argument.
	PassThroughOpts []string

	// Parallel is the worker pool's concurrency width.
	Parallel int
	// JobTimeout is the per-job timeout. Zero means no timeout.
	JobTimeout time.Duration
	// StartDelay is the inter-start delay applied to each worker's first
	// claim (spec.md 4.3's rate-smoothing).
	StartDelay time.Duration
	// KillGrace is the interval between a polite termination request and a
	// forceful kill.
	KillGrace time.Duration

	// LogRoot is the root directory under which run directories are created.
	LogRoot string
	// JobName optionally nests the run directory under a named subdirectory.
	JobName string
	// MaxDots controls DisplayHost derivation: MaxDotsShort (1) keeps only
	// the short name, MaxDotsFull (-1) keeps the whole name, k>0 keeps the
	// first k dot-separated labels.
	MaxDots int
	// Verbose enables debug logging to stderr (or DebugLogPath if set).
	Verbose bool
	// DebugLogPath, if non-empty, redirects debug logging to this file
	// instead of stderr — useful when stderr is already the renderer's
	// terminal.
	DebugLogPath string
	// MetricsAddr, if non-empty, starts the optional Prometheus exporter on
	// this address.
	MetricsAddr string
}

// Validate checks Config's invariants, following the teacher's
// Validator.Assert/AssertFunc/Err convention rather than hand-rolled if
// chains.
func (c Config) Validate() error {
	v := validator.New()
	v.Assert(len(c.Hosts) > 0, "at least one host is required")
	v.Assert(c.Parallel > 0, "parallel must be > 0")
	v.AssertFunc(func() bool { return len(c.Command) > 0 || c.ScriptPath != "" },
		"command or script_path is required")
	v.AssertFunc(func() bool { return !(len(c.Command) > 0 && c.ScriptPath != "") },
		"command and script_path are mutually exclusive")
	v.Assert(c.JobTimeout >= 0, "job timeout must be >= 0")
	v.Assert(c.StartDelay >= 0, "start delay must be >= 0")
	v.Assert(c.LogRoot != "", "log root is required")
	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DisplayHost derives the presentation form of host per MaxDots.
func DisplayHost(host string, maxDots int) string {
	if maxDots == MaxDotsFull {
		return host
	}

	// A user@host prefix is always kept; dot-trimming only applies to the
	// host portion.
	prefix := ""
	h := host
	for i := 0; i < len(host); i++ {
		if host[i] == '@' {
			prefix = host[:i+1]
			h = host[i+1:]
			break
		}
	}

	if maxDots <= 0 {
		return host
	}

	labels := splitDots(h)
	if maxDots >= len(labels) {
		return host
	}
	kept := labels[:maxDots]
	out := prefix
	for i, l := range kept {
		if i > 0 {
			out += "."
		}
		out += l
	}
	return out
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
