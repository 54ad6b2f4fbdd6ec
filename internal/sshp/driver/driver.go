// Package driver wires the pool, worker Group, control plane, renderer, and
// metrics exporter together into the single run spec.md 4 describes end to
// end: create the run directory, spawn every collaborator, wait for drain,
// and produce the final exit code and summary.
package driver

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tjper/sshp/internal/log"
	"github.com/tjper/sshp/internal/sshp/config"
	"github.com/tjper/sshp/internal/sshp/control"
	"github.com/tjper/sshp/internal/sshp/job"
	"github.com/tjper/sshp/internal/sshp/logstore"
	"github.com/tjper/sshp/internal/sshp/metrics"
	"github.com/tjper/sshp/internal/sshp/pool"
	"github.com/tjper/sshp/internal/sshp/render"
	"github.com/tjper/sshp/internal/sshp/term"
	"github.com/tjper/sshp/internal/sshp/worker"
)

// renderInterval is the renderer's fixed redraw cadence (spec.md 4.6's
// "~10Hz").
const renderInterval = 100 * time.Millisecond

// Result is the outcome of a single Run, from which the process exit code is
// derived.
type Result struct {
	RunDir string
	Counts job.Counts
}

// ExitCode maps a Result to the process exit code spec.md 4.7 specifies:
// zero if every Job succeeded, otherwise the non-success count capped at
// 255 so it always fits a process exit status.
func (r Result) ExitCode() int {
	n := r.Counts.NonSuccess()
	if n > 255 {
		return 255
	}
	return n
}

// Run executes one complete sshp invocation against cfg and returns its
// Result. stdin/stdout are the terminal file descriptors the control plane
// and renderer attach to; logger receives diagnostic output throughout.
func Run(ctx context.Context, cfg config.Config, stdin, stdout *os.File, logger *log.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if cfg.Verbose {
		logger.EnableDebug()
	}

	start := time.Now()
	pid := os.Getpid()
	timestamp := start.UTC().Format("20060102T150405Z")
	runDir := logstore.RunDir(cfg.LogRoot, cfg.JobName, timestamp, pid)

	if err := logstore.EnsureDir(runDir); err != nil {
		return Result{}, err
	}
	if err := logstore.WriteHostsList(runDir, cfg.Hosts); err != nil {
		return Result{}, err
	}
	if err := logstore.UpdateLatest(cfg.LogRoot, cfg.JobName, runDir); err != nil {
		logger.Warnf("update latest symlink: %v", err)
	}

	registry := job.NewRegistry()
	jobs := make([]*job.Job, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		display := config.DisplayHost(h, cfg.MaxDots)
		jobs = append(jobs, job.New(h, display, cfg.Command, cfg.ScriptPath))
	}

	p := pool.New(cfg.Parallel, jobs, registry)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var renderer *render.Renderer
	interactive := stdout != nil && term.IsTerminal(int(stdout.Fd()))
	if interactive {
		renderer = render.New(stdout, int(stdout.Fd()), p, term.SymbolsFromEnv(), start)
	}

	ctl := control.New(p, logger, stdin, func() {
		if renderer != nil {
			renderer.Trigger()
		}
	})
	go ctl.Run(runCtx)

	renderDone := make(chan struct{})
	if renderer != nil {
		go func() {
			renderer.Run(renderDone, renderInterval)
		}()
	}

	var exporter *metrics.Exporter
	if cfg.MetricsAddr != "" {
		exporter = metrics.New(registry, start, logger)
		if err := exporter.Start(cfg.MetricsAddr); err != nil {
			logger.Warnf("start metrics exporter on %s: %v", cfg.MetricsAddr, err)
			exporter = nil
		}
	}

	// A log-open failure is an infrastructure error (spec.md 7's io_error),
	// fatal to the whole run rather than to one host: capture the first one
	// any worker reports and stop the pool so every worker drains promptly,
	// regardless of which one trips it.
	var fatalOnce sync.Once
	var fatalErr error
	onFatal := func(err error) {
		fatalOnce.Do(func() { fatalErr = err })
		p.Stop()
	}

	group := worker.NewGroup(worker.Config{
		Pool:            p,
		RunDir:          runDir,
		EnvDefaultOpts:  cfg.EnvDefaultOpts,
		PassThroughOpts: cfg.PassThroughOpts,
		JobTimeout:      cfg.JobTimeout,
		KillGrace:       cfg.KillGrace,
		StartDelay:      cfg.StartDelay,
		Logger:          logger,
		OnFatal:         onFatal,
	}, cfg.Parallel)

	group.Run(runCtx)

	p.Stop()
	if renderer != nil {
		close(renderDone)
	}
	ctl.Stop()

	if exporter != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = exporter.Stop(stopCtx)
		stopCancel()
	}

	if err := logstore.WriteStatusFiles(runDir, registry.ByState()); err != nil {
		logger.Errorf("write status files: %v", err)
	}

	counts := registry.Counts()
	printSummary(stdout, runDir, counts, time.Since(start))

	// Cleanup above (renderer, control plane, exporter, status files) always
	// runs so the terminal is restored even on the fatal path (spec.md 7).
	return Result{RunDir: runDir, Counts: counts}, fatalErr
}

func printSummary(out *os.File, runDir string, counts job.Counts, elapsed time.Duration) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "\nrun %s: total=%d success=%d failed=%d timeout=%d killed=%d aborted=%d elapsed=%s\n",
		runDir, counts.Total(), counts.Success, counts.Failed, counts.Timeout, counts.Killed, counts.Aborted,
		elapsed.Truncate(time.Second))
}

// FormatExitCode renders an exit code for inclusion in a log line, since
// os.Exit itself happens in cmd/sshp.
func FormatExitCode(code int) string {
	return strconv.Itoa(code)
}
