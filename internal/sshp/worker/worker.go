// Package worker implements the long-lived unit of execution spec.md 4.3
// describes: it repeatedly pulls a host from the pool's queue, spawns ssh,
// streams output to the log and a last-line buffer, enforces timeout,
// reacts to kill requests, and records the outcome.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tjper/sshp/internal/log"
	"github.com/tjper/sshp/internal/sshp/job"
	"github.com/tjper/sshp/internal/sshp/kinds"
	"github.com/tjper/sshp/internal/sshp/logstore"
	"github.com/tjper/sshp/internal/sshp/pool"
)

// Config bundles everything every Worker in a run shares.
type Config struct {
	Pool            *pool.Pool
	RunDir          string
	EnvDefaultOpts  []string
	PassThroughOpts []string
	JobTimeout      time.Duration
	KillGrace       time.Duration
	StartDelay      time.Duration
	Logger          *log.Logger
	// OnFatal, if set, is called with a kinds.ErrIO-wrapped error when a
	// host's log file cannot be opened (spec.md 7's io_error: an
	// infrastructure failure, not a per-host one). The caller (the driver)
	// is expected to stop the pool and propagate the error, restoring the
	// terminal and exiting non-zero.
	OnFatal func(error)
}

// occurrences disambiguates duplicate hosts' log files (SPEC_FULL.md's Open
// Question decision), shared by every Worker in a run.
type occurrences struct {
	mutex sync.Mutex
	count map[string]int
}

func newOccurrences() *occurrences {
	return &occurrences{count: make(map[string]int)}
}

func (o *occurrences) next(host string) int {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.count[host]++
	return o.count[host]
}

// Group owns every Worker in a run and its shared bookkeeping.
type Group struct {
	cfg   Config
	occ   *occurrences
	count int
}

// NewGroup creates a Group of count Workers sharing cfg.
func NewGroup(cfg Config, count int) *Group {
	return &Group{cfg: cfg, occ: newOccurrences(), count: count}
}

// Run starts every Worker and blocks until all have exited (the pool is
// stopping, aborted-and-drained, or the queue is exhausted). A panic inside
// any single Worker is recovered so it cannot prevent the others from
// completing (spec.md 7).
func (g *Group) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for id := 0; id < g.count; id++ {
		wg.Add(1)
		w := &Worker{id: id, cfg: g.cfg, occ: g.occ}
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					g.cfg.Logger.Errorf("worker %d panic recovered: %v", w.id, r)
				}
			}()
			w.run(ctx)
		}()
	}
	wg.Wait()
}

// Worker is one long-lived unit of execution (spec.md 3's conceptual
// WorkerSlot, minus the display-only fields the pool.Slot already owns).
type Worker struct {
	id  int
	cfg Config
	occ *occurrences
}

// run is the worker loop contract of spec.md 4.3.
func (w *Worker) run(ctx context.Context) {
	if w.cfg.StartDelay > 0 {
		delay := time.Duration(w.id) * w.cfg.StartDelay
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	for {
		j, result := w.cfg.Pool.ClaimNext(ctx, w.id)
		if result == pool.ClaimExit {
			return
		}
		w.runJob(ctx, j)
		w.cfg.Pool.Release(w.id)
	}
}

func describeCmd(j *job.Job) string {
	if j.ScriptPath != "" {
		return fmt.Sprintf("<script:%s>", j.ScriptPath)
	}
	return strings.Join(j.Command, " ")
}

func (w *Worker) runJob(ctx context.Context, j *job.Job) {
	j.Start()

	occurrence := w.occ.next(j.Host)
	logPath := logstore.HostLogPath(w.cfg.RunDir, j.Host, occurrence)

	start := time.Now()
	writer, err := logstore.OpenHostWriter(logPath, j.Host, describeCmd(j), start)
	if err != nil {
		w.cfg.Logger.Errorf("open log for %s: %v", j.Host, err)
		j.FinishSpawnError()
		// io_error is an infrastructure failure (spec.md 7), not a per-host
		// one: it is fatal to the whole run, not just this job.
		if w.cfg.OnFatal != nil {
			w.cfg.OnFatal(fmt.Errorf("%w: open log for %s: %v", kinds.ErrIO, j.Host, err))
		}
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := buildCmd(jobCtx, w.cfg.EnvDefaultOpts, w.cfg.PassThroughOpts, j.Host, j.Command)

	var stdinFile *os.File
	if j.ScriptPath != "" {
		f, err := scriptStdin(j.ScriptPath)
		if err != nil {
			w.cfg.Logger.Errorf("script stdin for %s: %v", j.Host, err)
			_ = writer.CloseSpawnError(time.Now(), err)
			j.FinishSpawnError()
			return
		}
		stdinFile = f
		cmd.Stdin = f
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		w.cfg.Logger.Errorf("open output pipe for %s: %v", j.Host, err)
		_ = writer.CloseSpawnError(time.Now(), fmt.Errorf("%w: open output pipe: %v", kinds.ErrSpawn, err))
		j.FinishSpawnError()
		if stdinFile != nil {
			stdinFile.Close()
		}
		return
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	w.cfg.Logger.Debugf("worker %d spawning %s for %s", w.id, sshBinary, j.Host)

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		if stdinFile != nil {
			stdinFile.Close()
		}
		w.cfg.Logger.Errorf("spawn ssh for %s: %v", j.Host, err)
		_ = writer.CloseSpawnError(time.Now(), fmt.Errorf("%w: %v", kinds.ErrSpawn, err))
		j.FinishSpawnError()
		return
	}
	pw.Close()

	streamDone := make(chan struct{})
	go w.streamOutput(pr, writer, j, streamDone)

	waitErrCh := make(chan error, 1)
	go func() { waitErrCh <- cmd.Wait() }()

	waitErr := w.supervise(ctx, cmd, j, waitErrCh)

	if stdinFile != nil {
		stdinFile.Close()
	}

	// Property 4: no write to a host's log after its terminal state is
	// published. Wait for the output pump to observe EOF before closing the
	// writer and finishing the Job.
	<-streamDone

	end := time.Now()
	code, spawnErr := exitCode(waitErr)
	if spawnErr != nil {
		_ = writer.CloseSpawnError(end, spawnErr)
		j.FinishSpawnError()
		return
	}

	// Property 4: no write to a host's log after its terminal state is
	// published. Compute the classification and close the writer with it
	// before Finish makes the Job's terminal state observable to the
	// renderer, Registry.Counts, and the driver's drain check.
	state := job.Classify(j.KillRequested(), j.TimedOut(), code)
	if err := writer.Close(end, code, state); err != nil {
		w.cfg.Logger.Errorf("close log for %s: %v", j.Host, err)
	}
	j.Finish(code)
}

// streamOutput drains the child's combined stdout+stderr pipe, writing each
// line to the log and publishing the trimmed last non-empty line to the
// Job for the renderer. Closes done once the pipe reaches EOF.
func (w *Worker) streamOutput(pr *os.File, writer *logstore.HostWriter, j *job.Job, done chan<- struct{}) {
	defer close(done)
	defer pr.Close()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if err := writer.WriteLine(line); err != nil {
			w.cfg.Logger.Errorf("write line for %s: %v", j.Host, err)
		}
		j.SetLastLine(line)
	}
}

// supervise watches for child exit, timeout expiry, and kill requests,
// escalating from a polite termination to a forceful one after the grace
// window (spec.md 4.3 step 7). It returns the error cmd.Wait() produced.
func (w *Worker) supervise(ctx context.Context, cmd *exec.Cmd, j *job.Job, waitErrCh <-chan error) error {
	var timeoutC <-chan time.Time
	if w.cfg.JobTimeout > 0 {
		timer := time.NewTimer(w.cfg.JobTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	pollTicker := time.NewTicker(25 * time.Millisecond)
	defer pollTicker.Stop()

	stopEscalation := make(chan struct{})
	var closeOnce sync.Once
	killTriggered := false
	doneC := ctx.Done()

	trigger := func() {
		killTriggered = true
		w.terminate(cmd)
		go w.escalateAfterGrace(cmd, w.cfg.KillGrace, stopEscalation)
	}

	for {
		select {
		case err := <-waitErrCh:
			closeOnce.Do(func() { close(stopEscalation) })
			return err

		case <-timeoutC:
			timeoutC = nil
			if !killTriggered {
				j.MarkTimedOut()
				trigger()
			}

		case <-pollTicker.C:
			if !killTriggered && j.KillRequested() {
				trigger()
			}

		case <-doneC:
			doneC = nil
			if !killTriggered {
				trigger()
			}
		}
	}
}

// terminate sends a polite termination signal to the child's whole local
// process group (it was started with Setpgid, so a local ProxyCommand child
// of ssh is reached too). Processes on the remote host are not signaled.
func (w *Worker) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// escalateAfterGrace sends SIGKILL to the child's process group if it has
// not exited within grace. stop is closed once the child has already been
// reaped, canceling the escalation.
func (w *Worker) escalateAfterGrace(cmd *exec.Cmd, grace time.Duration, stop <-chan struct{}) {
	select {
	case <-time.After(grace):
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	case <-stop:
	}
}
