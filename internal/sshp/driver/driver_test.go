package driver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/tjper/sshp/internal/log"
	"github.com/tjper/sshp/internal/sshp/config"
	"github.com/tjper/sshp/internal/sshp/kinds"
	"github.com/tjper/sshp/internal/sshp/worker"
)

// fakeSSH installs a stand-in ssh binary that strips the fixed three-token
// "-o BatchMode=yes <host>" prefix worker.buildCmd always inserts and execs
// whatever remote command tokens remain, so Run can be driven end to end
// without a real ssh client or network.
func fakeSSH(t *testing.T) (restore func()) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ssh")
	script := "#!/bin/sh\nshift 3\nexec \"$@\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return worker.SetSSHBinaryForTest(path)
}

func TestRunDrivesSuccessfulJobsToCompletion(t *testing.T) {
	defer fakeSSH(t)()

	logRoot := t.TempDir()
	cfg := config.Config{
		Hosts:      []string{"h1", "h2", "h3"},
		Command:    []string{"sh", "-c", "echo ok"},
		Parallel:   2,
		LogRoot:    logRoot,
		JobName:    "demo",
		MaxDots:    config.MaxDotsFull,
		KillGrace:  0,
		JobTimeout: 0,
	}

	logger := log.New(io.Discard, "test ")

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer devNull.Close()
	outFile, err := os.CreateTemp(t.TempDir(), "stdout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer outFile.Close()

	result, err := Run(context.Background(), cfg, devNull, outFile, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Counts.Success != 3 {
		t.Fatalf("unexpected success count: %d", result.Counts.Success)
	}
	if result.ExitCode() != 0 {
		t.Fatalf("unexpected exit code: %d", result.ExitCode())
	}

	if _, err := os.Stat(filepath.Join(result.RunDir, "hosts.list")); err != nil {
		t.Fatalf("expected hosts.list to be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(result.RunDir, "success.status")); err != nil {
		t.Fatalf("expected success.status to be written: %v", err)
	}
}

func TestRunReflectsNonZeroExitsInExitCode(t *testing.T) {
	defer fakeSSH(t)()

	logRoot := t.TempDir()
	cfg := config.Config{
		Hosts:    []string{"h1", "h2"},
		Command:  []string{"sh", "-c", "exit 1"},
		Parallel: 2,
		LogRoot:  logRoot,
	}

	logger := log.New(io.Discard, "test ")
	devNull, _ := os.Open(os.DevNull)
	defer devNull.Close()

	result, err := Run(context.Background(), cfg, devNull, nil, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Counts.Failed != 2 {
		t.Fatalf("unexpected failed count: %d", result.Counts.Failed)
	}
	if result.ExitCode() != 2 {
		t.Fatalf("unexpected exit code: %d", result.ExitCode())
	}
}

func TestRunPropagatesFatalIOErrorAndStopsThePool(t *testing.T) {
	defer fakeSSH(t)()

	logRoot := t.TempDir()
	cfg := config.Config{
		// "bad/host" makes logstore.HostLogPath join in a path separator;
		// OpenHostWriter's os.OpenFile then fails with ENOENT since nothing
		// creates the intermediate "bad" directory, forcing the io_error
		// path deterministically rather than relying on permission tricks.
		Hosts:    []string{"bad/host", "h2", "h3"},
		Command:  []string{"sh", "-c", "echo ok"},
		Parallel: 1,
		LogRoot:  logRoot,
	}

	logger := log.New(io.Discard, "test ")
	devNull, _ := os.Open(os.DevNull)
	defer devNull.Close()

	result, err := Run(context.Background(), cfg, devNull, nil, logger)
	if err == nil {
		t.Fatalf("expected a fatal io_error to propagate")
	}
	if !errors.Is(err, kinds.ErrIO) {
		t.Fatalf("expected err to wrap kinds.ErrIO, got: %v", err)
	}

	// The pool must have been stopped promptly: with Parallel 1, bad/host
	// itself accounts for the single Failed count, and none of the remaining
	// hosts should have been claimed and run once the fatal error fired.
	if result.Counts.Success+result.Counts.Failed > 1 {
		t.Fatalf("expected the pool to stop after the fatal error, got counts: %+v", result.Counts)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.Config{}
	if _, err := Run(context.Background(), cfg, nil, nil, log.New(io.Discard, "test ")); err == nil {
		t.Fatalf("expected an error for an invalid config")
	}
}
