package worker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"

	pkgerrors "github.com/pkg/errors"

	"github.com/tjper/sshp/internal/sshp/kinds"
)

// sshBinary is the child process spawn contract's binary. A package-level
// var (rather than a const) so tests can point it at a stand-in script
// without spawning a real ssh client.
var sshBinary = "ssh"

// SetSSHBinaryForTest points the spawn contract at path for the duration of
// a test and returns a restore func, so integration tests in other packages
// (e.g. the driver) can exercise worker.Group.Run against a fake ssh without
// a real client or network.
func SetSSHBinaryForTest(path string) (restore func()) {
	orig := sshBinary
	sshBinary = path
	return func() { sshBinary = orig }
}

// buildCmd constructs the ssh child exec.Cmd per the spawn contract:
// [envDefaultOpts..., passThroughOpts..., host, remoteCmdTokens...] with
// -o BatchMode=yes always injected. This is adapted from the teacher's
// internal/jobworker/reexec.Exec, which built an *exec.Cmd from piped job
// data; here the command is aimed directly at the ssh binary instead of a
// reexec'd grandchild, since there is no cgroup placement to wait for.
func buildCmd(ctx context.Context, envOpts, passThroughOpts []string, host string, remoteCmd []string) *exec.Cmd {
	args := make([]string, 0, len(envOpts)+len(passThroughOpts)+2+len(remoteCmd))
	args = append(args, envOpts...)
	args = append(args, passThroughOpts...)
	args = append(args, "-o", "BatchMode=yes")
	args = append(args, host)
	args = append(args, remoteCmd...)

	cmd := exec.CommandContext(ctx, sshBinary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// exitCode classifies an exec.Cmd.Wait error into an integer exit code,
// adapted from the teacher's internal/jobworker/reexec.exitCode (same
// exec.ExitError / syscall.WaitStatus inspection, generalized to any
// non-reexec'd child).
func exitCode(err error) (code int, spawnErr error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus(), nil
		}
		return -1, nil
	}

	// err is not an ExitError: the child never ran (spawn_error, spec.md 7).
	return -1, pkgerrors.Wrapf(kinds.ErrSpawn, "spawn ssh child: %v", err)
}

// scriptStdin opens path for reading, to be wired as the child's stdin.
// The caller is responsible for closing the returned file once the child
// has consumed it (or failed to start).
func scriptStdin(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(kinds.ErrSpawn, "open script %s: %v", path, err)
	}
	return f, nil
}
