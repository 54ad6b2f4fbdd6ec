package worker

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestBuildCmdArgumentOrder(t *testing.T) {
	cmd := buildCmd(context.Background(), []string{"-o", "ForwardAgent=no"}, []string{"-p", "2222"}, "h1", []string{"echo", "hi"})

	got := strings.Join(cmd.Args[1:], " ")
	want := "-o ForwardAgent=no -p 2222 -o BatchMode=yes h1 echo hi"
	if got != want {
		t.Fatalf("unexpected argument order; actual: %q, expected: %q", got, want)
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("expected Setpgid to place the child in its own process group")
	}
}

func TestExitCodeClassification(t *testing.T) {
	if code, err := exitCode(nil); code != 0 || err != nil {
		t.Fatalf("unexpected result for nil error: code=%d err=%v", code, err)
	}

	failing := exec.Command("sh", "-c", "exit 7")
	runErr := failing.Run()
	code, err := exitCode(runErr)
	if err != nil {
		t.Fatalf("unexpected spawn error: %v", err)
	}
	if code != 7 {
		t.Fatalf("unexpected exit code; actual: %d, expected: 7", code)
	}

	missing := exec.Command("/nonexistent/binary/sshp-test")
	runErr = missing.Run()
	_, spawnErr := exitCode(runErr)
	if spawnErr == nil {
		t.Fatalf("expected a spawn error when the binary cannot be started")
	}
}

func TestScriptStdinOpensFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/script.sh"
	if err := writeFile(path, "echo hi\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := scriptStdin(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	if _, err := scriptStdin(dir + "/missing.sh"); err == nil {
		t.Fatalf("expected an error for a missing script file")
	}
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
