package logstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tjper/sshp/internal/sshp/job"
)

func TestHostLogPathDisambiguatesDuplicates(t *testing.T) {
	tests := map[string]struct {
		occurrence int
		want       string
	}{
		"first":  {occurrence: 1, want: "h1.out"},
		"second": {occurrence: 2, want: "h1~2.out"},
		"third":  {occurrence: 3, want: "h1~3.out"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := HostLogPath("/run", "h1", test.occurrence)
			if got != filepath.Join("/run", test.want) {
				t.Fatalf("unexpected path; actual: %s, expected: %s", got, filepath.Join("/run", test.want))
			}
		})
	}
}

func TestRunDirWithAndWithoutJobName(t *testing.T) {
	if got, want := RunDir("/root", "", "20260101T000000Z", 123), "/root/20260101T000000Z-123"; got != want {
		t.Fatalf("unexpected run dir; actual: %s, expected: %s", got, want)
	}
	if got, want := RunDir("/root", "nightly", "20260101T000000Z", 123), "/root/nightly/20260101T000000Z-123"; got != want {
		t.Fatalf("unexpected run dir; actual: %s, expected: %s", got, want)
	}
}

func TestWriteHostsListAndStatusFiles(t *testing.T) {
	dir := t.TempDir()

	hosts := []string{"h1", "h2", "h3"}
	if err := WriteHostsList(dir, hosts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, HostsListName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "h1\nh2\nh3\n" {
		t.Fatalf("unexpected hosts.list contents: %q", data)
	}

	byState := map[job.State][]string{
		job.Success: {"h1"},
		job.Failed:  {"h2"},
	}
	if err := WriteStatusFiles(dir, byState); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for state, want := range map[job.State]string{
		job.Success: "h1\n",
		job.Failed:  "h2\n",
		job.Timeout: "",
		job.Killed:  "",
		job.Aborted: "",
	} {
		data, err := os.ReadFile(StatusPath(dir, state))
		if err != nil {
			t.Fatalf("unexpected error reading %s.status: %v", state, err)
		}
		if string(data) != want {
			t.Fatalf("unexpected %s.status contents; actual: %q, expected: %q", state, data, want)
		}
	}
}

func TestUpdateLatest(t *testing.T) {
	root := t.TempDir()
	runDir := RunDir(root, "", "20260101T000000Z", 1)
	if err := EnsureDir(runDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := UpdateLatest(root, "", runDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target, err := os.Readlink(LatestPath(root, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != filepath.Base(runDir) {
		t.Fatalf("unexpected symlink target; actual: %s, expected: %s", target, filepath.Base(runDir))
	}

	// Repointing to a second run must not fail (symlink already exists).
	runDir2 := RunDir(root, "", "20260101T000001Z", 2)
	if err := EnsureDir(runDir2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := UpdateLatest(root, "", runDir2); err != nil {
		t.Fatalf("unexpected error repointing latest: %v", err)
	}
	target, err = os.Readlink(LatestPath(root, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != filepath.Base(runDir2) {
		t.Fatalf("unexpected symlink target after repoint; actual: %s, expected: %s", target, filepath.Base(runDir2))
	}
}
