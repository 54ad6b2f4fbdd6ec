package logstore

import (
	"os"
	"path/filepath"
	"testing"
)

func setupRun(t *testing.T) (root, runDir string) {
	t.Helper()
	root = t.TempDir()
	runDir = RunDir(root, "", "20260101T000000Z", 42)
	if err := EnsureDir(runDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"h1.out", "h2.out", "success.status", "failed.status", "hosts.list"} {
		if err := os.WriteFile(filepath.Join(runDir, name), []byte("x\n"), FileMode); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := UpdateLatest(root, "", runDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return root, runDir
}

func TestQueryResolvesWildcards(t *testing.T) {
	root, runDir := setupRun(t)

	tests := map[string]struct {
		patterns []string
		want     []string
	}{
		"all out files": {
			patterns: []string{"*.out"},
			want:     []string{filepath.Join(runDir, "h1.out"), filepath.Join(runDir, "h2.out")},
		},
		"all status files": {
			patterns: []string{"*.status"},
			want:     []string{filepath.Join(runDir, "failed.status"), filepath.Join(runDir, "success.status")},
		},
		"single status": {
			patterns: []string{"success.status"},
			want:     []string{filepath.Join(runDir, "success.status")},
		},
		"single host": {
			patterns: []string{"h1.out"},
			want:     []string{filepath.Join(runDir, "h1.out")},
		},
		"hosts list": {
			patterns: []string{"hosts.list"},
			want:     []string{filepath.Join(runDir, "hosts.list")},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Query(root, "", "latest", test.patterns)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(test.want) {
				t.Fatalf("unexpected files; actual: %v, expected: %v", got, test.want)
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Fatalf("unexpected files; actual: %v, expected: %v", got, test.want)
				}
			}
		})
	}
}

func TestQueryUnknownPatternErrors(t *testing.T) {
	root, _ := setupRun(t)
	if _, err := Query(root, "", "latest", []string{"*.txt"}); err == nil {
		t.Fatalf("expected an error for an unrecognized pattern")
	}
}

func TestQueryNoMatchErrors(t *testing.T) {
	root, _ := setupRun(t)
	if _, err := Query(root, "", "latest", []string{"timeout.status"}); err == nil {
		t.Fatalf("expected an error when a pattern matches no files")
	}
}

func TestQueryExplicitRunID(t *testing.T) {
	root, runDir := setupRun(t)
	got, err := Query(root, "", filepath.Base(runDir), []string{"hosts.list"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != filepath.Join(runDir, "hosts.list") {
		t.Fatalf("unexpected result: %v", got)
	}
}
