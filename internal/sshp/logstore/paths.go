// Package logstore implements the run-directory layout and per-host log
// writer spec.md 4.2/6 specify, and the pure -L query-resolution function.
// File path helpers are adapted from the teacher's internal/jobworker/
// output.File and internal/jobworker/log.File, generalized from a single
// per-job-ID file to the full run-directory layout.
package logstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tjper/sshp/internal/sshp/job"
)

// HostsListName and LatestName are the fixed filenames spec.md 6's run
// directory layout specifies; *.status names come from StatusPath.
const (
	HostsListName = "hosts.list"
	LatestName    = "latest"
	// DirMode and FileMode are applied to every path this package creates.
	DirMode  = 0o755
	FileMode = 0o644
)

// RunDir computes the run directory path for a given root, optional job
// name, and timestamp+pid suffix.
func RunDir(root, jobName string, timestamp string, pid int) string {
	suffix := fmt.Sprintf("%s-%d", timestamp, pid)
	if jobName != "" {
		return filepath.Join(root, jobName, suffix)
	}
	return filepath.Join(root, suffix)
}

// LatestPath computes the path of the stable `latest` symlink for root and
// the optional job name scope.
func LatestPath(root, jobName string) string {
	if jobName != "" {
		return filepath.Join(root, jobName, LatestName)
	}
	return filepath.Join(root, LatestName)
}

// HostLogPath returns the path of host's combined output file within
// runDir. occurrence is 1 for a host's first Job in the run and increments
// for every subsequent duplicate (SPEC_FULL.md's Open Question decision:
// duplicates get a disambiguating suffix instead of silently overwriting
// each other's header).
func HostLogPath(runDir, host string, occurrence int) string {
	if occurrence <= 1 {
		return filepath.Join(runDir, host+".out")
	}
	return filepath.Join(runDir, fmt.Sprintf("%s~%d.out", host, occurrence))
}

// StatusPath returns the path of the *.status file for the given terminal
// state within runDir.
func StatusPath(runDir string, state job.State) string {
	return filepath.Join(runDir, string(state)+".status")
}

// EnsureDir creates dir (and parents) with DirMode if it does not already
// exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// WriteHostsList writes hosts, one per line, to runDir/hosts.list. Per
// spec.md 3, this happens eagerly, before the first job starts.
func WriteHostsList(runDir string, hosts []string) error {
	path := filepath.Join(runDir, HostsListName)
	var buf []byte
	for _, h := range hosts {
		buf = append(buf, h...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(path, buf, FileMode); err != nil {
		return fmt.Errorf("write %s: %w", HostsListName, err)
	}
	return nil
}

// WriteStatusFiles writes one *.status file for each of the five terminal
// states, each a newline-terminated list of byState's hosts in the order
// given (registry order when byState comes from Registry.ByState). States
// with zero hosts still get an (empty) file, per spec.md 3's "possibly
// empty" wording.
func WriteStatusFiles(runDir string, byState map[job.State][]string) error {
	allStates := []job.State{job.Success, job.Failed, job.Timeout, job.Killed, job.Aborted}
	for _, s := range allStates {
		hosts := byState[s]
		var buf []byte
		for _, h := range hosts {
			buf = append(buf, h...)
			buf = append(buf, '\n')
		}
		if err := os.WriteFile(StatusPath(runDir, s), buf, FileMode); err != nil {
			return fmt.Errorf("write %s.status: %w", s, err)
		}
	}
	return nil
}

// UpdateLatest repoints the `latest` symlink at runDir's base name. The
// symlink is recreated (remove-then-create) rather than updated in place,
// since os.Symlink cannot overwrite an existing link; the two steps are not
// atomic, so `latest` is briefly absent between them.
func UpdateLatest(root, jobName, runDir string) error {
	link := LatestPath(root, jobName)
	target := filepath.Base(runDir)
	_ = os.Remove(link)
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("update latest symlink: %w", err)
	}
	return nil
}
