package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tjper/sshp/internal/sshp/kinds"
)

// Query resolves the -L query surface: a pure function from (runRoot,
// runID, patterns) to the list of files to print, per spec.md 4.2.
//
// runID may be "latest" (resolved via the jobName-scoped symlink) or an
// explicit timestamp-pid directory name. jobName may be empty.
func Query(runRoot, jobName, runID string, patterns []string) ([]string, error) {
	runDir, err := resolveRunDir(runRoot, jobName, runID)
	if err != nil {
		return nil, err
	}

	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := resolvePattern(runDir, pattern)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: pattern %q matched no files in %s", kinds.ErrLogQuery, pattern, runDir)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func resolveRunDir(runRoot, jobName, runID string) (string, error) {
	if runID == "" || runID == LatestName {
		link := LatestPath(runRoot, jobName)
		target, err := os.Readlink(link)
		if err != nil {
			return "", fmt.Errorf("%w: resolve latest: %v", kinds.ErrLogQuery, err)
		}
		if filepath.IsAbs(target) {
			return target, nil
		}
		return filepath.Join(filepath.Dir(link), target), nil
	}
	if jobName != "" {
		return filepath.Join(runRoot, jobName, runID), nil
	}
	return filepath.Join(runRoot, runID), nil
}

// resolvePattern honors the literal pattern vocabulary spec.md 4.2 lists:
// "*.out", "*.status", "<status>.status", "<host>.out", and "hosts.list".
// Any other pattern is a log_query_error.
func resolvePattern(runDir, pattern string) ([]string, error) {
	switch {
	case pattern == HostsListName:
		path := filepath.Join(runDir, HostsListName)
		if !exists(path) {
			return nil, nil
		}
		return []string{path}, nil

	case pattern == "*.out" || pattern == "*.status":
		entries, err := os.ReadDir(runDir)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", kinds.ErrLogQuery, runDir, err)
		}
		suffix := strings.TrimPrefix(pattern, "*")
		var out []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.HasSuffix(e.Name(), suffix) {
				out = append(out, filepath.Join(runDir, e.Name()))
			}
		}
		sort.Strings(out)
		return out, nil

	case strings.HasSuffix(pattern, ".status"):
		path := filepath.Join(runDir, pattern)
		if !exists(path) {
			return nil, nil
		}
		return []string{path}, nil

	case strings.HasSuffix(pattern, ".out"):
		path := filepath.Join(runDir, pattern)
		if !exists(path) {
			return nil, nil
		}
		return []string{path}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognized pattern %q", kinds.ErrLogQuery, pattern)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
