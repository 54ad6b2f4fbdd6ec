package config

import (
	"fmt"
	"os"

	shellquote "github.com/kballard/go-shellquote"
)

// EnvDefaultOptsFromEnviron reads and shell-splits SSHP_OPTS, spec.md 6's
// "default extra ssh options" environment variable. An unset or empty
// SSHP_OPTS yields no options.
func EnvDefaultOptsFromEnviron() ([]string, error) {
	raw := os.Getenv("SSHP_OPTS")
	if raw == "" {
		return nil, nil
	}
	opts, err := shellquote.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("split SSHP_OPTS: %w", err)
	}
	return opts, nil
}

// DomainsFromEnviron reads SSHP_DOMAINS, the space-separated domain search
// list the (out-of-scope) hostname-resolution collaborator consumes. The
// core itself never uses this value; it is read here only so cmd/sshp can
// hand it to that collaborator without duplicating env-var parsing.
func DomainsFromEnviron() []string {
	raw := os.Getenv("SSHP_DOMAINS")
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ' ' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
