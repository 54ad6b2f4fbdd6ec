// Command sshp runs a command (or a local script) in parallel across a set
// of remote hosts over the locally installed OpenSSH client, with a live
// terminal dashboard and durable per-host logs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjper/sshp/internal/log"
	"github.com/tjper/sshp/internal/sshp/config"
	"github.com/tjper/sshp/internal/sshp/driver"
	"github.com/tjper/sshp/internal/sshp/logstore"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sshp: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sshp [flags] -- command...",
	Short: "Run a command in parallel across remote hosts over ssh",
	Long: `sshp spawns the local ssh client once per host, runs each
connection concurrently inside a bounded worker pool, and shows a live
dashboard of progress while it streams every host's combined output to a
durable per-run log directory.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringSliceP("host", "H", nil, "target host (repeatable); may be user@host")
	flags.StringP("script", "s", "", "local script file streamed to the remote shell's stdin, instead of a command")
	flags.IntP("parallel", "P", 8, "number of concurrent ssh connections")
	flags.Duration("timeout", 0, "per-job timeout; 0 disables")
	flags.Duration("delay", 300*time.Millisecond, "inter-start delay applied to each worker's first job")
	flags.Duration("kill-grace", 2*time.Second, "grace period between a polite termination and a forceful kill")
	flags.String("log-root", defaultLogRoot(), "root directory under which run directories are created")
	flags.StringP("job-name", "j", "", "optional sub-directory nesting this run's logs")
	flags.Int("max-dots", config.MaxDotsFull, "domain labels kept in the displayed host name (1=short, -1=full, k>0=first k labels)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.String("debug-log", "", "write debug logging to this file instead of stderr (useful when the dashboard owns the terminal)")
	flags.String("metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	flags.StringArrayP("opt", "o", nil, "additional ssh option, e.g. -o StrictHostKeyChecking=no (repeatable via multiple -o)")

	rootCmd.AddCommand(queryCmd)
}

func defaultLogRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/sshp"
	}
	return "./sshp-logs"
}

func runRoot(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	hosts, _ := flags.GetStringSlice("host")
	script, _ := flags.GetString("script")
	parallel, _ := flags.GetInt("parallel")
	timeout, _ := flags.GetDuration("timeout")
	delay, _ := flags.GetDuration("delay")
	killGrace, _ := flags.GetDuration("kill-grace")
	logRoot, _ := flags.GetString("log-root")
	jobName, _ := flags.GetString("job-name")
	maxDots, _ := flags.GetInt("max-dots")
	verbose, _ := flags.GetBool("verbose")
	debugLogPath, _ := flags.GetString("debug-log")
	metricsAddr, _ := flags.GetString("metrics-addr")

	envOpts, err := config.EnvDefaultOptsFromEnviron()
	if err != nil {
		return err
	}

	opts, _ := flags.GetStringArray("opt")
	passThrough := make([]string, 0, len(opts)*2)
	for _, opt := range opts {
		passThrough = append(passThrough, "-o", opt)
	}

	cfg := config.Config{
		Hosts:           hosts,
		Command:         args,
		ScriptPath:      script,
		EnvDefaultOpts:  envOpts,
		PassThroughOpts: passThrough,
		Parallel:        parallel,
		JobTimeout:      timeout,
		StartDelay:      delay,
		KillGrace:       killGrace,
		LogRoot:         logRoot,
		JobName:         jobName,
		MaxDots:         maxDots,
		Verbose:         verbose,
		DebugLogPath:    debugLogPath,
		MetricsAddr:     metricsAddr,
	}

	logWriter := io.Writer(os.Stderr)
	if debugLogPath != "" {
		f, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open debug log %s: %w", debugLogPath, err)
		}
		defer f.Close()
		logWriter = f
	}
	logger := log.New(logWriter, "sshp ")

	result, err := driver.Run(context.Background(), cfg, os.Stdin, os.Stdout, logger)
	if err != nil {
		return err
	}

	if code := result.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}

var queryCmd = &cobra.Command{
	Use:   "query [patterns...]",
	Short: "Print files matching a run's logs (the -L surface)",
	Long: `query resolves one or more patterns against a run's directory and
prints the matching file paths, one per line. Recognized patterns:
"*.out", "*.status", "<status>.status", "<host>.out", and "hosts.list".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	flags := queryCmd.Flags()
	flags.String("log-root", defaultLogRoot(), "root directory under which run directories are created")
	flags.StringP("job-name", "j", "", "job sub-directory the run was nested under")
	flags.String("run", "latest", "run directory name, or \"latest\"")
}

func runQuery(cmd *cobra.Command, patterns []string) error {
	flags := cmd.Flags()
	logRoot, _ := flags.GetString("log-root")
	jobName, _ := flags.GetString("job-name")
	run, _ := flags.GetString("run")

	files, err := logstore.Query(logRoot, jobName, run, patterns)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}
