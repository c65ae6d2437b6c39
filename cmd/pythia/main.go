// Command pythia installs the runtime selected for the current host into the
// build directory and hands over to the project's task runner.
//
// Usage:
//
//	pythia [--config pythia.yaml] [--verbose] [command] [args...]
//
// Commands:
//
//	run      install the runtime, then run the task runner with args (default)
//	install  install the runtime only
//	detect   print the detected platform and selected version [--json]
//	status   interactive detection view [--interval duration]
//	history  list previous runs [--limit N]
//	clean    remove the build directory
//	purge    remove the build and cache directories
//	version  print version and exit
//
// Any other first argument is passed to the task runner, so "pythia test"
// is "pythia run test". Fatal errors exit with the code of their class, see
// package failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chevah/pythia/internal/config"
	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/platform"
	"github.com/chevah/pythia/pkg/buildinfo"
)

var commands = map[string]func(*app, context.Context, []string) error{
	"run":     (*app).cmdRun,
	"install": (*app).cmdInstall,
	"detect":  (*app).cmdDetect,
	"status":  (*app).cmdStatus,
	"history": (*app).cmdHistory,
	"clean":   (*app).cmdClean,
	"purge":   (*app).cmdPurge,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit status. A nil
// host means the live machine.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, host platform.Host) int {
	fs := flag.NewFlagSet("pythia", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "pythia.yaml", "configuration file (optional)")
	verbose := fs.Bool("verbose", false, "log debug messages")
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return int(failure.Generic)
	}

	name, rest := "run", fs.Args()
	if len(rest) > 0 {
		switch rest[0] {
		case "version":
			fmt.Fprintln(stdout, buildinfo.String())
			return 0
		case "help":
			printUsage(stdout, fs)
			return 0
		}
		if _, ok := commands[rest[0]]; ok {
			name, rest = rest[0], rest[1:]
		}
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fatal(stderr, err)
	}
	if host == nil {
		host = platform.NewLiveHost()
	}

	a := newApp(cfg, logger, host, stdout, stderr)
	if err := commands[name](a, ctx, rest); err != nil {
		return fatal(stderr, err)
	}
	return 0
}

// fatal reports err on one line and returns its exit code. Exit statuses of
// the delegated task runner pass through untouched.
func fatal(stderr io.Writer, err error) int {
	var exit *exitStatus
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(stderr, "pythia: %v\n", err)
	if failure.Is(err, failure.ArtifactNotFound) {
		fmt.Fprintln(stderr, "pythia: check python_configuration and binary_dist_uri for this platform")
	}
	return int(failure.CodeOf(err))
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "pythia: runtime bootstrapper")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pythia [flags] [run] [task args...]   install the runtime and run the task runner")
	fmt.Fprintln(w, "  pythia [flags] install                install the runtime only")
	fmt.Fprintln(w, "  pythia [flags] detect [--json]        show the detected platform and version")
	fmt.Fprintln(w, "  pythia [flags] status [--interval d]  interactive detection view")
	fmt.Fprintln(w, "  pythia [flags] history [--limit n]    list previous runs")
	fmt.Fprintln(w, "  pythia [flags] clean | purge          remove build (and cache) directories")
	fmt.Fprintln(w, "  pythia version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}
