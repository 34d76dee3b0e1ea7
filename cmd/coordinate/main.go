package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dusk-indust/coordinate/internal/config"
	"github.com/dusk-indust/coordinate/internal/logging"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir    string
	LogLevel     string
	LogFormat    string
	Agents       string
	Discover     string
	MaxParallel  int
	AgentTimeout time.Duration
	Archive      string
	ServeMCP     bool
	MCPAddr      string
	Version      bool
}

// version is set by goreleaser at build time.
var version = "dev"

const usage = `usage: coordinate [flags] <command> [args]

commands:
  run <task.yml>          coordinate a task and print the session export
  diagram <task.yml>      print the task's dependency graph as Mermaid
  serve                   host the coordinator over HTTP
  serve-agent             host an echo agent over JSON-RPC
  sessions                list archived sessions
  export <session-id>     print an archived session
  init [dir]              write coordinate.yml and the .mcp.json entry
`

// app carries what every subcommand needs.
type app struct {
	flags  cliFlags
	cfg    *config.Config
	logger logging.Logger
	stdout io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var flags cliFlags

	fs := flag.NewFlagSet("coordinate", flag.ContinueOnError)
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory holding coordinate.yml")
	fs.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&flags.LogFormat, "log-format", "", "log format: text or json")
	fs.StringVar(&flags.Agents, "agents", "", "comma-separated remote agent URLs")
	fs.StringVar(&flags.Discover, "discover", "", "probe host:first-last for hosted agents")
	fs.IntVar(&flags.MaxParallel, "max-parallel", 0, "cap on concurrently running subtasks (0 = unbounded)")
	fs.DurationVar(&flags.AgentTimeout, "agent-timeout", 0, "per-invocation agent timeout")
	fs.StringVar(&flags.Archive, "archive", "", "path of the session archive")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as MCP server")
	fs.StringVar(&flags.MCPAddr, "mcp-addr", "", "serve MCP over streamable HTTP on this address instead of stdio")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}

	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return err
	}
	flags.applyTo(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}

	a := &app{flags: flags, cfg: cfg, logger: logger, stdout: stdout}

	if flags.ServeMCP {
		return a.serveMCP(ctx)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "run":
		return a.runTask(ctx, cmdArgs)
	case "diagram":
		return a.diagram(cmdArgs)
	case "serve":
		return a.serve(ctx, cmdArgs)
	case "serve-agent":
		return a.serveAgent(ctx, cmdArgs)
	case "sessions":
		return a.sessions(ctx, cmdArgs)
	case "export":
		return a.exportSession(ctx, cmdArgs)
	case "init":
		return a.initProject(cmdArgs)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// applyTo overrides config values with the flags that were set.
func (f cliFlags) applyTo(cfg *config.Config) {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.LogFormat = f.LogFormat
	}
	if f.MaxParallel > 0 {
		cfg.MaxParallel = f.MaxParallel
	}
	if f.AgentTimeout > 0 {
		cfg.AgentTimeout = f.AgentTimeout
	}
	if f.Archive != "" {
		cfg.ArchivePath = f.Archive
	}
	for _, u := range splitList(f.Agents) {
		cfg.Agents = append(cfg.Agents, config.RemoteAgent{URL: u})
	}
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
