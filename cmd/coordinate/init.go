package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dusk-indust/coordinate/internal/config"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// coordinateMCPEntry is the MCP server configuration for the coordinate
// binary.
var coordinateMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "coordinate",
  "args": ["--serve-mcp"]
}`)

// starterConfig is written to coordinate.yml by init. Every key is
// optional; the commented ones show the defaults.
const starterConfig = `# coordinate configuration
logLevel: info
logFormat: text

# agentTimeout: 5m
# maxParallel: 0
# rebalanceThreshold: 1.5
# defaultAgentCapacity: 0  # 0 = unbounded

archivePath: .coordinate/archive

# agents:
#   - url: http://localhost:7001
#     capacity: 4
`

// initProject writes a starter coordinate.yml and registers the MCP server
// in .mcp.json of the target directory.
func (a *app) initProject(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite existing files and entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	cfgPath := filepath.Join(abs, config.FileNames[0])
	if _, err := os.Stat(cfgPath); err == nil && !*force {
		fmt.Fprintf(a.stdout, "  skipped %s (exists, use -force to overwrite)\n", dotRelative(abs, cfgPath))
	} else {
		if err := os.WriteFile(cfgPath, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		fmt.Fprintf(a.stdout, "  created %s\n", dotRelative(abs, cfgPath))
	}

	if err := a.mergeMCPConfig(filepath.Join(abs, ".mcp.json"), *force); err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, "\nSetup complete. The coordinate MCP server is ready.")
	return nil
}

// mergeMCPConfig creates or merges the coordinate entry into .mcp.json.
func (a *app) mergeMCPConfig(mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading %s: %w", mcpPath, err)
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["coordinate"]; exists && !force {
		fmt.Fprintln(a.stdout, "  skipped .mcp.json coordinate entry (exists, use -force to overwrite)")
		return nil
	}

	cfg.MCPServers["coordinate"] = coordinateMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(a.stdout, "  %s .mcp.json with coordinate MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
