package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewCoordinatorMCPServer creates an MCP server with the coordinator tools
// registered.
func NewCoordinatorMCPServer(svc *CoordinatorService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "coordinate",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_agents",
		Description: "List the registered agents and the capabilities each one declares.",
	}, svc.ListAgents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_task",
		Description: "Create a coordination session for a task decomposed into subtasks. Participants are the agents declaring every required capability. With run set, the session is driven to completion and its result returned.",
	}, svc.SubmitTask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session",
		Description: "Get the status, progress, subtask assignment and last result of a session.",
	}, svc.GetSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_conflicts",
		Description: "Detect conflicts in a session (capability, dependency, resource, priority) and resolve the first one, applying any reassignment it proposes.",
	}, svc.ResolveConflicts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "optimize_session",
		Description: "Propose a rebalanced subtask assignment for a session without applying it. Returns the full assignment and the subtasks that would move.",
	}, svc.OptimizeSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cleanup_session",
		Description: "Remove a completed or failed session from the active table, archiving it when an archive is configured.",
	}, svc.CleanupSession)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
