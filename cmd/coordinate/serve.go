package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/mcptools"
	"github.com/dusk-indust/coordinate/internal/wire"
)

const shutdownTimeout = 5 * time.Second

// serve hosts the coordinator's HTTP API until ctx is cancelled.
func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	echo := fs.Int("echo", -1, "local echo agents to register (-1 = 2 without remote agents, else 0)")
	caps := fs.String("caps", "", "comma-separated capabilities of the echo agents")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, closeAll, err := a.newCoordinator(ctx, *echo, splitList(*caps))
	if err != nil {
		return err
	}
	defer closeAll()

	host := wire.NewHost(c, a.logger)
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", *addr, err)
	}
	srv := &http.Server{Handler: host.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("coordinator listening", "addr", ln.Addr().String())
	fmt.Fprintf(a.stdout, "listening on %s\n", ln.Addr())

	select {
	case err := <-errCh:
		host.Close()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Ending the host first releases event streams so Shutdown can drain.
	host.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serveAgent hosts a single echo agent over JSON-RPC until ctx is
// cancelled.
func (a *app) serveAgent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve-agent", flag.ContinueOnError)
	addr := fs.String("addr", ":7001", "listen address")
	id := fs.String("id", "echo", "agent id")
	caps := fs.String("caps", "", "comma-separated capabilities")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := wire.NewServer(agent.NewEchoAgent(*id, splitList(*caps)...), wire.WithLogger(a.logger))
	if err := srv.Start(ctx, *addr); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "agent %s listening on %s\n", *id, srv.Addr())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// serveMCP exposes the coordinator as MCP tools on stdio, or on streamable
// HTTP when -mcp-addr is set.
func (a *app) serveMCP(ctx context.Context) error {
	c, closeAll, err := a.newCoordinator(ctx, -1, nil)
	if err != nil {
		return err
	}
	defer closeAll()

	server := mcptools.NewCoordinatorMCPServer(mcptools.NewCoordinatorService(c, a.logger))
	if a.flags.MCPAddr != "" {
		a.logger.Info("mcp listening", "addr", a.flags.MCPAddr)
		return mcptools.RunHTTP(ctx, server, a.flags.MCPAddr)
	}
	return mcptools.RunStdio(ctx, server)
}
