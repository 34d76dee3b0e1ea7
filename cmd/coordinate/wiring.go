package main

import (
	"context"
	"fmt"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/coordinator"
	"github.com/dusk-indust/coordinate/internal/store"
	"github.com/dusk-indust/coordinate/internal/wire"
)

// defaultEcho is how many local echo agents run when no remote agent is
// configured.
const defaultEcho = 2

// newCoordinator builds a coordinator from the loaded config. It dials every
// configured remote agent, registers whatever -discover finds and adds echo
// local echo agents carrying caps. A negative echo picks defaultEcho when no
// remote agent was found and none otherwise. The returned func releases the coordinator and the archive.
func (a *app) newCoordinator(ctx context.Context, echo int, caps []string) (*coordinator.Coordinator, func(), error) {
	archive, err := openArchive(ctx, a.cfg.ArchivePath, a.logger)
	if err != nil {
		return nil, nil, err
	}

	opts := append(a.cfg.CoordinatorOptions(), coordinator.WithLogger(a.logger))
	if archive != nil {
		opts = append(opts, coordinator.WithArchive(archive))
	}
	c := coordinator.New(opts...)
	closeAll := func() {
		c.Close()
		if archive != nil {
			archive.Close()
		}
	}

	client := wire.NewClient()
	if a.cfg.AgentTimeout > 0 {
		client = wire.NewClient(wire.WithTimeout(a.cfg.AgentTimeout))
	}
	for _, ra := range a.cfg.Agents {
		remote, err := wire.Dial(ctx, client, ra.URL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("dial %s: %w", ra.URL, err)
		}
		if ra.Capacity > 0 {
			c.RegisterAgentWithCapacity(remote, ra.Capacity)
		} else {
			c.RegisterAgent(remote)
		}
		a.logger.Info("remote agent registered", "agent", remote.ID(), "url", ra.URL)
	}

	remotes := len(a.cfg.Agents)
	if a.flags.Discover != "" {
		candidates, err := wire.PortRange(a.flags.Discover)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		for _, remote := range wire.Probe(ctx, client, candidates, 0, a.logger) {
			c.RegisterAgent(remote)
			remotes++
			a.logger.Info("remote agent discovered", "agent", remote.ID(), "url", remote.Endpoint())
		}
	}

	if echo < 0 {
		echo = 0
		if remotes == 0 {
			echo = defaultEcho
		}
	}
	for i := 1; i <= echo; i++ {
		c.RegisterAgent(agent.NewEchoAgent(fmt.Sprintf("echo-%d", i), caps...))
	}
	return c, closeAll, nil
}

// requireArchive opens the configured archive or fails when none is set.
func (a *app) requireArchive(ctx context.Context) (store.Store, error) {
	if a.cfg.ArchivePath == "" {
		return nil, fmt.Errorf("no archive configured; set archivePath in coordinate.yml or pass -archive")
	}
	return openArchive(ctx, a.cfg.ArchivePath, a.logger)
}

// initArchive prepares a freshly opened store.
func initArchive(ctx context.Context, s store.Store) (store.Store, error) {
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}
	return s, nil
}
