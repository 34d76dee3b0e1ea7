package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/dusk-indust/coordinate/internal/export"
	"github.com/dusk-indust/coordinate/internal/task"
)

// runTask coordinates one task file end to end and prints the session
// export. Planning and execution failures still print the export before the
// error is returned.
func (a *app) runTask(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	echo := fs.Int("echo", -1, "local echo agents to register (-1 = 2 without remote agents, else 0)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: coordinate run [-echo N] <task.yml>")
	}

	t, err := task.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	c, closeAll, err := a.newCoordinator(ctx, *echo, t.RequiredCapabilities)
	if err != nil {
		return err
	}
	defer closeAll()

	snap, err := c.CreateSession(t)
	if err != nil {
		return err
	}
	res, runErr := c.Coordinate(ctx, snap.ID)

	final, err := c.Session(snap.ID)
	if err != nil {
		return err
	}
	if err := export.WriteJSON(a.stdout, export.ExportSession(final, res)); err != nil {
		return err
	}

	if a.cfg.ArchivePath != "" && final.Status.IsTerminal() {
		if err := c.Cleanup(ctx, snap.ID); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("session %s: %w", snap.ID, runErr)
	}
	return nil
}
