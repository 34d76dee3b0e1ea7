package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dusk-indust/coordinate/internal/export"
)

// sessions lists archived sessions, optionally only those an agent took
// part in.
func (a *app) sessions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	agentID := fs.String("agent", "", "only sessions this agent took part in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	archive, err := a.requireArchive(ctx)
	if err != nil {
		return err
	}
	defer archive.Close()

	summaries, err := archive.List(ctx)
	if err != nil {
		return err
	}
	if *agentID != "" {
		ids, err := archive.AgentSessions(ctx, *agentID)
		if err != nil {
			return err
		}
		keep := make(map[string]bool, len(ids))
		for _, id := range ids {
			keep[id] = true
		}
		filtered := summaries[:0]
		for _, s := range summaries {
			if keep[s.SessionID] {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	if len(summaries) == 0 {
		fmt.Fprintln(a.stdout, "no archived sessions")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTASK\tSTATUS\tARCHIVED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.SessionID, s.TaskID, s.Status, s.ArchivedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

// exportSession prints one archived session as JSON.
func (a *app) exportSession(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: coordinate export <session-id>")
	}

	archive, err := a.requireArchive(ctx)
	if err != nil {
		return err
	}
	defer archive.Close()

	rec, err := archive.Load(ctx, args[0])
	if err != nil {
		return err
	}
	return export.WriteJSON(a.stdout, export.ExportSession(rec.Session, rec.Result))
}
