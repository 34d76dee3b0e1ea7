// Package store archives finished coordination sessions. MemStore keeps them
// in memory; KuzuStore (cgo builds only) writes them to a KuzuDB graph so
// agents, sessions and subtask dependencies can be queried as edges.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dusk-indust/coordinate/internal/session"
)

var (
	// ErrNotFound is returned when no archived session has the given id.
	ErrNotFound = errors.New("store: session not found")

	// ErrExists is returned when a session id is archived twice.
	ErrExists = errors.New("store: session already archived")
)

// Record is one archived session together with its final result, if the
// session was ever driven.
type Record struct {
	Session    session.Snapshot `json:"session"`
	Result     *session.Result  `json:"result,omitempty"`
	ArchivedAt time.Time        `json:"archivedAt"`
}

// Summary is the listing form of a Record.
type Summary struct {
	SessionID  string         `json:"sessionId"`
	TaskID     string         `json:"taskId"`
	Status     session.Status `json:"status"`
	ArchivedAt time.Time      `json:"archivedAt"`
}

// Store persists archived sessions.
type Store interface {
	// InitSchema prepares the backing storage. It is idempotent.
	InitSchema(ctx context.Context) error

	// Save archives rec. Archiving the same session id twice fails with
	// ErrExists.
	Save(ctx context.Context, rec Record) error

	// Load returns the record for a session id.
	Load(ctx context.Context, sessionID string) (Record, error)

	// List returns a summary of every archived session in ascending id order.
	List(ctx context.Context) ([]Summary, error)

	// AgentSessions returns the ids of archived sessions the agent took part
	// in, in ascending order.
	AgentSessions(ctx context.Context, agentID string) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}

func summarize(rec Record) Summary {
	taskID := ""
	if rec.Session.Task != nil {
		taskID = rec.Session.Task.ID
	}
	return Summary{
		SessionID:  rec.Session.ID,
		TaskID:     taskID,
		Status:     rec.Session.Status,
		ArchivedAt: rec.ArchivedAt,
	}
}
