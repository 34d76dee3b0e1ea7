//go:build cgo

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dusk-indust/coordinate/internal/session"
	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements Store on KuzuDB. It requires CGO because the go-kuzu
// driver wraps KuzuDB's C library.
//
// Each archived session becomes a Session node holding the JSON record, with
// PARTICIPATED edges from its Agent nodes and one SubTask node per subtask
// linked by PART_OF, DEPENDS_ON and ASSIGNED_TO edges.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a KuzuDB directory at
// dbPath. KuzuDB creates the leaf directory itself.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ddlStatements must create node tables before relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Session(
		id STRING,
		task_id STRING,
		status STRING,
		progress DOUBLE,
		archived_at STRING,
		data STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Agent(
		id STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS SubTask(
		key STRING,
		id STRING,
		description STRING,
		priority INT64,
		PRIMARY KEY(key)
	)`,
	`CREATE REL TABLE IF NOT EXISTS PARTICIPATED(FROM Agent TO Session)`,
	`CREATE REL TABLE IF NOT EXISTS PART_OF(FROM SubTask TO Session)`,
	`CREATE REL TABLE IF NOT EXISTS DEPENDS_ON(FROM SubTask TO SubTask)`,
	`CREATE REL TABLE IF NOT EXISTS ASSIGNED_TO(FROM SubTask TO Agent)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// Save writes the session node, its subtasks and every edge between them.
func (s *KuzuStore) Save(ctx context.Context, rec Record) error {
	id := rec.Session.ID
	if _, err := s.Load(ctx, id); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, id)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kuzu: encode record %s: %w", id, err)
	}
	sum := summarize(rec)
	if err := s.exec(
		`CREATE (s:Session {id: $id, task_id: $task, status: $status, progress: $progress, archived_at: $at, data: $data})`,
		map[string]any{
			"id":       id,
			"task":     sum.TaskID,
			"status":   string(sum.Status),
			"progress": rec.Session.Progress,
			"at":       rec.ArchivedAt.UTC().Format(time.RFC3339Nano),
			"data":     string(data),
		},
	); err != nil {
		return err
	}

	for _, agentID := range rec.Session.Agents {
		if err := s.exec("MERGE (a:Agent {id: $id})", map[string]any{"id": agentID}); err != nil {
			return err
		}
		if err := s.exec(
			`MATCH (a:Agent {id: $agent}), (s:Session {id: $session}) CREATE (a)-[:PARTICIPATED]->(s)`,
			map[string]any{"agent": agentID, "session": id},
		); err != nil {
			return err
		}
	}

	if rec.Session.Task == nil {
		return nil
	}
	for _, st := range rec.Session.Task.Subtasks {
		if err := s.exec(
			`CREATE (t:SubTask {key: $key, id: $id, description: $desc, priority: $prio})`,
			map[string]any{
				"key":  subtaskKey(id, st.ID),
				"id":   st.ID,
				"desc": st.Description,
				"prio": int64(st.Priority),
			},
		); err != nil {
			return err
		}
		if err := s.exec(
			`MATCH (t:SubTask {key: $key}), (s:Session {id: $session}) CREATE (t)-[:PART_OF]->(s)`,
			map[string]any{"key": subtaskKey(id, st.ID), "session": id},
		); err != nil {
			return err
		}
		if agentID, ok := rec.Session.Assignment[st.ID]; ok {
			if err := s.exec("MERGE (a:Agent {id: $id})", map[string]any{"id": agentID}); err != nil {
				return err
			}
			if err := s.exec(
				`MATCH (t:SubTask {key: $key}), (a:Agent {id: $agent}) CREATE (t)-[:ASSIGNED_TO]->(a)`,
				map[string]any{"key": subtaskKey(id, st.ID), "agent": agentID},
			); err != nil {
				return err
			}
		}
	}
	// Dependency edges need both endpoints, so they follow the node pass.
	for _, st := range rec.Session.Task.Subtasks {
		for _, dep := range st.Dependencies {
			if _, ok := rec.Session.Task.Subtask(dep); !ok {
				continue
			}
			if err := s.exec(
				`MATCH (a:SubTask {key: $src}), (b:SubTask {key: $dst}) CREATE (a)-[:DEPENDS_ON]->(b)`,
				map[string]any{"src": subtaskKey(id, st.ID), "dst": subtaskKey(id, dep)},
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load decodes the JSON record stored on the Session node.
func (s *KuzuStore) Load(_ context.Context, sessionID string) (Record, error) {
	rows, err := s.query(
		"MATCH (s:Session {id: $id}) RETURN s.data",
		map[string]any{"id": sessionID},
	)
	if err != nil {
		return Record{}, err
	}
	if len(rows) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	var rec Record
	if err := json.Unmarshal([]byte(toString(rows[0][0])), &rec); err != nil {
		return Record{}, fmt.Errorf("kuzu: decode record %s: %w", sessionID, err)
	}
	return rec, nil
}

// List returns every Session node ordered by id.
func (s *KuzuStore) List(_ context.Context) ([]Summary, error) {
	rows, err := s.query(
		"MATCH (s:Session) RETURN s.id, s.task_id, s.status, s.archived_at ORDER BY s.id",
		nil,
	)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		at, _ := time.Parse(time.RFC3339Nano, toString(r[3]))
		out = append(out, Summary{
			SessionID:  toString(r[0]),
			TaskID:     toString(r[1]),
			Status:     session.Status(toString(r[2])),
			ArchivedAt: at,
		})
	}
	return out, nil
}

// AgentSessions follows PARTICIPATED edges from the agent node.
func (s *KuzuStore) AgentSessions(_ context.Context, agentID string) ([]string, error) {
	rows, err := s.query(
		"MATCH (a:Agent {id: $id})-[:PARTICIPATED]->(s:Session) RETURN s.id ORDER BY s.id",
		map[string]any{"id": agentID},
	)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, toString(r[0]))
	}
	return out, nil
}

// Dependents returns the ids of subtasks in a session that depend on
// subtaskID, in ascending order.
func (s *KuzuStore) Dependents(_ context.Context, sessionID, subtaskID string) ([]string, error) {
	rows, err := s.query(
		"MATCH (a:SubTask)-[:DEPENDS_ON]->(b:SubTask {key: $key}) RETURN a.id ORDER BY a.id",
		map[string]any{"key": subtaskKey(sessionID, subtaskID)},
	)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, toString(r[0]))
	}
	return out, nil
}

// exec runs a parameterized statement and discards the result.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a statement and collects all result rows. Each row is a []any
// with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// subtaskKey scopes a subtask id to its session: "sessionID/subtaskID".
func subtaskKey(sessionID, subtaskID string) string {
	return sessionID + "/" + subtaskID
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
