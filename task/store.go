package task

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL,
	agent        TEXT NOT NULL,
	priority     TEXT NOT NULL DEFAULT 'normal',
	type         TEXT NOT NULL DEFAULT '',
	unit         TEXT NOT NULL DEFAULT '',
	source_path  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	auto_complete INTEGER NOT NULL DEFAULT 0,
	auto_chain   INTEGER NOT NULL DEFAULT 0,
	result       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL,
	started_at   DATETIME,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS agents (
	agent           TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'idle',
	last_activity   DATETIME NOT NULL,
	current_task_id TEXT NOT NULL DEFAULT ''
);
`

// busyRetries bounds the store's internal retry on a locked database so
// callers never implement their own read-modify-write retry loop.
const busyRetries = 5

// SQLiteStore persists tasks and agent availability in a SQLite database.
// Every mutation runs in a single transaction with a status-guarded update,
// so a transition either fully applies or not at all and two racing callers
// cannot move the same task twice.
type SQLiteStore struct {
	db    *sql.DB
	oplog *OpLog
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tasks and agents tables exist. The caller is responsible for Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SetOpLog attaches an append-only operation log. Every successful
// transition is recorded there after commit. Nil disables logging.
func (s *SQLiteStore) SetOpLog(l *OpLog) { s.oplog = l }

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create persists a new pending task and sets its ID and CreatedAt.
func (s *SQLiteStore) Create(t *Task) (string, error) {
	t.ID = uuid.NewString()
	t.Status = StatusPending
	t.CreatedAt = time.Now().UTC()
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	metadata, _ := json.Marshal(t.Metadata)

	err := s.mutate(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks
				(id, title, description, agent, priority, type, unit, source_path,
				 status, auto_complete, auto_chain, result, error, metadata,
				 created_at, started_at, completed_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			t.ID, t.Title, t.Description, t.Agent, string(t.Priority), t.Type, t.Unit, t.SourcePath,
			string(t.Status), boolInt(t.Automation.AutoComplete), boolInt(t.Automation.AutoChain),
			t.Result, t.Error, string(metadata),
			t.CreatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	s.logOp("create", t.ID, t.Agent, "", StatusPending, t.Title)
	return t.ID, nil
}

// Get retrieves a task by ID from any set.
func (s *SQLiteStore) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT * FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// List returns all tasks in the given set, highest priority first, oldest
// first within a priority.
func (s *SQLiteStore) List(set Status) ([]*Task, error) {
	rows, err := s.db.Query(`
		SELECT * FROM tasks WHERE status = ?
		ORDER BY CASE priority
			WHEN 'critical' THEN 3
			WHEN 'high' THEN 2
			WHEN 'normal' THEN 1
			ELSE 0
		END DESC, created_at ASC`, string(set))
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", set, err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MoveToActive transitions a pending task to active, marking its agent busy
// in the same transaction. Exactly one of two racing callers can win the
// status-guarded update; the loser gets ErrNotFound.
func (s *SQLiteStore) MoveToActive(id string) (*Task, error) {
	now := time.Now().UTC()
	var agent string
	err := s.mutate(func(tx *sql.Tx) error {
		if err := tx.QueryRow(
			`SELECT agent FROM tasks WHERE id = ? AND status = ?`, id, string(StatusPending),
		).Scan(&agent); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("task %s not in pending set: %w", id, ErrNotFound)
			}
			return err
		}

		var agentStatus string
		err := tx.QueryRow(`SELECT status FROM agents WHERE agent = ?`, agent).Scan(&agentStatus)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if agentStatus == string(AgentActive) {
			return fmt.Errorf("agent %s: %w", agent, ErrAgentBusy)
		}

		res, err := tx.Exec(
			`UPDATE tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			string(StatusActive), now, id, string(StatusPending),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s not in pending set: %w", id, ErrNotFound)
		}
		return s.setAgent(tx, agent, AgentActive, id, now)
	})
	if err != nil {
		return nil, err
	}
	s.logOp("start", id, agent, StatusPending, StatusActive, "")
	return s.Get(id)
}

// MoveToCompleted transitions an active task to completed with the worker's
// result token and frees its agent.
func (s *SQLiteStore) MoveToCompleted(id, result string) (*Task, error) {
	agent, err := s.finish(id, StatusCompleted, result, "")
	if err != nil {
		return nil, err
	}
	s.logOp("complete", id, agent, StatusActive, StatusCompleted, result)
	return s.Get(id)
}

// MoveToFailed transitions an active task to failed and frees its agent.
func (s *SQLiteStore) MoveToFailed(id, errMsg string) (*Task, error) {
	agent, err := s.finish(id, StatusFailed, "", errMsg)
	if err != nil {
		return nil, err
	}
	s.logOp("fail", id, agent, StatusActive, StatusFailed, errMsg)
	return s.Get(id)
}

// finish performs the shared active→terminal transition.
func (s *SQLiteStore) finish(id string, to Status, result, errMsg string) (string, error) {
	now := time.Now().UTC()
	var agent string
	err := s.mutate(func(tx *sql.Tx) error {
		if err := tx.QueryRow(
			`SELECT agent FROM tasks WHERE id = ? AND status = ?`, id, string(StatusActive),
		).Scan(&agent); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("task %s not in active set: %w", id, ErrNotFound)
			}
			return err
		}
		res, err := tx.Exec(
			`UPDATE tasks SET status = ?, result = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
			string(to), result, errMsg, now, id, string(StatusActive),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s not in active set: %w", id, ErrNotFound)
		}
		return s.setAgent(tx, agent, AgentIdle, "", now)
	})
	return agent, err
}

// Cancel removes a pending or active task from its set. The agent is freed
// only when the task was active; cancelling never touches an agent that was
// never started.
func (s *SQLiteStore) Cancel(id, reason string) (*Task, error) {
	now := time.Now().UTC()
	var agent string
	var from Status
	err := s.mutate(func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(
			`SELECT agent, status FROM tasks WHERE id = ? AND status IN (?, ?)`,
			id, string(StatusPending), string(StatusActive),
		).Scan(&agent, &status); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("task %s not in pending or active set: %w", id, ErrNotFound)
			}
			return err
		}
		from = Status(status)

		res, err := tx.Exec(
			`UPDATE tasks SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
			string(StatusCancelled), reason, now, id, status,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s not in pending or active set: %w", id, ErrNotFound)
		}
		if from == StatusActive {
			return s.setAgent(tx, agent, AgentIdle, "", now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logOp("cancel", id, agent, from, StatusCancelled, reason)
	return s.Get(id)
}

// SetMetadata stores a key/value pair on the task without interpreting it.
func (s *SQLiteStore) SetMetadata(id, key, value string) error {
	return s.mutate(func(tx *sql.Tx) error {
		var raw string
		if err := tx.QueryRow(`SELECT metadata FROM tasks WHERE id = ?`, id).Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("task %s: %w", id, ErrNotFound)
			}
			return err
		}
		meta := map[string]string{}
		_ = json.Unmarshal([]byte(raw), &meta)
		meta[key] = value
		out, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = tx.Exec(`UPDATE tasks SET metadata = ? WHERE id = ?`, string(out), id)
		return err
	})
}

// Availability returns the availability record for one agent. Agents that
// have never been referenced report as idle.
func (s *SQLiteStore) Availability(agent string) (*Availability, error) {
	row := s.db.QueryRow(
		`SELECT agent, status, last_activity, current_task_id FROM agents WHERE agent = ?`, agent)
	a, err := scanAvailability(row)
	if err == sql.ErrNoRows {
		return &Availability{Agent: agent, Status: AgentIdle}, nil
	}
	return a, err
}

// Agents lists all known availability records.
func (s *SQLiteStore) Agents() ([]*Availability, error) {
	rows, err := s.db.Query(
		`SELECT agent, status, last_activity, current_task_id FROM agents ORDER BY agent ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// setAgent upserts an availability record inside the caller's transaction.
func (s *SQLiteStore) setAgent(tx *sql.Tx, agent string, st AgentState, taskID string, now time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO agents (agent, status, last_activity, current_task_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			status = excluded.status,
			last_activity = excluded.last_activity,
			current_task_id = excluded.current_task_id`,
		agent, string(st), now, taskID,
	)
	return err
}

// mutate runs fn in a transaction, retrying a bounded number of times when
// the database is locked by another process.
func (s *SQLiteStore) mutate(fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = s.tryMutate(fn)
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 25 * time.Millisecond)
	}
	return fmt.Errorf("store busy after %d attempts: %w", busyRetries, err)
}

func (s *SQLiteStore) tryMutate(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *SQLiteStore) logOp(op, taskID, agent string, from, to Status, detail string) {
	if s.oplog != nil {
		s.oplog.Append(op, taskID, agent, from, to, detail)
	}
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status, priority, metadataJSON string
	var autoComplete, autoChain int
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Agent, &priority, &t.Type, &t.Unit, &t.SourcePath,
		&status, &autoComplete, &autoChain, &t.Result, &t.Error, &metadataJSON,
		&t.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	t.Priority = Priority(priority)
	t.Automation = Automation{AutoComplete: autoComplete != 0, AutoChain: autoChain != 0}
	_ = json.Unmarshal([]byte(metadataJSON), &t.Metadata)

	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func scanAvailability(s scanner) (*Availability, error) {
	var a Availability
	var status string
	if err := s.Scan(&a.Agent, &status, &a.LastActivity, &a.CurrentTaskID); err != nil {
		return nil, err
	}
	a.Status = AgentState(status)
	return &a, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
