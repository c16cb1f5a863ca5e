package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// OpLog is an append-only audit trail of task transitions, one JSON line
// per operation. It is write-only: nothing in the engine ever reads it back.
type OpLog struct {
	mu sync.Mutex
	f  *os.File
}

type opEntry struct {
	Timestamp string `json:"timestamp"`
	Op        string `json:"op"`
	TaskID    string `json:"task_id"`
	Agent     string `json:"agent,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// OpenOpLog opens (or creates) the operation log at path for appending.
func OpenOpLog(path string) (*OpLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create oplog dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open oplog %s: %w", path, err)
	}
	return &OpLog{f: f}, nil
}

// Append writes one transition record. Append never fails the caller's
// transition: a log write error is silently dropped because the log is an
// observability aid, not part of the store's correctness.
func (l *OpLog) Append(op, taskID, agent string, from, to Status, detail string) {
	entry := opEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Op:        op,
		TaskID:    taskID,
		Agent:     agent,
		From:      string(from),
		To:        string(to),
		Detail:    detail,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.f.Write(append(line, '\n'))
}

// Close flushes and closes the underlying file.
func (l *OpLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
