package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store persists every submitted task so ambiguous outcomes (expired polls,
// broadcast timeouts) can be reconciled manually later.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create task store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create task lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open task sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			state TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_tasks_state_updated ON tasks(state, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init task schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(record TaskRecord) error {
	if strings.TrimSpace(record.TaskID) == "" {
		return fmt.Errorf("save task: missing task id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock task store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock task store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	createdUnix, _ := parseRFC3339Unix(record.CreatedAt)
	updatedUnix, _ := parseRFC3339Unix(record.UpdatedAt)
	if createdUnix == 0 {
		createdUnix = time.Now().UTC().Unix()
	}
	if updatedUnix == 0 {
		updatedUnix = time.Now().UTC().Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (task_id, kind, path, state, chain_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			kind=excluded.kind,
			path=excluded.path,
			state=excluded.state,
			chain_id=excluded.chain_id,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, record.TaskID, record.Kind, record.Path, record.State, record.ChainID, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Store) Get(taskID string) (TaskRecord, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM tasks WHERE task_id = ?", taskID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TaskRecord{}, fmt.Errorf("task not found: %s", taskID)
		}
		return TaskRecord{}, fmt.Errorf("read task: %w", err)
	}
	var record TaskRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return TaskRecord{}, fmt.Errorf("decode task payload: %w", err)
	}
	return record, nil
}

func (s *Store) List(state string, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(state) == "" {
		rows, err = s.db.Query("SELECT payload FROM tasks ORDER BY updated_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM tasks WHERE state = ? ORDER BY updated_at DESC LIMIT ?", state, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	records := make([]TaskRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		var record TaskRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode task row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return records, nil
}

func parseRFC3339Unix(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}
