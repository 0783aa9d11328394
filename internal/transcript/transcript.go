// Package transcript persists connector traffic to a local sqlite store.
package transcript

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slashbot/slashbot/internal/bus"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        TEXT    NOT NULL,
	direction TEXT    NOT NULL,
	connector TEXT    NOT NULL,
	target    TEXT    NOT NULL,
	sender    TEXT,
	content   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_connector_ts ON messages(connector, ts);
CREATE TABLE IF NOT EXISTS actions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         TEXT    NOT NULL,
	run_id     TEXT    NOT NULL,
	session    TEXT,
	tag        TEXT    NOT NULL,
	ok         INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_run ON actions(run_id);
`

// Entry is one logged message.
type Entry struct {
	ID        int64
	Time      time.Time
	Direction string // "in" or "out"
	Connector string
	Target    string
	Sender    string
	Content   string
}

// Store logs inbound and outbound connector messages. Logging is
// best-effort: failures warn and never block delivery.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", path, err)
	}
	// The store is written from connector pumps and read from the CLI;
	// a single connection avoids SQLITE_BUSY on the file.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LogIn records a message received from a connector.
func (s *Store) LogIn(msg bus.InboundMessage) {
	s.insert("in", msg.Connector, msg.TargetID, msg.SenderID, msg.Content)
}

// LogOut records a reply delivered through a connector.
func (s *Store) LogOut(msg bus.OutboundMessage) {
	s.insert("out", msg.Connector, msg.TargetID, "", msg.Content)
}

func (s *Store) insert(direction, connector, target, sender, content string) {
	_, err := s.db.Exec(
		`INSERT INTO messages (ts, direction, connector, target, sender, content) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), direction, connector, target, sender, content,
	)
	if err != nil {
		slog.Warn("transcript insert failed", "connector", connector, "error", err)
	}
}

// ActionEntry is one recorded action execution.
type ActionEntry struct {
	ID       int64
	Time     time.Time
	RunID    string
	Session  string
	Tag      string
	OK       bool
	Duration time.Duration
}

// LogAction records one executed action. Wired to the
// tool_result_persist hook; best-effort like the message log.
func (s *Store) LogAction(runID, session, tag string, ok bool, duration time.Duration) {
	okInt := 0
	if ok {
		okInt = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO actions (ts, run_id, session, tag, ok, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), runID, session, tag, okInt, duration.Milliseconds(),
	)
	if err != nil {
		slog.Warn("transcript action insert failed", "tag", tag, "error", err)
	}
}

// RunActions returns every action recorded for a turn, oldest first.
func (s *Store) RunActions(runID string) ([]ActionEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, ts, run_id, session, tag, ok, duration_ms FROM actions WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionEntry
	for rows.Next() {
		var e ActionEntry
		var ts string
		var ok, durMs int64
		if err := rows.Scan(&e.ID, &ts, &e.RunID, &e.Session, &e.Tag, &ok, &durMs); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
		e.OK = ok == 1
		e.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Recent returns the latest entries, newest first. An empty connector
// matches all connectors.
func (s *Store) Recent(connector string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, ts, direction, connector, target, sender, content
		 FROM messages`
	args := []interface{}{}
	if connector != "" {
		query += ` WHERE connector = ?`
		args = append(args, connector)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Direction, &e.Connector, &e.Target, &e.Sender, &e.Content); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
