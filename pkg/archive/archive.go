// Package archive keeps a SQLite log of observations across sessions.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/emotions"

	_ "modernc.org/sqlite" // SQLite driver.
)

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 100

// Archive wraps SQLite access for observation data.
type Archive struct {
	db *sql.DB
}

// Entry is an archived observation with its session.
type Entry struct {
	ID          int64                `json:"id"`
	SessionID   string               `json:"sessionId"`
	Observation emotions.Observation `json:"observation"`
}

// SessionInfo summarizes one archived session.
type SessionInfo struct {
	SessionID string    `json:"sessionId"`
	Count     int       `json:"count"`
	FirstAt   time.Time `json:"firstAt"`
	LastAt    time.Time `json:"lastAt"`
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Archive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return a, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			primary_emotion TEXT NOT NULL,
			confidence REAL NOT NULL,
			face_detected INTEGER NOT NULL,
			body TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_observations_emotion ON observations(primary_emotion);`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores obs under sessionID.
func (a *Archive) Record(ctx context.Context, sessionID string, obs emotions.Observation) (int64, error) {
	body, err := json.Marshal(obs)
	if err != nil {
		return 0, fmt.Errorf("archive: encode observation: %w", err)
	}

	res, err := a.db.ExecContext(ctx,
		`INSERT INTO observations (session_id, captured_at, primary_emotion, confidence, face_detected, body)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID,
		obs.Timestamp.UTC().Format(time.RFC3339Nano),
		string(obs.PrimaryEmotion),
		obs.Confidence,
		obs.FaceDetected,
		string(body),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first. An empty sessionID
// spans all sessions.
func (a *Archive) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, session_id, body FROM observations`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var body string
		if err := rows.Scan(&e.ID, &e.SessionID, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &e.Observation); err != nil {
			return nil, fmt.Errorf("archive: decode observation %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions lists archived sessions, most recent first.
func (a *Archive) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MIN(captured_at), MAX(captured_at), MAX(id) AS last_id
		 FROM observations
		 GROUP BY session_id
		 ORDER BY last_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var first, last string
		var lastID int64
		if err := rows.Scan(&info.SessionID, &info.Count, &first, &last, &lastID); err != nil {
			return nil, err
		}
		info.FirstAt, _ = time.Parse(time.RFC3339Nano, first)
		info.LastAt, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, info)
	}
	return out, rows.Err()
}
