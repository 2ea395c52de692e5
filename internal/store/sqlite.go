// Package store persists finished session reports. The engine never reads
// its own writes back; Append is the only operation the rest of the
// system depends on.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/proctorfusion/engine/internal/sessionstate"
)

// schema matches the persisted record shapes of the external-interfaces
// contract: a session row plus one violation row per violation in the
// report's RecentViolations tail (not every violation the session
// emitted), each violation row carrying sessionId/studentId/examId
// alongside its own fields.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id        TEXT PRIMARY KEY,
    student_id         TEXT NOT NULL,
    exam_id             TEXT NOT NULL,
    started_at_ns       INTEGER NOT NULL,
    ended_at_ns         INTEGER NOT NULL,
    duration_ns         INTEGER NOT NULL,
    total_violations    INTEGER NOT NULL,
    violations_by_kind  TEXT NOT NULL,
    risk_level          TEXT NOT NULL,
    camera_frames       INTEGER NOT NULL,
    screen_frames       INTEGER NOT NULL,
    degraded            INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS violations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL REFERENCES sessions(session_id),
    student_id  TEXT NOT NULL,
    exam_id     TEXT NOT NULL,
    kind        TEXT NOT NULL,
    severity    TEXT NOT NULL,
    at_ns       INTEGER NOT NULL,
    details     TEXT,
    confidence  REAL NOT NULL,
    evidence    TEXT,
    scenario    TEXT
);

CREATE INDEX IF NOT EXISTS idx_violations_session ON violations(session_id);
`

// Sink is the single append-only write this package's callers depend on.
type Sink interface {
	Append(ctx context.Context, report sessionstate.SessionReport) error
}

// SQLiteSink is the default Sink implementation: schema-on-open,
// WAL-journal-mode SQLite.
type SQLiteSink struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and applies schema.
func Open(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database connection is reachable, for wiring
// into a health.Checker's DatabaseCheck.
func (s *SQLiteSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append writes report's session row and every recent violation it
// carries in a single transaction, using a prepared statement for the
// batch insert of violation rows.
func (s *SQLiteSink) Append(ctx context.Context, report sessionstate.SessionReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	byKind, err := json.Marshal(report.ViolationsByKind)
	if err != nil {
		return fmt.Errorf("store: marshal violationsByKind: %w", err)
	}

	degraded := 0
	if report.Degraded {
		degraded = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, student_id, exam_id, started_at_ns, ended_at_ns, duration_ns,
			total_violations, violations_by_kind, risk_level, camera_frames, screen_frames, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Identity.SessionID, report.Identity.StudentID, report.Identity.ExamID,
		report.StartedAt.UnixNano(), report.EndedAt.UnixNano(), int64(report.Duration),
		report.TotalViolations, string(byKind), string(report.RiskLevel),
		report.CameraFrames, report.ScreenFrames, degraded,
	)
	if err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}

	if len(report.RecentViolations) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO violations (session_id, student_id, exam_id, kind, severity, at_ns, details, confidence, evidence, scenario)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare violation insert: %w", err)
		}
		defer stmt.Close()

		for _, v := range report.RecentViolations {
			evidence, err := json.Marshal(v.Evidence)
			if err != nil {
				return fmt.Errorf("store: marshal evidence: %w", err)
			}
			_, err = stmt.ExecContext(ctx, report.Identity.SessionID, report.Identity.StudentID, report.Identity.ExamID,
				string(v.Kind), string(v.Severity), v.At.UnixNano(), v.Details, v.Confidence, string(evidence), v.Scenario)
			if err != nil {
				return fmt.Errorf("store: insert violation: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
