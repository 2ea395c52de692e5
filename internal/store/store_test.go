package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/proctorfusion/engine/internal/sessionstate"
)

func sampleReport(sessionID string) sessionstate.SessionReport {
	return sessionstate.SessionReport{
		Identity:        sessionstate.Identity{StudentID: "s1", ExamID: "e1", SessionID: sessionID},
		StartedAt:       time.Unix(1000, 0),
		EndedAt:         time.Unix(1060, 0),
		Duration:        60 * time.Second,
		TotalViolations: 2,
		ViolationsByKind: map[sessionstate.ViolationKind]int64{
			sessionstate.KindGhostTyping: 2,
		},
		RecentViolations: []sessionstate.Violation{
			{Kind: sessionstate.KindGhostTyping, Severity: sessionstate.SeverityCritical, At: time.Unix(1030, 0),
				Confidence: 0.90, Scenario: "hands_absent", Evidence: map[string]int{"S_R": 15}},
			{Kind: sessionstate.KindGhostTyping, Severity: sessionstate.SeverityCritical, At: time.Unix(1050, 0),
				Confidence: 0.90, Scenario: "hands_absent", Evidence: map[string]int{"S_R": 16}},
		},
		RiskLevel:    sessionstate.RiskHigh,
		CameraFrames: 300,
		ScreenFrames: 300,
	}
}

func TestOpenAndClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenCreatesNestedDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "sub", "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
}

func TestAppendPersistsSessionAndViolations(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	report := sampleReport("session-1")
	if err := s.Append(context.Background(), report); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var totalViolations int64
	row := s.db.QueryRow(`SELECT total_violations FROM sessions WHERE session_id = ?`, "session-1")
	if err := row.Scan(&totalViolations); err != nil {
		t.Fatalf("failed to read back session row: %v", err)
	}
	if totalViolations != 2 {
		t.Errorf("expected total_violations=2, got %d", totalViolations)
	}

	var violationCount int
	row = s.db.QueryRow(`SELECT COUNT(*) FROM violations WHERE session_id = ?`, "session-1")
	if err := row.Scan(&violationCount); err != nil {
		t.Fatalf("failed to count violation rows: %v", err)
	}
	if violationCount != 2 {
		t.Errorf("expected 2 persisted violation rows, got %d", violationCount)
	}
}

func TestAppendIsAtomicAcrossSessionAndViolationRows(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	report := sampleReport("dup")
	if err := s.Append(context.Background(), report); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	// A second Append of the same sessionId violates the primary key and
	// must roll back cleanly, leaving no orphaned violation rows from the
	// failed attempt.
	if err := s.Append(context.Background(), report); err == nil {
		t.Fatal("expected a duplicate sessionId insert to fail")
	}

	var violationCount int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM violations WHERE session_id = ?`, "dup")
	if err := row.Scan(&violationCount); err != nil {
		t.Fatalf("failed to count violation rows: %v", err)
	}
	if violationCount != 2 {
		t.Errorf("expected the rolled-back retry to leave exactly the first attempt's 2 rows, got %d", violationCount)
	}
}

type failingSink struct{ err error }

func (f *failingSink) Append(ctx context.Context, report sessionstate.SessionReport) error {
	return f.err
}

func TestGuardedSinkRecordsFailureInDeadLetter(t *testing.T) {
	dl := NewDeadLetter()
	failAt := time.Unix(2000, 0)
	sink := NewGuardedSink(&failingSink{err: errors.New("disk full")}, dl, func() time.Time { return failAt })

	report := sampleReport("session-x")
	err := sink.Append(context.Background(), report)
	if err == nil {
		t.Fatal("expected the underlying sink's error to propagate")
	}

	if dl.Len() != 1 {
		t.Fatalf("expected 1 dead-lettered report, got %d", dl.Len())
	}
	entries := dl.Entries()
	if entries[0].Report.Identity.SessionID != "session-x" {
		t.Errorf("expected the dead-lettered report to match, got %+v", entries[0].Report.Identity)
	}
	if !entries[0].FailedAt.Equal(failAt) {
		t.Errorf("expected FailedAt=%v, got %v", failAt, entries[0].FailedAt)
	}
}

func TestGuardedSinkPassesThroughOnSuccess(t *testing.T) {
	dl := NewDeadLetter()
	sink := NewGuardedSink(&failingSink{err: nil}, dl, nil)

	if err := sink.Append(context.Background(), sampleReport("ok")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.Len() != 0 {
		t.Errorf("expected no dead-lettered reports on success, got %d", dl.Len())
	}
}

func TestDeadLetterRecordIsIdempotentForIdenticalContent(t *testing.T) {
	dl := NewDeadLetter()
	report := sampleReport("same")

	_, firstDuplicate := dl.Record(report, time.Unix(1, 0))
	_, secondDuplicate := dl.Record(report, time.Unix(2, 0))

	if firstDuplicate {
		t.Error("expected the first Record to not be a duplicate")
	}
	if !secondDuplicate {
		t.Error("expected an identical report recorded twice to be flagged a duplicate")
	}
	if dl.Len() != 1 {
		t.Errorf("expected deduplication to keep exactly 1 entry, got %d", dl.Len())
	}
}
