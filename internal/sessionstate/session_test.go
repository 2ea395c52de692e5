package sessionstate

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewSessionRecordsStartTime(t *testing.T) {
	start := time.Unix(1000, 0)
	s := NewSession(Identity{SessionID: "s1"}, 40, fixedClock(start))
	if !s.StartedAt.Equal(start) {
		t.Errorf("expected StartedAt %v, got %v", start, s.StartedAt)
	}
}

func TestAppendSampleBumpsCameraCounter(t *testing.T) {
	s := NewSession(Identity{}, 40, fixedClock(time.Unix(0, 0)))
	s.AppendSample(DetectionSample{})
	s.AppendSample(DetectionSample{})
	if s.Counters.CameraFrames != 2 {
		t.Errorf("expected 2 camera frames, got %d", s.Counters.CameraFrames)
	}
}

func TestAppendViolationBumpsKindCounter(t *testing.T) {
	s := NewSession(Identity{}, 40, fixedClock(time.Unix(0, 0)))
	s.AppendViolation(Violation{Kind: KindNoFace})
	s.AppendViolation(Violation{Kind: KindNoFace})
	s.AppendViolation(Violation{Kind: KindGhostTyping})

	if s.Counters.ByKind[KindNoFace] != 2 {
		t.Errorf("expected 2 NO_FACE_DETECTED, got %d", s.Counters.ByKind[KindNoFace])
	}
	if len(s.Log) != 3 {
		t.Errorf("expected 3 log entries, got %d", len(s.Log))
	}
}

func TestReportClassifiesHighRiskOnThreeGhostTypingEmissions(t *testing.T) {
	s := NewSession(Identity{SessionID: "s1"}, 40, fixedClock(time.Unix(0, 0)))
	for i := 0; i < 3; i++ {
		s.AppendViolation(Violation{Kind: KindGhostTyping, Severity: SeverityCritical})
	}

	report := s.Report(5)
	if report.RiskLevel != RiskHigh {
		t.Errorf("expected HIGH_RISK, got %v", report.RiskLevel)
	}
	if len(report.RecentViolations) != 3 {
		t.Errorf("expected all 3 violations in the recent window, got %d", len(report.RecentViolations))
	}
}

func TestReportTruncatesToLastK(t *testing.T) {
	s := NewSession(Identity{}, 40, fixedClock(time.Unix(0, 0)))
	for i := 0; i < 10; i++ {
		s.AppendViolation(Violation{Kind: KindNoFace})
	}

	report := s.Report(3)
	if len(report.RecentViolations) != 3 {
		t.Errorf("expected 3 recent violations, got %d", len(report.RecentViolations))
	}
}

func TestReportLowRiskWithNoViolations(t *testing.T) {
	s := NewSession(Identity{}, 40, fixedClock(time.Unix(0, 0)))
	report := s.Report(5)
	if report.RiskLevel != RiskLow {
		t.Errorf("expected LOW_RISK, got %v", report.RiskLevel)
	}
}

func TestClassifyRiskMediumOnSingleGhostTyping(t *testing.T) {
	risk := ClassifyRisk(map[ViolationKind]int64{KindGhostTyping: 1})
	if risk != RiskMedium {
		t.Errorf("expected MEDIUM_RISK, got %v", risk)
	}
}

func TestClassifyRiskMediumOnFaceAbsenceFloodAbove20(t *testing.T) {
	risk := ClassifyRisk(map[ViolationKind]int64{KindNoFace: 21})
	if risk != RiskMedium {
		t.Errorf("expected MEDIUM_RISK, got %v", risk)
	}
	if ClassifyRisk(map[ViolationKind]int64{KindNoFace: 20}) != RiskLow {
		t.Error("expected exactly 20 NO_FACE_DETECTED to remain LOW_RISK")
	}
}

func TestClassifyRiskHighOnTwoMultiplePersons(t *testing.T) {
	risk := ClassifyRisk(map[ViolationKind]int64{KindMultiplePeople: 2})
	if risk != RiskHigh {
		t.Errorf("expected HIGH_RISK, got %v", risk)
	}
}

func TestCooldownElapsedUsesInjectedClock(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewSession(Identity{}, 40, fixedClock(now))
	s.NoteEmit(KindGhostTyping)

	if s.CooldownElapsed(KindGhostTyping, 8*time.Second) {
		t.Error("expected cooldown to be active immediately after NoteEmit at a fixed clock")
	}
}
