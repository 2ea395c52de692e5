package fusion

import (
	"testing"
	"time"

	"github.com/proctorfusion/engine/internal/sessionstate"
)

func newTestSession(now time.Time) *sessionstate.Session {
	return sessionstate.NewSession(sessionstate.Identity{SessionID: "s1"}, 40, func() time.Time { return now })
}

func fillSamples(s *sessionstate.Session, n int, sample sessionstate.DetectionSample) {
	for i := 0; i < n; i++ {
		s.AppendSample(sample)
	}
}

func TestEvaluateNoEmissionUnderMinHistory(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	fillSamples(s, 14, sessionstate.DetectionSample{ScreenTyping: true})
	if got := e.Evaluate(s, now); got != nil {
		t.Errorf("expected no emission under MinHistoryToEval, got %+v", got)
	}
}

func TestEvaluateHandsAbsentScenario(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	fillSamples(s, 30, sessionstate.DetectionSample{ScreenTyping: true, HandsVisible: false})

	violations := e.Evaluate(s, now)
	if len(violations) != 1 {
		t.Fatalf("expected exactly one emission, got %d", len(violations))
	}
	v := violations[0]
	if v.Kind != sessionstate.KindGhostTyping || v.Severity != sessionstate.SeverityCritical || v.Scenario != "hands_absent" {
		t.Errorf("expected hands_absent CRITICAL ghost typing, got %+v", v)
	}
	if v.Confidence != 0.90 {
		t.Errorf("expected confidence 0.90, got %f", v.Confidence)
	}
}

func TestEvaluateHandsNotTypingScenario(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	fillSamples(s, 30, sessionstate.DetectionSample{ScreenTyping: true, HandsVisible: true, HandsTyping: false})

	violations := e.Evaluate(s, now)
	if len(violations) != 1 {
		t.Fatalf("expected exactly one emission, got %d", len(violations))
	}
	v := violations[0]
	if v.Kind != sessionstate.KindGhostTyping || v.Severity != sessionstate.SeverityHigh || v.Scenario != "hands_not_typing" {
		t.Errorf("expected hands_not_typing HIGH ghost typing, got %+v", v)
	}
	if v.Confidence != 0.80 {
		t.Errorf("expected confidence 0.80, got %f", v.Confidence)
	}
}

func TestEvaluateCleanSessionNeverEmits(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	fillSamples(s, 40, sessionstate.DetectionSample{ScreenTyping: true, HandsVisible: true, HandsTyping: true})

	if got := e.Evaluate(s, now); got != nil {
		t.Errorf("expected zero violations for a clean typing session, got %+v", got)
	}
}

func TestEvaluateHonoursGhostCooldown(t *testing.T) {
	start := time.Unix(0, 0)
	s := newTestSession(start)
	e := New(DefaultConfig())

	fillSamples(s, 30, sessionstate.DetectionSample{ScreenTyping: true, HandsVisible: false})

	first := e.Evaluate(s, start)
	if len(first) != 1 {
		t.Fatalf("expected an initial emission, got %d", len(first))
	}
	s.NoteEmit(sessionstate.KindGhostTyping)

	soon := start.Add(5 * time.Second)
	s.Now = func() time.Time { return soon }
	if got := e.Evaluate(s, soon); got != nil {
		t.Errorf("expected cooldown to suppress a second emission at +5s, got %+v", got)
	}

	later := start.Add(9 * time.Second)
	s.Now = func() time.Time { return later }
	if got := e.Evaluate(s, later); len(got) != 1 {
		t.Errorf("expected a new emission once the 8s cooldown has elapsed, got %+v", got)
	}
}

func TestEvaluateTransientOcclusionDoesNotEmit(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	// Mostly normal typing, with a single transient window of hands
	// absent: 5 absent samples stay far below the hands-absent thresholds
	// of both the 20-sample primary and the 30-sample confirmation window.
	fillSamples(s, 25, sessionstate.DetectionSample{ScreenTyping: true, HandsVisible: true, HandsTyping: true})
	fillSamples(s, 5, sessionstate.DetectionSample{ScreenTyping: true, HandsVisible: false})

	if got := e.Evaluate(s, now); got != nil {
		t.Errorf("expected a brief occlusion to not trigger ghost typing, got %+v", got)
	}
}

func TestEvaluateFrameViolationsNoFace(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	violations := e.EvaluateFrameViolations(s, 0, now)
	if len(violations) != 1 || violations[0].Kind != sessionstate.KindNoFace {
		t.Fatalf("expected a single NO_FACE_DETECTED, got %+v", violations)
	}
	if violations[0].Severity != sessionstate.SeverityMedium {
		t.Errorf("expected MEDIUM severity, got %v", violations[0].Severity)
	}
}

func TestEvaluateFrameViolationsMultiplePersons(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	violations := e.EvaluateFrameViolations(s, 2, now)
	if len(violations) != 1 || violations[0].Kind != sessionstate.KindMultiplePeople {
		t.Fatalf("expected a single MULTIPLE_PERSONS, got %+v", violations)
	}
	if violations[0].Severity != sessionstate.SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %v", violations[0].Severity)
	}
}

func TestEvaluateFrameViolationsSingleFaceIsClean(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestSession(now)
	e := New(DefaultConfig())

	if got := e.EvaluateFrameViolations(s, 1, now); got != nil {
		t.Errorf("expected no violation for a single face, got %+v", got)
	}
}

func TestEvaluateFrameViolationsRespectsFaceCooldown(t *testing.T) {
	start := time.Unix(0, 0)
	s := newTestSession(start)
	e := New(DefaultConfig())

	first := e.EvaluateFrameViolations(s, 0, start)
	if len(first) != 1 {
		t.Fatalf("expected an initial NO_FACE_DETECTED, got %d", len(first))
	}
	s.NoteEmit(sessionstate.KindNoFace)

	soon := start.Add(2 * time.Second)
	if got := e.EvaluateFrameViolations(s, 0, soon); got != nil {
		t.Errorf("expected the 5s face cooldown to suppress a repeat at +2s, got %+v", got)
	}
}

func TestEvaluateFrameViolationsRespectsFaceAbsenceMaxRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FaceCooldown = 0
	cfg.FaceAbsenceMaxRate = 12

	start := time.Unix(0, 0)
	s := newTestSession(start)
	e := New(cfg)

	for i := 0; i < cfg.FaceAbsenceMaxRate; i++ {
		s.AppendViolation(sessionstate.Violation{Kind: sessionstate.KindNoFace, Severity: sessionstate.SeverityMedium, At: start})
	}

	if got := e.EvaluateFrameViolations(s, 0, start); got != nil {
		t.Errorf("expected the per-minute cap to suppress a 13th NO_FACE_DETECTED within the same minute, got %+v", got)
	}

	later := start.Add(2 * time.Minute)
	if got := e.EvaluateFrameViolations(s, 0, later); len(got) != 1 {
		t.Errorf("expected the cap to allow a new emission once enough session time has elapsed, got %+v", got)
	}
}
