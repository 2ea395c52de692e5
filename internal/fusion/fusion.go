// Package fusion evaluates a session's rolling detection history against
// the ghost-typing scenarios: keyboard-driven text appearing on screen
// without a corresponding physical typing action from the examinee.
package fusion

import (
	"time"

	"github.com/proctorfusion/engine/internal/sessionstate"
)

// WindowThreshold bundles a scenario's primary and confirmation counter
// bounds so thresholds stay named, tunable fields rather than constants
// scattered through the scenario logic.
type WindowThreshold struct {
	ScreenTyping int // minimum S_x
	HandsAbsent  int // minimum HA_x (scenario 1 only)
	HandsTyping  int // maximum HT_x (scenario 2 only)
	HandsNotTyp  int // minimum HNT_x (scenario 2 primary only)
}

// Config holds every tunable the fusion layer reads, named per spec
// rather than hardcoded, so they can be loaded from internal/config.
type Config struct {
	PrimaryWindow      int // R: short window length (samples)
	ConfirmWindow      int // L: long confirmation window length (samples)
	MinHistoryToEval   int // minimum |history| before any evaluation runs
	EvalInterval       time.Duration
	GhostCooldown      time.Duration
	FaceCooldown       time.Duration
	Scenario1Primary   WindowThreshold
	Scenario1Confirm   WindowThreshold
	Scenario2Primary   WindowThreshold
	Scenario2Confirm   WindowThreshold
	FaceAbsenceMaxRate int // max NO_FACE_DETECTED emissions per minute of session time
}

// DefaultConfig returns the thresholds named in the external tunable
// table: 12/20 and 18/30 for scenario 1, 12/4/14 and 18/6 for scenario 2.
func DefaultConfig() Config {
	return Config{
		PrimaryWindow:      20,
		ConfirmWindow:      30,
		MinHistoryToEval:   15,
		EvalInterval:       2 * time.Second,
		GhostCooldown:      8 * time.Second,
		FaceCooldown:       5 * time.Second,
		Scenario1Primary:   WindowThreshold{ScreenTyping: 12, HandsAbsent: 14},
		Scenario1Confirm:   WindowThreshold{ScreenTyping: 18, HandsAbsent: 21},
		Scenario2Primary:   WindowThreshold{ScreenTyping: 12, HandsTyping: 4, HandsNotTyp: 14},
		Scenario2Confirm:   WindowThreshold{ScreenTyping: 18, HandsTyping: 6},
		FaceAbsenceMaxRate: 12,
	}
}

// windowCounts are the five counters taken over a window of samples, per
// spec.md's S_x/HT_x/HV_x/HA_x/HNT_x definitions.
type windowCounts struct {
	screenTyping int
	handsTyping  int
	handsVisible int
	handsAbsent  int
	handsNotTyp  int
}

func countWindow(samples []sessionstate.DetectionSample) windowCounts {
	var c windowCounts
	for _, s := range samples {
		if s.ScreenTyping {
			c.screenTyping++
		}
		if s.HandsTyping {
			c.handsTyping++
		}
		if s.HandsVisible {
			c.handsVisible++
			if !s.HandsTyping {
				c.handsNotTyp++
			}
		}
	}
	c.handsAbsent = len(samples) - c.handsVisible
	return c
}

// Evaluator applies the scenario rules over a session's rolling history.
type Evaluator struct {
	cfg Config
}

// New builds an Evaluator with cfg.
func New(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate runs the dual-window ghost-typing scenarios against session's
// history. It does not itself enforce the T_eval cadence — callers (the
// session manager) decide when an evaluation tick is due. It returns at
// most one GHOST_TYPING_DETECTED violation per call, honouring the
// session's ghost-typing cooldown.
func (e *Evaluator) Evaluate(session *sessionstate.Session, now time.Time) []sessionstate.Violation {
	if session.History.Len() < e.cfg.MinHistoryToEval {
		return nil
	}

	if !session.CooldownElapsed(sessionstate.KindGhostTyping, e.cfg.GhostCooldown) {
		return nil
	}

	r := countWindow(session.History.Recent(e.cfg.PrimaryWindow))
	l := countWindow(session.History.Recent(e.cfg.ConfirmWindow))

	if v, ok := e.evaluateHandsAbsent(r, l, now); ok {
		return []sessionstate.Violation{v}
	}
	if v, ok := e.evaluateHandsNotTyping(r, l, now); ok {
		return []sessionstate.Violation{v}
	}
	return nil
}

func (e *Evaluator) evaluateHandsAbsent(r, l windowCounts, now time.Time) (sessionstate.Violation, bool) {
	primary := e.cfg.Scenario1Primary
	confirm := e.cfg.Scenario1Confirm

	primaryHolds := r.screenTyping >= primary.ScreenTyping && r.handsAbsent >= primary.HandsAbsent
	confirmHolds := l.screenTyping >= confirm.ScreenTyping && l.handsAbsent >= confirm.HandsAbsent
	if !primaryHolds || !confirmHolds {
		return sessionstate.Violation{}, false
	}

	return sessionstate.Violation{
		Kind:       sessionstate.KindGhostTyping,
		Severity:   sessionstate.SeverityCritical,
		At:         now,
		Confidence: 0.90,
		Scenario:   "hands_absent",
		Evidence: map[string]int{
			"S_R":  r.screenTyping,
			"HA_R": r.handsAbsent,
			"S_L":  l.screenTyping,
			"HA_L": l.handsAbsent,
		},
	}, true
}

func (e *Evaluator) evaluateHandsNotTyping(r, l windowCounts, now time.Time) (sessionstate.Violation, bool) {
	primary := e.cfg.Scenario2Primary
	confirm := e.cfg.Scenario2Confirm

	primaryHolds := r.screenTyping >= primary.ScreenTyping &&
		r.handsTyping <= primary.HandsTyping &&
		r.handsNotTyp >= primary.HandsNotTyp
	confirmHolds := l.screenTyping >= confirm.ScreenTyping && l.handsTyping <= confirm.HandsTyping
	if !primaryHolds || !confirmHolds {
		return sessionstate.Violation{}, false
	}

	return sessionstate.Violation{
		Kind:       sessionstate.KindGhostTyping,
		Severity:   sessionstate.SeverityHigh,
		At:         now,
		Confidence: 0.80,
		Scenario:   "hands_not_typing",
		Evidence: map[string]int{
			"S_R":   r.screenTyping,
			"HT_R":  r.handsTyping,
			"HNT_R": r.handsNotTyp,
			"S_L":   l.screenTyping,
			"HT_L":  l.handsTyping,
		},
	}, true
}

// faceAbsenceRateExceeded reports whether this session has already emitted
// NO_FACE_DETECTED at or above cfg.FaceAbsenceMaxRate per minute, so a
// flaky camera feed can't flood the log once its per-emission cooldown
// alone would otherwise let it through.
func (e *Evaluator) faceAbsenceRateExceeded(session *sessionstate.Session, now time.Time) bool {
	if e.cfg.FaceAbsenceMaxRate <= 0 {
		return false
	}
	elapsedMinutes := now.Sub(session.StartedAt).Minutes()
	if elapsedMinutes < 1 {
		elapsedMinutes = 1
	}
	return float64(session.Counters.ByKind[sessionstate.KindNoFace]) >= float64(e.cfg.FaceAbsenceMaxRate)*elapsedMinutes
}

// EvaluateFrameViolations checks the independent, per-frame face-count
// violations — these do not go through the rolling window and are
// subject only to their own per-kind cooldown.
func (e *Evaluator) EvaluateFrameViolations(session *sessionstate.Session, faceCount int, now time.Time) []sessionstate.Violation {
	var violations []sessionstate.Violation

	switch {
	case faceCount == 0:
		if session.CooldownElapsed(sessionstate.KindNoFace, e.cfg.FaceCooldown) && !e.faceAbsenceRateExceeded(session, now) {
			violations = append(violations, sessionstate.Violation{
				Kind:     sessionstate.KindNoFace,
				Severity: sessionstate.SeverityMedium,
				At:       now,
				Evidence: map[string]int{"faceCount": faceCount},
			})
		}
	case faceCount > 1:
		if session.CooldownElapsed(sessionstate.KindMultiplePeople, e.cfg.FaceCooldown) {
			violations = append(violations, sessionstate.Violation{
				Kind:     sessionstate.KindMultiplePeople,
				Severity: sessionstate.SeverityCritical,
				At:       now,
				Evidence: map[string]int{"faceCount": faceCount},
			})
		}
	}

	return violations
}
