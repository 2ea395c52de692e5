// Package sessionstate owns everything a single proctoring session
// accumulates between frames: its rolling detection history, its
// per-violation-kind cooldowns, and its append-only violation log. A
// Session is touched by exactly one logical actor at a time (see the
// session manager's per-connection goroutine), so nothing in this
// package takes a lock.
package sessionstate

import "time"

// ViolationKind names a class of observation the fusion layer can emit.
type ViolationKind string

const (
	KindGhostTyping    ViolationKind = "GHOST_TYPING_DETECTED"
	KindNoFace         ViolationKind = "NO_FACE_DETECTED"
	KindMultiplePeople ViolationKind = "MULTIPLE_PERSONS"
)

// Severity ranks how serious a single violation is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// RiskLevel is the coarse classification computed once at session end.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW_RISK"
	RiskMedium RiskLevel = "MEDIUM_RISK"
	RiskHigh   RiskLevel = "HIGH_RISK"
)

// Violation is an immutable, timestamped observation. Once appended to a
// session's log it is never mutated.
type Violation struct {
	Kind       ViolationKind  `json:"kind"`
	Severity   Severity       `json:"severity"`
	At         time.Time      `json:"t"`
	Details    string         `json:"details,omitempty"`
	Confidence float64        `json:"confidence"`
	Evidence   map[string]int `json:"evidence,omitempty"`
	Scenario   string         `json:"scenario,omitempty"`
}

// DetectionSample is one frame's worth of fused, smoothed signal, written
// into a session's rolling history on the camera path.
type DetectionSample struct {
	Seq              int64
	At               time.Time
	HandsVisible     bool
	HandsTyping      bool
	ScreenTyping     bool
	HandCount        int
	TypingConfidence float64
}

// Identity names the examinee and connection a Session belongs to.
type Identity struct {
	StudentID string
	ExamID    string
	SessionID string
}
