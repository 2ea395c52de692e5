package sessionstate

import "time"

// Counters tracks the per-session frame and violation totals surfaced in
// periodic status messages and the final report.
type Counters struct {
	CameraFrames int64
	ScreenFrames int64
	ByKind       map[ViolationKind]int64
}

func newCounters() Counters {
	return Counters{ByKind: make(map[ViolationKind]int64)}
}

// Total returns the sum of every kind's violation count.
func (c Counters) Total() int64 {
	var total int64
	for _, n := range c.ByKind {
		total += n
	}
	return total
}

// Session is the complete per-examinee state: identity, counters, the
// rolling detection history, cooldowns, and the append-only violation
// log. Everything here belongs to one logical actor; see the package doc.
type Session struct {
	Identity  Identity
	StartedAt time.Time
	Now       func() time.Time // injected clock; defaults to time.Now

	History   *History
	Cooldowns *CooldownTable
	Log       []Violation
	Counters  Counters

	// LastEval is the wall-clock time fusion last evaluated this
	// session, used to enforce T_eval between evaluations.
	LastEval time.Time

	// Degraded is copied into the final report. Nothing in this module
	// sets it: detector construction has no failure path, so every
	// session reports Degraded as false.
	Degraded bool
}

// NewSession creates a Session with an empty history of the given
// capacity. now defaults to time.Now when nil.
func NewSession(identity Identity, historyCapacity int, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		Identity:  identity,
		StartedAt: now(),
		Now:       now,
		History:   NewHistory(historyCapacity),
		Cooldowns: NewCooldownTable(),
		Counters:  newCounters(),
	}
}

// AppendSample records a camera-path detection sample into the rolling
// history and bumps the camera frame counter.
func (s *Session) AppendSample(sample DetectionSample) DetectionSample {
	s.Counters.CameraFrames++
	return s.History.Append(sample)
}

// AppendViolation appends v to the log and bumps its kind's counter. It
// does not consult or update the cooldown table; callers decide whether a
// violation should be emitted before calling this.
func (s *Session) AppendViolation(v Violation) {
	s.Log = append(s.Log, v)
	s.Counters.ByKind[v.Kind]++
}

// CooldownElapsed reports whether delta has passed since kind was last
// emitted by this session.
func (s *Session) CooldownElapsed(kind ViolationKind, delta time.Duration) bool {
	return s.Cooldowns.Elapsed(kind, s.Now(), delta)
}

// NoteEmit arms kind's cooldown as of now.
func (s *Session) NoteEmit(kind ViolationKind) {
	s.Cooldowns.NoteEmit(kind, s.Now())
}

// Report produces the session's final SessionReport. lastK bounds how
// many of the most recent log entries are included verbatim.
func (s *Session) Report(lastK int) SessionReport {
	now := s.Now()

	var recent []Violation
	if lastK > 0 && len(s.Log) > 0 {
		start := len(s.Log) - lastK
		if start < 0 {
			start = 0
		}
		recent = append(recent, s.Log[start:]...)
	}

	byKind := make(map[ViolationKind]int64, len(s.Counters.ByKind))
	for k, v := range s.Counters.ByKind {
		byKind[k] = v
	}

	return SessionReport{
		Identity:         s.Identity,
		StartedAt:        s.StartedAt,
		EndedAt:          now,
		Duration:         now.Sub(s.StartedAt),
		TotalViolations:  s.Counters.Total(),
		ViolationsByKind: byKind,
		RecentViolations: recent,
		RiskLevel:        ClassifyRisk(byKind),
		CameraFrames:     s.Counters.CameraFrames,
		ScreenFrames:     s.Counters.ScreenFrames,
		Degraded:         s.Degraded,
	}
}
