// Package manager owns the registry of active proctoring sessions and the
// per-session actor that serialises camera and screen frames through one
// logical thread of control.
package manager

import (
	"time"

	"github.com/proctorfusion/engine/internal/sessionstate"
	"github.com/proctorfusion/engine/internal/vision"
)

// StartRequest carries the fields an ingress connection supplies when
// opening a proctoring session.
type StartRequest struct {
	StudentID string
	ExamID    string
}

// CameraDetector and ScreenDetector narrow the vision adapters to the
// single method the manager actually calls, so sessions can be driven by
// fakes in tests without touching the vision package.
type CameraDetector interface {
	DetectCamera(frame vision.Frame) (vision.CameraOutput, error)
}

type ScreenDetector interface {
	DetectScreen(frame vision.Frame) (vision.ScreenOutput, error)
}

// DetectorFactory builds a fresh pair of detectors for a new session.
// Detectors carry per-session state (the screen adapter's previous-frame
// buffer, the rhythm ring) so every session needs its own instance.
type DetectorFactory interface {
	NewCameraDetector() CameraDetector
	NewScreenDetector() ScreenDetector
}

// StatusSnapshot is the payload of a periodic proctor_status message.
type StatusSnapshot struct {
	FramesProcessed       int64
	ScreenFramesProcessed int64
	TotalViolations       int64
	GhostTypingCount      int64
}

// Emitter delivers outbound events for one session back to its ingress
// connection. Implementations are expected to be non-blocking or to run
// the write on their own goroutine; the session actor calls these
// synchronously from its single-threaded run loop.
type Emitter interface {
	EmitViolations(violations []sessionstate.Violation)
	EmitStatus(status StatusSnapshot)
	EmitEnded(report sessionstate.SessionReport)
}

// frameJob pairs a frame with its substream. The session actor's queues
// carry vision.Frame values directly; nothing in this package uses frameJob.
type frameJob struct {
	substream vision.Substream
	frame     vision.Frame
}

// inactivityError marks a session ended by the idle reaper rather than an
// explicit end_proctoring message, so callers can log accordingly.
type inactivityError struct{}

func (inactivityError) Error() string { return "manager: session reclaimed for inactivity" }

// ErrSessionReclaimed is the cause the idle reaper passes to finish for a
// session it ends. A later End on that connection gets the registry's
// "no active session" error instead.
var ErrSessionReclaimed error = inactivityError{}

func clockOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
