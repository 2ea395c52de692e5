package ingress

import (
	"github.com/proctorfusion/engine/internal/manager"
	"github.com/proctorfusion/engine/internal/sessionstate"
)

// Inbound message kinds, per the message table.
const (
	kindStartProctoring = "start_proctoring"
	kindVideoFrame      = "video_frame"
	kindScreenFrame     = "screen_frame"
	kindEndProctoring   = "end_proctoring"
)

// Outbound message kinds.
const (
	kindConnectionResponse = "connection_response"
	kindProctoringStarted  = "proctoring_started"
	kindViolationDetected  = "violation_detected"
	kindProctorStatus      = "proctor_status"
	kindProctoringEnded    = "proctoring_ended"
	kindError              = "error"
)

// inboundMessage is the union of every inbound payload shape. Only the
// fields relevant to Type are populated by the sender; the rest are left
// zero. Schema validation (one schema per kind, run on the raw bytes
// before this decode) is what actually enforces which fields are
// required for a given Type.
type inboundMessage struct {
	Type      string  `json:"type"`
	StudentID string  `json:"studentId"`
	ExamID    string  `json:"examId"`
	Frame     string  `json:"frame"`
	Timestamp float64 `json:"timestamp"`
}

type connectionResponseMsg struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

type proctoringStartedMsg struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

type violationDetectedMsg struct {
	Type       string                   `json:"type"`
	Violations []sessionstate.Violation `json:"violations"`
	Timestamp  int64                    `json:"timestamp"`
	Source     string                   `json:"source,omitempty"`
}

type proctorStatusMsg struct {
	Type                  string `json:"type"`
	FramesProcessed       int64  `json:"framesProcessed"`
	ScreenFramesProcessed int64  `json:"screenFramesProcessed"`
	TotalViolations       int64  `json:"totalViolations"`
	GhostTypingCount      int64  `json:"ghostTypingCount"`
}

type proctoringEndedMsg struct {
	Type   string                     `json:"type"`
	Status string                     `json:"status"`
	Report sessionstate.SessionReport `json:"report"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newConnectionResponse(status, sessionID string) connectionResponseMsg {
	return connectionResponseMsg{Type: kindConnectionResponse, Status: status, SessionID: sessionID}
}

func newProctoringStarted(sessionID string) proctoringStartedMsg {
	return proctoringStartedMsg{Type: kindProctoringStarted, Status: "ok", SessionID: sessionID}
}

func newViolationDetected(violations []sessionstate.Violation, timestamp int64, source string) violationDetectedMsg {
	return violationDetectedMsg{Type: kindViolationDetected, Violations: violations, Timestamp: timestamp, Source: source}
}

func newProctorStatus(s manager.StatusSnapshot) proctorStatusMsg {
	return proctorStatusMsg{
		Type:                  kindProctorStatus,
		FramesProcessed:       s.FramesProcessed,
		ScreenFramesProcessed: s.ScreenFramesProcessed,
		TotalViolations:       s.TotalViolations,
		GhostTypingCount:      s.GhostTypingCount,
	}
}

func newProctoringEnded(report sessionstate.SessionReport) proctoringEndedMsg {
	return proctoringEndedMsg{Type: kindProctoringEnded, Status: "ok", Report: report}
}

func newError(message string) errorMsg {
	return errorMsg{Type: kindError, Message: message}
}
