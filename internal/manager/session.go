package manager

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/proctorfusion/engine/internal/fusion"
	"github.com/proctorfusion/engine/internal/sessionstate"
	"github.com/proctorfusion/engine/internal/smoother"
	"github.com/proctorfusion/engine/internal/vision"
)

// sessionActor is the single goroutine that owns one examinee's detection
// state. Camera and screen frames for the same session arrive on separate
// bounded queues but are drained by one consumer, so the session's
// history, counters, and cooldowns never need their own lock.
type sessionActor struct {
	connectionID string
	session      *sessionstate.Session

	camera CameraDetector
	screen ScreenDetector

	handsVisible *smoother.RollingBool
	handsTyping  *smoother.RollingBool
	screenTyping *smoother.RollingBool

	fusion       *fusion.Evaluator
	evalInterval time.Duration
	statusEvery  int64

	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	cameraQueue chan vision.Frame
	screenQueue chan vision.Frame
	stop        chan struct{}
	done        chan struct{}

	lastActivity atomic.Int64 // unix nanoseconds, touched by the enqueueing goroutine
}

func newSessionActor(connectionID string, session *sessionstate.Session, cam CameraDetector, scr ScreenDetector,
	smoothWindow int, smoothRatio float64, fusionEval *fusion.Evaluator, evalInterval time.Duration,
	queueCapacity, statusEvery int, emitter Emitter, logger *slog.Logger, now func() time.Time) *sessionActor {

	if queueCapacity < 1 {
		queueCapacity = 1
	}
	a := &sessionActor{
		connectionID: connectionID,
		session:      session,
		camera:       cam,
		screen:       scr,
		handsVisible: smoother.New(smoothWindow, smoothRatio),
		handsTyping:  smoother.New(smoothWindow, smoothRatio),
		screenTyping: smoother.New(smoothWindow, smoothRatio),
		fusion:       fusionEval,
		evalInterval: evalInterval,
		statusEvery:  int64(statusEvery),
		emitter:      emitter,
		logger:       logger,
		now:          clockOrDefault(now),
		cameraQueue:  make(chan vision.Frame, queueCapacity),
		screenQueue:  make(chan vision.Frame, queueCapacity),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	a.lastActivity.Store(a.now().UnixNano())
	return a
}

// run alternates fairly between the two queues until stop is closed, then
// drains nothing further: in-flight work is allowed to finish, but no new
// dequeue happens after stop (matching the cancellation semantics of an
// actor whose channel has been closed).
func (a *sessionActor) run() {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			return
		case frame := <-a.cameraQueue:
			a.handleCameraFrame(frame)
		case frame := <-a.screenQueue:
			a.handleScreenFrame(frame)
		}
	}
}

func (a *sessionActor) handleCameraFrame(frame vision.Frame) {
	out, err := a.camera.DetectCamera(frame)
	if err != nil {
		a.logger.Warn("camera detector failed", "session", a.session.Identity.SessionID, "err", err)
		return
	}

	a.handsVisible.Push(out.HandsVisible)
	a.handsTyping.Push(out.HandsTyping)

	now := a.now()
	sample := sessionstate.DetectionSample{
		At:               now,
		HandsVisible:     a.handsVisible.Stable(),
		HandsTyping:      a.handsTyping.Stable(),
		ScreenTyping:     a.screenTyping.Stable(),
		TypingConfidence: out.TypingConfidence,
	}
	a.session.AppendSample(sample)

	for _, v := range a.fusion.EvaluateFrameViolations(a.session, out.FaceCount, now) {
		a.emit(v)
	}
	a.maybeEvaluateFusion(now)

	if a.session.Counters.CameraFrames%a.statusEvery == 0 {
		a.emitStatus()
	}
}

func (a *sessionActor) handleScreenFrame(frame vision.Frame) {
	out, err := a.screen.DetectScreen(frame)
	if err != nil {
		a.logger.Warn("screen detector failed", "session", a.session.Identity.SessionID, "err", err)
		return
	}
	a.screenTyping.Push(out.ScreenTyping)
	a.session.Counters.ScreenFrames++
}

func (a *sessionActor) maybeEvaluateFusion(now time.Time) {
	if a.session.LastEval.IsZero() || now.Sub(a.session.LastEval) >= a.evalInterval {
		a.session.LastEval = now
		for _, v := range a.fusion.Evaluate(a.session, now) {
			a.emit(v)
		}
	}
}

func (a *sessionActor) emit(v sessionstate.Violation) {
	a.session.AppendViolation(v)
	a.session.NoteEmit(v.Kind)
	a.emitter.EmitViolations([]sessionstate.Violation{v})
}

func (a *sessionActor) emitStatus() {
	a.emitter.EmitStatus(StatusSnapshot{
		FramesProcessed:       a.session.Counters.CameraFrames,
		ScreenFramesProcessed: a.session.Counters.ScreenFrames,
		TotalViolations:       a.session.Counters.Total(),
		GhostTypingCount:      a.session.Counters.ByKind[sessionstate.KindGhostTyping],
	})
}

// touch records inbound activity for the idle reaper. Safe to call from
// any goroutine.
func (a *sessionActor) touch() {
	a.lastActivity.Store(a.now().UnixNano())
}

func (a *sessionActor) idleSince(now time.Time) time.Duration {
	last := time.Unix(0, a.lastActivity.Load())
	return now.Sub(last)
}

// enqueue applies the drop-oldest-of-the-same-substream backpressure
// policy: if the target queue is full, its single oldest entry is
// discarded to make room for the newest frame. The other substream's
// queue is never touched.
func (a *sessionActor) enqueue(substream vision.Substream, frame vision.Frame) {
	a.touch()

	queue := a.cameraQueue
	if substream == vision.SubstreamScreen {
		queue = a.screenQueue
	}

	select {
	case queue <- frame:
		return
	default:
	}

	select {
	case <-queue:
	default:
	}

	select {
	case queue <- frame:
	default:
		a.logger.Warn("dropped frame under backpressure", "session", a.session.Identity.SessionID, "substream", substream)
	}
}

func (a *sessionActor) close() {
	close(a.stop)
	<-a.done
}
