package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/proctorfusion/engine/internal/fusion"
	"github.com/proctorfusion/engine/internal/sessionstate"
	"github.com/proctorfusion/engine/internal/vision"
)

// Sink persists a finished session's report. It mirrors internal/store's
// Sink interface structurally so manager never imports internal/store.
type Sink interface {
	Append(ctx context.Context, report sessionstate.SessionReport) error
}

// Settings bundles the tunables the registry needs to build each new
// session's smoothers, fusion evaluator, and inbound queues.
type Settings struct {
	SmoothWindow     int
	SmoothRatio      float64
	HistoryCapacity  int
	EvalInterval     time.Duration
	QueueCapacity    int
	StatusEvery      int
	IdleTimeout      time.Duration
	ReportTailLength int
	Fusion           fusion.Config
}

// Registry maps a connectionId to its active session actor. Insertions
// and removals are safe under concurrent start/end calls arriving from
// different ingress connections, grounded on the sync.Map-backed
// SessionRegistry pattern used for per-connection state keyed by a
// connection identifier rather than a lock-protected map.
type Registry struct {
	sessions sync.Map // map[string]*sessionActor

	factory DetectorFactory
	sink    Sink
	cfg     Settings
	fusion  *fusion.Evaluator

	logger *slog.Logger
	now    func() time.Time

	activeCount atomic.Int64
}

// New builds a Registry. now defaults to time.Now when nil.
func New(factory DetectorFactory, sink Sink, cfg Settings, logger *slog.Logger, now func() time.Time) *Registry {
	return &Registry{
		factory: factory,
		sink:    sink,
		cfg:     cfg,
		fusion:  fusion.New(cfg.Fusion),
		logger:  logger,
		now:     clockOrDefault(now),
	}
}

// ActiveSessions reports the number of sessions currently tracked.
func (r *Registry) ActiveSessions() int64 { return r.activeCount.Load() }

// Start creates a new session for connectionID, assigns it a sessionId,
// and registers its actor goroutine. It is an error to start a session on
// a connectionID that already has one.
func (r *Registry) Start(connectionID string, req StartRequest, emitter Emitter) (string, error) {
	if _, exists := r.sessions.Load(connectionID); exists {
		return "", fmt.Errorf("manager: connection %s already has an active session", connectionID)
	}

	sessionID := uuid.NewString()
	identity := sessionstate.Identity{
		StudentID: req.StudentID,
		ExamID:    req.ExamID,
		SessionID: sessionID,
	}
	session := sessionstate.NewSession(identity, r.cfg.HistoryCapacity, r.now)

	actor := newSessionActor(connectionID, session, r.factory.NewCameraDetector(), r.factory.NewScreenDetector(),
		r.cfg.SmoothWindow, r.cfg.SmoothRatio, r.fusion, r.cfg.EvalInterval, r.cfg.QueueCapacity, r.cfg.StatusEvery,
		emitter, r.logger, r.now)

	if _, loaded := r.sessions.LoadOrStore(connectionID, actor); loaded {
		return "", fmt.Errorf("manager: connection %s already has an active session", connectionID)
	}
	r.activeCount.Add(1)
	go actor.run()

	r.logger.Info("session started", "connection", connectionID, "session", sessionID,
		"student", req.StudentID, "exam", req.ExamID)
	return sessionID, nil
}

// RouteFrame hands frame to connectionID's session actor, applying the
// substream's backpressure policy if its queue is full. It is a no-op
// error if no session is registered for connectionID.
func (r *Registry) RouteFrame(connectionID string, substream vision.Substream, frame vision.Frame) error {
	actor, ok := r.actorFor(connectionID)
	if !ok {
		return fmt.Errorf("manager: no active session for connection %s", connectionID)
	}
	actor.enqueue(substream, frame)
	return nil
}

// End finalises connectionID's session: it stops the actor (allowing any
// in-flight frame to finish), computes the final report, persists it, and
// removes the session from the registry.
func (r *Registry) End(ctx context.Context, connectionID string) (sessionstate.SessionReport, error) {
	actor, ok := r.actorFor(connectionID)
	if !ok {
		return sessionstate.SessionReport{}, fmt.Errorf("manager: no active session for connection %s", connectionID)
	}
	return r.finish(ctx, connectionID, actor, nil)
}

// finish is shared by End and the idle reaper.
func (r *Registry) finish(ctx context.Context, connectionID string, actor *sessionActor, cause error) (sessionstate.SessionReport, error) {
	actor.close()
	r.sessions.Delete(connectionID)
	r.activeCount.Add(-1)

	report := actor.session.Report(r.cfg.ReportTailLength)

	if err := r.sink.Append(ctx, report); err != nil {
		r.logger.Warn("failed to persist session report", "session", actor.session.Identity.SessionID, "err", err)
	}

	if cause != nil {
		r.logger.Info("session reclaimed for inactivity", "connection", connectionID, "session", actor.session.Identity.SessionID)
	} else {
		r.logger.Info("session ended", "connection", connectionID, "session", actor.session.Identity.SessionID,
			"risk", report.RiskLevel, "violations", report.TotalViolations)
	}

	actor.emitter.EmitEnded(report)
	return report, cause
}

func (r *Registry) actorFor(connectionID string) (*sessionActor, bool) {
	v, ok := r.sessions.Load(connectionID)
	if !ok {
		return nil, false
	}
	return v.(*sessionActor), true
}

// RunIdleReaper blocks, sweeping for sessions that have received no frame
// within cfg.IdleTimeout, ending them as if end_proctoring had arrived.
// A ticker loop selecting against ctx.Done gives it a clean shutdown.
func (r *Registry) RunIdleReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle(ctx)
		}
	}
}

func (r *Registry) reapIdle(ctx context.Context) {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	now := r.now()

	var stale []string
	r.sessions.Range(func(key, value any) bool {
		actor := value.(*sessionActor)
		if actor.idleSince(now) >= r.cfg.IdleTimeout {
			stale = append(stale, key.(string))
		}
		return true
	})

	for _, connectionID := range stale {
		actor, ok := r.actorFor(connectionID)
		if !ok {
			continue
		}
		r.finish(ctx, connectionID, actor, ErrSessionReclaimed)
	}
}
