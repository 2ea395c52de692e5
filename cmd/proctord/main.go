// proctord runs the ghost-typing correlation engine: a WebSocket endpoint
// that ingests camera/screen frames per exam session, fuses them into
// violations, and persists finished session reports.
//
//	proctord serve [-config path]   Run the daemon
//	proctord version                Print version information
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proctorfusion/engine/internal/config"
	"github.com/proctorfusion/engine/internal/fusion"
	"github.com/proctorfusion/engine/internal/health"
	"github.com/proctorfusion/engine/internal/ingress"
	"github.com/proctorfusion/engine/internal/logging"
	"github.com/proctorfusion/engine/internal/manager"
	"github.com/proctorfusion/engine/internal/metrics"
	"github.com/proctorfusion/engine/internal/schemavalidation"
	"github.com/proctorfusion/engine/internal/store"
	"github.com/proctorfusion/engine/internal/vision"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		cmdServe(nil)
		return
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	case "version", "-v", "--version":
		fmt.Printf("proctord %s (built %s)\n", Version, BuildTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`proctord - ghost-typing correlation engine

USAGE:
    proctord <command> [options]

COMMANDS:
    serve [-config path]   Run the daemon (default if no command given)
    version                Print version information
    help                   Show this message`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a TOML config file (defaults apply if omitted)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "proctord: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    logging.FormatJSON,
		Component: "proctord",
	})

	metricsRegistry := metrics.NewRegistry()
	activeSessionsGauge := metricsRegistry.Gauge("proctord_active_sessions", "number of sessions currently being proctored")
	deadLettersGauge := metricsRegistry.Gauge("proctord_dead_lettered_reports", "session reports that failed to persist")
	healthChecker := health.NewChecker()

	sqliteSink, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer sqliteSink.Close()

	deadLetter := store.NewDeadLetter()
	guardedSink := store.NewGuardedSink(sqliteSink, deadLetter, nil)

	healthChecker.RegisterFunc("store", true, health.DatabaseCheck(sqliteSink.Ping))

	validator, err := schemavalidation.NewValidator()
	if err != nil {
		logger.Error("failed to build schema validator", "err", err)
		os.Exit(1)
	}

	factory := newDetectorFactory(cfg)
	registry := manager.New(factory, guardedSink, managerSettings(cfg), logger.With("component", "manager"), nil)

	healthChecker.RegisterFunc("manager", false, health.CustomCheck(func() error {
		return nil // the registry has no failure mode of its own to surface; presence suffices
	}))

	server := ingress.NewServer(registry, validator, logger.With("component", "ingress"), nil)

	mux := http.NewServeMux()
	mux.Handle("/ws", server.Handler())
	mux.Handle("/metrics", metricsRegistry.Handler())
	mux.Handle("/health", healthChecker.Handler())

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go registry.RunIdleReaper(ctx, time.Minute)

	watcher, err := config.NewWatcher(*configPath, logger.With("component", "config"))
	if err != nil && *configPath != "" {
		logger.Warn("config hot-reload disabled", "err", err)
	} else if watcher != nil {
		go watcher.Run(ctx, func(reloaded *config.Config) {
			logger.Info("config file changed; restart proctord to apply new tunables", "path", *configPath)
		})
		defer watcher.Close()
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	healthChecker.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down")
			healthChecker.SetReady(false)
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("error during shutdown", "err", err)
			}
			shutdownCancel()

			logger.Info("stopped")
			return

		case <-ticker.C:
			activeSessionsGauge.Set(registry.ActiveSessions())
			deadLettersGauge.Set(int64(deadLetter.Len()))
			logger.Info("status", "active_sessions", registry.ActiveSessions(), "dead_letters", deadLetter.Len())

		case <-ctx.Done():
			return
		}
	}
}

// managerSettings maps the flat config.Config into manager.Settings and
// the fusion.Config it embeds, starting from fusion's own defaults for the
// window lengths spec.md fixes (R=20, L=30) and overriding only the
// tunables config.go exposes.
func managerSettings(cfg *config.Config) manager.Settings {
	fusionCfg := fusion.DefaultConfig()
	fusionCfg.EvalInterval = cfg.EvalInterval()
	fusionCfg.GhostCooldown = cfg.GhostCooldown()
	fusionCfg.FaceCooldown = cfg.FaceCooldown()
	fusionCfg.Scenario1Primary = fusion.WindowThreshold{
		ScreenTyping: cfg.Scenario1PrimaryScreen,
		HandsAbsent:  cfg.Scenario1PrimaryAbsent,
	}
	fusionCfg.Scenario1Confirm = fusion.WindowThreshold{
		ScreenTyping: cfg.Scenario1ConfirmScreen,
		HandsAbsent:  cfg.Scenario1ConfirmAbsent,
	}
	fusionCfg.Scenario2Primary = fusion.WindowThreshold{
		ScreenTyping: cfg.Scenario2PrimaryScreen,
		HandsTyping:  cfg.Scenario2PrimaryTypingMax,
		HandsNotTyp:  cfg.Scenario2PrimaryIdle,
	}
	fusionCfg.Scenario2Confirm = fusion.WindowThreshold{
		ScreenTyping: cfg.Scenario2ConfirmScreen,
		HandsTyping:  cfg.Scenario2ConfirmTypingMax,
	}

	return manager.Settings{
		SmoothWindow:     cfg.SmoothWindow,
		SmoothRatio:      cfg.SmoothRatio,
		HistoryCapacity:  cfg.HistoryCapacity,
		EvalInterval:     cfg.EvalInterval(),
		QueueCapacity:    cfg.InboundQueueCapacity,
		StatusEvery:      cfg.StatusEvery,
		IdleTimeout:      cfg.IdleTimeout(),
		ReportTailLength: 20,
		Fusion:           fusionCfg,
	}
}

// detectorFactory builds a fresh pair of stateful detectors per session,
// so the screen adapter's previous-frame buffer and rhythm window never
// leak across unrelated exam sessions.
type detectorFactory struct {
	visionCfg vision.Config
	camera    vision.CameraPrimitives
}

func newDetectorFactory(cfg *config.Config) *detectorFactory {
	visionCfg := vision.DefaultConfig()
	visionCfg.TypingConfidenceThreshold = cfg.TypingConfidenceThreshold
	visionCfg.ScreenConfirmFrames = cfg.ScreenConfirmFrames

	return &detectorFactory{
		visionCfg: visionCfg,
		// No hand/face landmarking library lives in this module's
		// dependency set; nullCameraPrimitives is the documented seam
		// where one gets wired in.
		camera: nullCameraPrimitives{},
	}
}

func (f *detectorFactory) NewCameraDetector() manager.CameraDetector {
	return vision.NewCameraAdapter(f.camera, f.visionCfg)
}

func (f *detectorFactory) NewScreenDetector() manager.ScreenDetector {
	return vision.NewScreenAdapter(f.visionCfg)
}

// nullCameraPrimitives reports no face and no hands for every frame. Face
// and hand landmarking is an external vision-primitive concern this
// module deliberately doesn't implement; a real deployment swaps this for
// an adapter over whatever landmarking service or model the deployment
// runs.
type nullCameraPrimitives struct{}

func (nullCameraPrimitives) DetectCameraFrame(pixels []byte, width, height int) (vision.CameraPrimitiveOutput, error) {
	return vision.CameraPrimitiveOutput{}, nil
}
