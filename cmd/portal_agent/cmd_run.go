package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opextools/portal_agent/internal/api"
	"github.com/opextools/portal_agent/internal/browser"
	"github.com/opextools/portal_agent/internal/capture"
	"github.com/opextools/portal_agent/internal/config"
	"github.com/opextools/portal_agent/internal/input"
	"github.com/opextools/portal_agent/internal/netutil"
	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/relay"
	"github.com/opextools/portal_agent/internal/runner"
	"github.com/opextools/portal_agent/internal/snapshot"
	"github.com/opextools/portal_agent/internal/storage"
)

const traceBufferSize = 1024

var runFlags struct {
	input       string
	output      string
	user        string
	password    string
	logFile     string
	timeoutSec  int
	statusAddr  string
	trace       bool
	headless    bool
	noSnapshots bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process an input workbook against the portal",
	Long: `Run logs into the portal, looks up every CPF from the input workbook
and consolidates the results into an output workbook. Each finished
record is appended to a stream log, so partial output survives an
interrupted run.

Connection settings come from environment variables (PORTAL_URL,
PORTAL_CDP_URL, ...) or a .env file; flags override them.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.input, "input", "", "Input workbook with a CPF column")
	f.StringVar(&runFlags.output, "output", "", "Destination for the consolidated workbook")
	f.StringVar(&runFlags.user, "user", "", "Portal login user")
	f.StringVar(&runFlags.password, "password", "", "Portal login password")
	f.StringVar(&runFlags.logFile, "log", "logs/portal_agent.log", "Log file path")
	f.IntVar(&runFlags.timeoutSec, "timeout", 20, "Per-record timeout in seconds")
	f.StringVar(&runFlags.statusAddr, "status-addr", "", "Bind address for the status API (empty disables it)")
	f.BoolVar(&runFlags.trace, "trace", false, "Record a network trace of the session")
	f.BoolVar(&runFlags.headless, "headless", false, "Launch the browser headless")
	f.BoolVar(&runFlags.noSnapshots, "no-snapshots", false, "Skip failure screenshots")

	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("output")
	_ = runCmd.MarkFlagRequired("user")
	_ = runCmd.MarkFlagRequired("password")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadRun()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyRunFlags(cmd, cfg)

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("logger setup: %w", err)
	}

	slog.Info("portal_agent config loaded",
		"portal_url", cfg.PortalURL,
		"selectors_file", cfg.SelectorsFile,
		"cdp_url", cfg.EffectiveCDPURL(),
		"headless", cfg.Headless,
		"record_timeout_sec", cfg.RecordTimeoutSec,
		"stream_path", cfg.StreamPath,
		"snapshot_dir", cfg.SnapshotDir,
		"trace_enabled", cfg.TraceEnabled,
		"status_bind_addr", cfg.StatusBindAddr,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	sel, err := portal.LoadSelectors(cfg.SelectorsFile)
	if err != nil {
		return err
	}

	batch, err := input.Load(runFlags.input)
	if err != nil {
		return portal.NewError(portal.CodeInput, fmt.Sprintf("input workbook %q not usable", runFlags.input), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CDPURL == "" {
		launcher := browser.NewLauncher(browser.Config{
			BrowserPath: cfg.BrowserPath,
			DebugPort:   cfg.DebugPort,
			Headless:    cfg.Headless,
			StartURL:    cfg.PortalURL,
		})
		if err := launcher.Launch(ctx); err != nil {
			return portal.NewError(portal.CodeSession, "browser launch failed", err)
		}
		defer launcher.Stop()
	}

	sess := portal.NewSession(portal.Config{
		CDPURL:        cfg.EffectiveCDPURL(),
		PortalURL:     cfg.PortalURL,
		TabURLFilter:  cfg.TabURLFilter,
		LoginTimeout:  cfg.LoginTimeout(),
		RecordTimeout: cfg.RecordTimeout(),
	}, sel)
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Debug("session close failed", "error", err)
		}
	}()

	if cfg.TraceEnabled {
		tw, err := storage.NewTraceWriter(cfg.TraceDir, traceBufferSize)
		if err != nil {
			return portal.NewError(portal.CodeConfiguration, "trace writer setup failed", err)
		}
		defer func() {
			if err := tw.Close(); err != nil {
				slog.Warn("trace writer close failed", "error", err)
			}
		}()
		capture.AttachNetwork(sess.Context(), tw, cfg.TraceMaxPostBytes)
		slog.Info("network trace enabled", "dir", cfg.TraceDir)
	}

	stream, err := storage.NewStreamLog(cfg.StreamPath)
	if err != nil {
		return portal.NewError(portal.CodeConfiguration, "stream log setup failed", err)
	}

	var snaps *snapshot.Store
	if !runFlags.noSnapshots {
		if snaps, err = snapshot.NewStore(cfg.SnapshotDir); err != nil {
			return portal.NewError(portal.CodeConfiguration, "snapshot store setup failed", err)
		}
	}

	broker := relay.NewBroker()
	tracker := runner.NewTracker(broker)
	agg := runner.NewAggregator()

	var srv *http.Server
	if cfg.StatusBindAddr != "" {
		srv = startStatusServer(cfg, tracker, agg, snaps, broker)
	}

	r := runner.New(runner.Options{
		Driver:     sess,
		Batch:      batch,
		Stream:     stream,
		Tracker:    tracker,
		Aggregator: agg,
		Broker:     broker,
		Snapshots:  snaps,
		User:       runFlags.user,
		Password:   runFlags.password,
		OutputPath: runFlags.output,
		NotifyURL:  cfg.NotifyURL,
	})
	runErr := r.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("status API shutdown failed", "error", err)
		}
	}
	return runErr
}

// applyRunFlags overlays explicitly set flags on the environment-derived
// configuration. Flag defaults never clobber environment values.
func applyRunFlags(cmd *cobra.Command, cfg *config.RunConfig) {
	f := cmd.Flags()
	if f.Changed("log") {
		cfg.LogFile = runFlags.logFile
	}
	if f.Changed("timeout") {
		cfg.RecordTimeoutSec = runFlags.timeoutSec
	}
	if f.Changed("status-addr") {
		cfg.StatusBindAddr = runFlags.statusAddr
	}
	if f.Changed("headless") {
		cfg.Headless = runFlags.headless
	}
	if runFlags.trace {
		cfg.TraceEnabled = true
	}
}

// startStatusServer exposes the run over HTTP when a bind address is
// configured. Bind failures downgrade to a warning; the extraction does
// not depend on the API.
func startStatusServer(cfg *config.RunConfig, tracker *runner.Tracker, agg *runner.Aggregator, snaps *snapshot.Store, broker *relay.Broker) *http.Server {
	bindAddr, err := netutil.SelectBindAddr(cfg.StatusBindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Warn("status API disabled", "preferred", cfg.StatusBindAddr, "error", err)
		return nil
	}

	svc := runner.NewService(tracker, agg, snaps)
	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, broker)}

	go func() {
		slog.Info("status API listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status API server failed", "error", err)
		}
	}()
	return srv
}

func setupLogger(level, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
