package config

import (
	"fmt"
	"strings"
	"time"
)

// RunConfig holds everything a batch run needs from the environment.
// Credentials and file paths come from CLI flags, not from here.
type RunConfig struct {
	// Portal
	PortalURL     string
	SelectorsFile string

	// Browser: CDPURL attaches to an already-running browser; when empty a
	// local browser is launched on DebugPort.
	CDPURL       string
	BrowserPath  string
	DebugPort    int
	TabURLFilter string
	Headless     bool

	// Timeouts (seconds)
	LoginTimeoutSec  int
	RecordTimeoutSec int

	// Artifacts
	StreamPath        string
	SnapshotDir       string
	TraceEnabled      bool
	TraceDir          string
	TraceMaxPostBytes int

	// Logging
	LogLevel string
	LogFile  string

	// Side channels
	NotifyURL        string
	StatusBindAddr   string
	PortCandidates   []int
	PortAutoFallback bool
}

// LoadRun reads run configuration from environment variables and an
// optional .env file.
func LoadRun() (*RunConfig, error) {
	loadDotenv()

	cfg := &RunConfig{
		PortalURL:         getEnvOrDefault("PORTAL_URL", "https://portal-financeiro-confidencial.com/login"),
		SelectorsFile:     getEnvOrDefault("PORTAL_SELECTORS_FILE", "selectors.json"),
		CDPURL:            getEnvOrDefault("PORTAL_CDP_URL", ""),
		BrowserPath:       getEnvOrDefault("PORTAL_BROWSER_PATH", ""),
		DebugPort:         getEnvIntOrDefault("PORTAL_DEBUG_PORT", 9222),
		TabURLFilter:      getEnvOrDefault("PORTAL_TAB_URL_FILTER", ""),
		Headless:          getEnvBoolOrDefault("PORTAL_HEADLESS", false),
		LoginTimeoutSec:   getEnvIntOrDefault("PORTAL_LOGIN_TIMEOUT_SEC", 25),
		RecordTimeoutSec:  getEnvIntOrDefault("PORTAL_RECORD_TIMEOUT_SEC", 20),
		StreamPath:        getEnvOrDefault("PORTAL_STREAM_PATH", "./dados/streaming_saida.txt"),
		SnapshotDir:       getEnvOrDefault("PORTAL_SNAPSHOT_DIR", "./snapshots"),
		TraceEnabled:      getEnvBoolOrDefault("PORTAL_TRACE", false),
		TraceDir:          getEnvOrDefault("PORTAL_TRACE_DIR", "./traces"),
		TraceMaxPostBytes: getEnvIntOrDefault("PORTAL_TRACE_MAX_POST_BYTES", 4096),
		LogLevel:          strings.ToLower(getEnvOrDefault("PORTAL_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("PORTAL_LOG_FILE", "logs/portal_agent.log"),
		NotifyURL:         getEnvOrDefault("PORTAL_NOTIFY_URL", ""),
		StatusBindAddr:    getEnvOrDefault("PORTAL_STATUS_BIND_ADDR", ""),
		PortCandidates:    parsePortList(getEnvOrDefault("PORTAL_STATUS_PORT_CANDIDATES", "8850,8851,8852")),
		PortAutoFallback:  getEnvBoolOrDefault("PORTAL_STATUS_PORT_AUTO_FALLBACK", true),
	}

	if cfg.PortalURL == "" {
		return nil, fmt.Errorf("PORTAL_URL must not be empty")
	}
	if cfg.LoginTimeoutSec <= 0 || cfg.RecordTimeoutSec <= 0 {
		return nil, fmt.Errorf("timeouts must be positive: login=%ds record=%ds", cfg.LoginTimeoutSec, cfg.RecordTimeoutSec)
	}

	return cfg, nil
}

// EffectiveCDPURL is the endpoint the session attaches to: the configured
// remote one, or the locally launched browser.
func (c *RunConfig) EffectiveCDPURL() string {
	if c.CDPURL != "" {
		return c.CDPURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.DebugPort)
}

func (c *RunConfig) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutSec) * time.Second
}

func (c *RunConfig) RecordTimeout() time.Duration {
	return time.Duration(c.RecordTimeoutSec) * time.Second
}
