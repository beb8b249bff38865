package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// Config holds browser launch configuration.
type Config struct {
	BrowserPath string // empty means autodetect
	DebugPort   int
	UserDataDir string // empty means a throwaway temp profile
	Headless    bool
	StartURL    string
}

// Launcher manages the lifecycle of a local browser process exposing CDP.
type Launcher struct {
	cfg     Config
	cmd     *exec.Cmd
	tmpDir  string
	running bool
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.StartURL == "" {
		cfg.StartURL = "about:blank"
	}
	return &Launcher{cfg: cfg}
}

// CDPURL returns the HTTP endpoint of the debugging port.
func (l *Launcher) CDPURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", l.cfg.DebugPort)
}

// Detect finds an installed browser binary. The portal is certified for
// Edge, so Edge is tried first, then the Chromium family.
func Detect() (string, error) {
	candidates := []string{
		"microsoft-edge",
		"microsoft-edge-stable",
		"chromium-browser",
		"chromium",
		"google-chrome",
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPaths := []string{
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
		for _, p := range macPaths {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %s)", strings.Join(candidates, ", "))
}

// isPortInUse checks whether a TCP port is already listening.
func isPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Launch starts the browser process unless the debug port is already in
// use, in which case the running browser is reused.
func (l *Launcher) Launch(ctx context.Context) error {
	if isPortInUse(l.cfg.DebugPort) {
		slog.Info("browser already running, reusing", "port", l.cfg.DebugPort)
		return nil
	}

	browserPath := l.cfg.BrowserPath
	if browserPath == "" {
		detected, err := Detect()
		if err != nil {
			return err
		}
		browserPath = detected
	}
	slog.Info("launching browser", "path", browserPath, "port", l.cfg.DebugPort, "headless", l.cfg.Headless)

	userDataDir := l.cfg.UserDataDir
	if userDataDir == "" {
		tmp, err := os.MkdirTemp("", "portal_agent-profile-*")
		if err != nil {
			return fmt.Errorf("create temp profile dir: %w", err)
		}
		l.tmpDir = tmp
		userDataDir = tmp
	} else if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", l.cfg.DebugPort),
		"--remote-allow-origins=*",
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--start-maximized",
		"--disable-infobars",
		"--disable-extensions",
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	if l.cfg.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, l.cfg.StartURL)

	l.cmd = exec.Command(browserPath, args...)
	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	l.running = true
	slog.Info("browser process started", "pid", l.cmd.Process.Pid)

	if err := l.waitForCDP(ctx); err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "url", l.CDPURL())
	return nil
}

// ProbeCDP checks that a CDP HTTP endpoint answers /json/version.
func ProbeCDP(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)
	}

	var info struct {
		Browser string `json:"Browser"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	return nil
}

// waitForCDP polls the CDP endpoint until it responds.
func (l *Launcher) waitForCDP(ctx context.Context) error {
	deadline := time.After(15 * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within 15s at %s", l.CDPURL())
		case <-ticker.C:
			if err := ProbeCDP(ctx, l.CDPURL()); err == nil {
				return nil
			}
		}
	}
}

// Running reports whether this launcher spawned a browser process.
func (l *Launcher) Running() bool {
	return l.running
}

// Stop terminates the browser with SIGTERM, falling back to SIGKILL, and
// removes any throwaway profile.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
		l.cleanupTmp()
		return
	}
	slog.Info("stopping browser", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("browser stopped gracefully")
	case <-time.After(5 * time.Second):
		slog.Warn("browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.running = false
	l.cleanupTmp()
}

func (l *Launcher) cleanupTmp() {
	if l.tmpDir == "" {
		return
	}
	if err := os.RemoveAll(l.tmpDir); err != nil {
		slog.Debug("temp profile cleanup failed", "dir", l.tmpDir, "error", err)
	}
	l.tmpDir = ""
}
