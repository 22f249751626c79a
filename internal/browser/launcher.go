// Package browser starts a local Chromium with remote debugging enabled
// when none is already listening on the CDP port.
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
	"strconv"
	"syscall"
	"time"
)

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	StartURL   string
	ProfileDir string
	WindowSize string
	Headless   bool
	// Mute silences autoplaying players.
	Mute bool
	// BinaryPath skips detection when set.
	BinaryPath string
}

// Launcher manages the lifecycle of a browser process.
type Launcher struct {
	cfg     Config
	cmd     *exec.Cmd
	running bool
	version Version

	readyTimeout time.Duration
}

// NewLauncher creates a new browser launcher with the given config.
func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1280,800"
	}
	if cfg.StartURL == "" {
		cfg.StartURL = "about:blank"
	}
	return &Launcher{cfg: cfg, readyTimeout: 15 * time.Second}
}

// detectBrowser finds an available Chrome/Chromium binary.
func detectBrowser(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("browser binary %s: %w", override, err)
		}
		return override, nil
	}
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %v)", candidates)
}

func (l *Launcher) endpoint() string {
	return net.JoinHostPort(l.cfg.CDPAddress, strconv.Itoa(l.cfg.CDPPort))
}

// isPortInUse checks whether the CDP port is already listening.
func (l *Launcher) isPortInUse() bool {
	conn, err := net.DialTimeout("tcp", l.endpoint(), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// args returns the command line for the browser. Media autoplay is allowed
// so that players start fetching without a click.
func (l *Launcher) args() []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", l.cfg.CDPPort),
		fmt.Sprintf("--remote-debugging-address=%s", l.cfg.CDPAddress),
		fmt.Sprintf("--user-data-dir=%s", l.cfg.ProfileDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--autoplay-policy=no-user-gesture-required",
		fmt.Sprintf("--window-size=%s", l.cfg.WindowSize),
	}
	if l.cfg.Headless {
		args = append(args, "--headless=new")
	}
	if l.cfg.Mute {
		args = append(args, "--mute-audio")
	}
	return append(args, l.cfg.StartURL)
}

// Launch starts the browser process unless the CDP port is already in use.
func (l *Launcher) Launch(ctx context.Context) error {
	if l.isPortInUse() {
		slog.Info("browser already running, skipping launch", "endpoint", l.endpoint())
		return nil
	}

	browserPath, err := detectBrowser(l.cfg.BinaryPath)
	if err != nil {
		return err
	}
	slog.Info("detected browser", "path", browserPath)

	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	l.cmd = exec.Command(browserPath, l.args()...)
	l.cmd.Stdout = os.Stdout
	l.cmd.Stderr = os.Stderr

	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	l.running = true
	slog.Info("browser process started", "pid", l.cmd.Process.Pid)

	v, err := l.waitForCDP(ctx)
	if err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	l.version = v
	slog.Info("CDP endpoint ready", "endpoint", l.endpoint(), "browser", v.Browser, "protocol", v.Protocol)
	return nil
}

// Version is the answer of the CDP /json/version endpoint.
type Version struct {
	Browser      string `json:"Browser"`
	Protocol     string `json:"Protocol-Version"`
	UserAgent    string `json:"User-Agent"`
	WebSocketURL string `json:"webSocketDebuggerUrl"`
}

// Version returns what the launched browser reported. It is zero when the
// browser was already running.
func (l *Launcher) Version() Version {
	return l.version
}

// waitForCDP polls the CDP /json/version endpoint until it answers with a
// debugger URL.
func (l *Launcher) waitForCDP(ctx context.Context) (Version, error) {
	url := "http://" + l.endpoint() + "/json/version"
	deadline := time.After(l.readyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return Version{}, ctx.Err()
		case <-deadline:
			return Version{}, fmt.Errorf("CDP did not become ready within %s at %s", l.readyTimeout, url)
		case <-ticker.C:
			v, ok := fetchVersion(client, url)
			if ok {
				return v, nil
			}
		}
	}
}

func fetchVersion(client *http.Client, url string) (Version, bool) {
	resp, err := client.Get(url)
	if err != nil {
		return Version{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Version{}, false
	}
	var v Version
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		slog.Debug("CDP version not decoded", "error", err)
		return Version{}, false
	}
	return v, v.WebSocketURL != ""
}

// Running reports whether this launcher spawned a browser process.
func (l *Launcher) Running() bool {
	return l.running
}

// Stop terminates the browser process with SIGTERM, falling back to SIGKILL.
// It does nothing when the browser was already running before Launch.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
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
	l.cmd = nil
	l.running = false
}
