package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the media sniffer daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP API
	BindAddr      string
	BindFallbacks []string
	AutoFallback  bool

	// Logging
	LogLevel string
	LogFile  string

	// Storage settings
	DataDir        string
	JournalEnabled bool
	JournalSizeMB  int

	// Classification
	RulesFile string

	// Tab matching and behavior
	TabURLFilter   string
	ReloadOnAttach bool

	// Tab state lifetime
	SweepInterval time.Duration
	MaxTabAge     time.Duration

	// Optional browser launch
	LaunchBrowser bool
	BrowserPath   string
	Headless      bool
	MuteAudio     bool
	ProfileDir    string
	StartURL      string

	// External desktop application
	DesktopURL string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:     getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:        getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:       getEnvOrDefault("MEDIASNIFF_BIND_ADDR", "127.0.0.1:8190"),
		BindFallbacks:  getEnvListOrDefault("MEDIASNIFF_BIND_FALLBACKS", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		AutoFallback:   getEnvBoolOrDefault("MEDIASNIFF_BIND_AUTO_FALLBACK", true),
		LogLevel:       strings.ToLower(getEnvOrDefault("MEDIASNIFF_LOG_LEVEL", "info")),
		LogFile:        getEnvOrDefault("MEDIASNIFF_LOG_FILE", "logs/mediasniff.log"),
		DataDir:        getEnvOrDefault("MEDIASNIFF_DATA_DIR", "./mediasniff_data"),
		JournalEnabled: getEnvBoolOrDefault("MEDIASNIFF_JOURNAL", true),
		JournalSizeMB:  getEnvIntOrDefault("MEDIASNIFF_JOURNAL_MAX_SIZE_MB", 50),
		RulesFile:      os.Getenv("MEDIASNIFF_RULES_FILE"),
		TabURLFilter:   os.Getenv("MEDIASNIFF_TAB_URL_FILTER"),
		ReloadOnAttach: getEnvBoolOrDefault("MEDIASNIFF_RELOAD_ON_ATTACH", false),
		SweepInterval:  getEnvDurationOrDefault("MEDIASNIFF_SWEEP_INTERVAL", time.Minute),
		MaxTabAge:      getEnvDurationOrDefault("MEDIASNIFF_MAX_TAB_AGE", 30*time.Minute),
		LaunchBrowser:  getEnvBoolOrDefault("MEDIASNIFF_LAUNCH_BROWSER", false),
		BrowserPath:    os.Getenv("MEDIASNIFF_BROWSER_PATH"),
		Headless:       getEnvBoolOrDefault("MEDIASNIFF_BROWSER_HEADLESS", false),
		MuteAudio:      getEnvBoolOrDefault("MEDIASNIFF_BROWSER_MUTE", true),
		ProfileDir:     getEnvOrDefault("MEDIASNIFF_BROWSER_PROFILE_DIR", "./browser_profile"),
		StartURL:       getEnvOrDefault("MEDIASNIFF_START_URL", "about:blank"),
		DesktopURL:     getEnvOrDefault("MEDIASNIFF_DESKTOP_URL", "http://127.0.0.1:5000"),
	}

	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("invalid CHROMIUM_CDP_PORT: %d", cfg.CDPPort)
	}
	if cfg.SweepInterval < time.Second {
		cfg.SweepInterval = time.Second
	}
	if cfg.MaxTabAge < cfg.SweepInterval {
		cfg.MaxTabAge = cfg.SweepInterval
	}
	if cfg.JournalSizeMB < 1 {
		cfg.JournalSizeMB = 1
	}
	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// APIBaseURL returns the daemon API base URL for a bind address.
func APIBaseURL(bindAddr string) string {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "127.0.0.1" + bindAddr
	}
	return "http://" + bindAddr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
