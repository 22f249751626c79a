package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/config"
	"github.com/dgnsrekt/media_sniffer/internal/desktop"
	"github.com/dgnsrekt/media_sniffer/internal/popup"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// app carries the global flags shared by every subcommand.
type app struct {
	daemonURL  string
	desktopURL string
	jsonOut    bool
	noColor    bool
	timeout    time.Duration

	out io.Writer
	hc  *http.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "mediactl",
		Short:         "Inspect media detected by mediasniff and hand it to the desktop application",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.noColor {
				color.NoColor = true
			}
		},
	}

	defaultDaemon, defaultDesktop := config.APIBaseURL("127.0.0.1:8190"), desktop.DefaultBaseURL
	if cfg, err := config.Load(); err == nil {
		defaultDaemon, defaultDesktop = config.APIBaseURL(cfg.BindAddr), cfg.DesktopURL
	}
	if u := os.Getenv("MEDIASNIFF_URL"); u != "" {
		defaultDaemon = u
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.daemonURL, "daemon", defaultDaemon, "mediasniff API base URL")
	pf.StringVar(&a.desktopURL, "desktop", defaultDesktop, "desktop application base URL")
	pf.BoolVar(&a.jsonOut, "json", false, "print raw JSON")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	pf.DurationVar(&a.timeout, "timeout", 2*time.Minute, "overall request timeout")

	root.AddCommand(
		a.tabsCmd(),
		a.mediaCmd(),
		a.analyzeCmd(),
		a.clearCmd(),
		a.streamingCmd(),
		a.cookiesCmd(),
		a.planCmd(),
		a.formatsCmd(),
		a.downloadCmd(),
		a.healthCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) daemon() *popup.Daemon {
	return popup.NewDaemon(a.daemonURL, a.hc)
}

func (a *app) desktop() *desktop.Client {
	return desktop.New(a.desktopURL, a.hc)
}

func (a *app) orchestrator() *popup.Orchestrator {
	return popup.New(a.daemon(), a.desktop())
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) wsURL() string {
	u := strings.TrimRight(a.daemonURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/v1/events/ws"
}
