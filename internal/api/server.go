package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/media_sniffer/internal/bridge"
	"github.com/dgnsrekt/media_sniffer/internal/relay"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// Service is the popup's message surface.
type Service interface {
	GetMediaURLs(tabID types.TabID) (bridge.MediaURLs, error)
	IsStreamingURL(rawURL string) bridge.StreamingCheck
	ClearTab(tabID types.TabID) (bridge.ClearResult, error)
	AnalyzeTab(tabID types.TabID) (bridge.Analysis, error)
	DetectPlatform(rawURL string) types.Platform
	Tabs() []bridge.TabSummary
}

// CookieJar reads the browser's cookies.
type CookieJar interface {
	Cookies(ctx context.Context) ([]types.Cookie, error)
}

// BrowserStatus reports the CDP connection for health checks.
type BrowserStatus interface {
	Connected() bool
	GetTabCount() int
}

// Options wires optional collaborators. Nil fields disable the routes that
// need them.
type Options struct {
	Cookies CookieJar
	Browser BrowserStatus
	Broker  *relay.Broker
}

type tabIDInput struct {
	TabID string `path:"tab_id" doc:"CDP target ID of the tab"`
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Media Sniffer API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	docs := []byte(docsPage(opts.Broker != nil))
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(docs); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if opts.Broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(opts.Broker))
		router.Get("/api/v1/events/ws", relay.WebSocketHandler(opts.Broker))
	}

	registerMediaHandlers(api, svc)
	registerMiscHandlers(api, svc, opts)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *bridge.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case bridge.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
