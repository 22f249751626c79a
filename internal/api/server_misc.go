package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/media_sniffer/internal/cookies"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// CookiesResponse is the body of GET /api/v1/cookies.
type CookiesResponse struct {
	URL      string         `json:"url"`
	Platform types.Platform `json:"platform,omitempty"`
	Domains  []string       `json:"domains"`
	Count    int            `json:"count"`
	Cookies  []types.Cookie `json:"cookies"`
	Netscape string         `json:"netscape,omitempty"`
}

func registerMiscHandlers(api huma.API, svc Service, opts Options) {
	type healthOutput struct {
		Body struct {
			Status           string `json:"status"`
			BrowserConnected bool   `json:"browser_connected"`
			AttachedTabs     int    `json:"attached_tabs"`
			StreamClients    int    `json:"stream_clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			if opts.Browser != nil {
				out.Body.BrowserConnected = opts.Browser.Connected()
				out.Body.AttachedTabs = opts.Browser.GetTabCount()
				if !out.Body.BrowserConnected {
					out.Body.Status = "degraded"
				}
			}
			if opts.Broker != nil {
				out.Body.StreamClients = opts.Broker.ClientCount()
			}
			return out, nil
		})

	if opts.Cookies == nil {
		return
	}

	type cookiesOutput struct {
		Body CookiesResponse
	}
	huma.Register(api, huma.Operation{OperationID: "get-cookies", Method: http.MethodGet, Path: "/api/v1/cookies", Summary: "Browser cookies for a page URL", Tags: []string{"Cookies"}},
		func(ctx context.Context, input *struct {
			URL       string `query:"url" required:"true" doc:"Page URL whose domain cookies are wanted"`
			Essential bool   `query:"essential" doc:"Trim to the cookies the platform needs for extraction"`
			Format    string `query:"format" enum:"json,netscape" default:"json" doc:"Also render a Netscape cookie file when netscape"`
		}) (*cookiesOutput, error) {
			domains := cookies.Domains(input.URL)
			if len(domains) == 0 {
				return nil, huma.Error400BadRequest("url must be an absolute URL with a host")
			}

			all, err := opts.Cookies.Cookies(ctx)
			if err != nil {
				slog.Warn("cookie read failed", "error", err)
				return nil, huma.Error502BadGateway("browser cookie jar unavailable")
			}

			selected := cookies.Select(all, input.URL, time.Now())
			platform := svc.DetectPlatform(input.URL)
			if input.Essential {
				selected = cookies.Essential(selected, platform)
			}

			out := &cookiesOutput{Body: CookiesResponse{
				URL:      input.URL,
				Platform: platform,
				Domains:  domains,
				Count:    len(selected),
				Cookies:  selected,
			}}
			if input.Format == "netscape" {
				out.Body.Netscape = cookies.Netscape(selected)
			}
			return out, nil
		})
}
