package popup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/bridge"
	"github.com/dgnsrekt/media_sniffer/internal/types"
	"github.com/google/uuid"
)

// Daemon is a client for the mediasniff HTTP API.
type Daemon struct {
	baseURL string
	http    *http.Client
}

// NewDaemon returns a client for the daemon at baseURL.
func NewDaemon(baseURL string, hc *http.Client) *Daemon {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Daemon{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// BaseURL returns the daemon address.
func (d *Daemon) BaseURL() string { return d.baseURL }

// CookieSet is the daemon's cookie answer.
type CookieSet struct {
	URL      string         `json:"url"`
	Platform types.Platform `json:"platform,omitempty"`
	Domains  []string       `json:"domains"`
	Count    int            `json:"count"`
	Cookies  []types.Cookie `json:"cookies"`
	Netscape string         `json:"netscape,omitempty"`
}

// DaemonHealth mirrors the daemon's /health answer.
type DaemonHealth struct {
	Status           string `json:"status"`
	BrowserConnected bool   `json:"browser_connected"`
	AttachedTabs     int    `json:"attached_tabs"`
	StreamClients    int    `json:"stream_clients"`
}

func (d *Daemon) Health(ctx context.Context) (DaemonHealth, error) {
	var out DaemonHealth
	err := d.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (d *Daemon) Tabs(ctx context.Context) ([]bridge.TabSummary, error) {
	var out struct {
		Tabs []bridge.TabSummary `json:"tabs"`
	}
	if err := d.do(ctx, http.MethodGet, "/api/v1/tabs", nil, &out); err != nil {
		return nil, err
	}
	return out.Tabs, nil
}

func (d *Daemon) Media(ctx context.Context, tabID types.TabID) (bridge.MediaURLs, error) {
	var out bridge.MediaURLs
	err := d.do(ctx, http.MethodGet, "/api/v1/tabs/"+url.PathEscape(string(tabID))+"/media", nil, &out)
	return out, err
}

func (d *Daemon) Analyze(ctx context.Context, tabID types.TabID) (bridge.Analysis, error) {
	var out bridge.Analysis
	err := d.do(ctx, http.MethodGet, "/api/v1/tabs/"+url.PathEscape(string(tabID))+"/analysis", nil, &out)
	return out, err
}

func (d *Daemon) Clear(ctx context.Context, tabID types.TabID) (bridge.ClearResult, error) {
	var out bridge.ClearResult
	err := d.do(ctx, http.MethodDelete, "/api/v1/tabs/"+url.PathEscape(string(tabID))+"/media", nil, &out)
	return out, err
}

func (d *Daemon) IsStreaming(ctx context.Context, rawURL string) (bool, error) {
	var out bridge.StreamingCheck
	err := d.do(ctx, http.MethodGet, "/api/v1/streaming", url.Values{"url": {rawURL}}, &out)
	return out.IsStreaming, err
}

// Cookies fetches the browser cookies for rawURL's domain family. With
// essential set, the daemon trims them to the platform's required names.
func (d *Daemon) Cookies(ctx context.Context, rawURL string, essential, netscape bool) (CookieSet, error) {
	q := url.Values{"url": {rawURL}}
	if essential {
		q.Set("essential", "true")
	}
	if netscape {
		q.Set("format", "netscape")
	}
	var out CookieSet
	err := d.do(ctx, http.MethodGet, "/api/v1/cookies", q, &out)
	return out, err
}

// DaemonError is a non-2xx answer from the daemon.
type DaemonError struct {
	Status    int
	Detail    string
	RequestID string
}

func (e *DaemonError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("daemon returned status %d", e.Status)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.Status, e.Detail)
}

func (d *Daemon) do(ctx context.Context, method, path string, q url.Values, out any) error {
	target := d.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", d.baseURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var problem struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(data, &problem)
		return &DaemonError{Status: resp.StatusCode, Detail: problem.Detail, RequestID: resp.Header.Get("X-Request-Id")}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}
