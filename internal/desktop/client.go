// Package desktop is a client for the local desktop application that lists
// formats and performs downloads.
package desktop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// DefaultBaseURL is where the desktop application listens.
const DefaultBaseURL = "http://127.0.0.1:5000"

const maxResponseBody = 1 << 20

var healthPaths = []string{"/health", "/status", "/ping"}

// Client talks to the desktop application's HTTP API.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// New returns a client for baseURL. A nil hc uses a client with a 90 second
// timeout, since format listing runs the extractor synchronously.
func New(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     hc,
		attempts: 2,
		backoff:  500 * time.Millisecond,
		sleep:    sleepCtx,
	}
}

// BaseURL returns the application address.
func (c *Client) BaseURL() string { return c.baseURL }

// HealthStatus is the answer of whichever health endpoint responded.
type HealthStatus struct {
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
}

// Health tries /health, then /status, then /ping. The first 2xx answer
// wins; if none answers, the error carries every attempt.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var result *multierror.Error
	for _, path := range healthPaths {
		var body HealthStatus
		status, err := c.send(ctx, http.MethodGet, path, nil, &body)
		if err == nil && status >= 200 && status < 300 {
			body.Endpoint = path
			if body.Status == "" {
				body.Status = "ok"
			}
			return body, nil
		}
		if err == nil {
			err = fmt.Errorf("status %d", status)
		}
		result = multierror.Append(result, fmt.Errorf("%s: %w", path, err))
	}
	return HealthStatus{}, newError(CodeUnavailable, "desktop application is not running at "+c.baseURL, result.ErrorOrNil())
}

// Analysis is the application's view of a URL.
type Analysis struct {
	Platform        string   `json:"platform"`
	IsTemporary     bool     `json:"is_temporary"`
	NeedsCookies    bool     `json:"needs_cookies"`
	RequiredHeaders []string `json:"required_headers,omitempty"`
	UserAgentType   string   `json:"user_agent_type,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
}

// AnalyzeURL asks the application how it will treat rawURL.
func (c *Client) AnalyzeURL(ctx context.Context, rawURL string) (Analysis, error) {
	if err := validateURL(rawURL); err != nil {
		return Analysis{}, err
	}
	var out Analysis
	if err := c.call(ctx, "/analyze_url", map[string]any{"url": rawURL}, &out); err != nil {
		return Analysis{}, err
	}
	return out, nil
}

// Format is one downloadable format.
type Format struct {
	ID         string `json:"id"`
	Ext        string `json:"ext"`
	Resolution string `json:"resolution"`
	Note       string `json:"note,omitempty"`
	Type       string `json:"type"`
	Quality    string `json:"quality,omitempty"`
}

// FormatsRequest selects what to list formats for.
type FormatsRequest struct {
	URL       string
	MediaType string
	Cookies   []types.Cookie
}

// FormatsResult lists the formats the application found.
type FormatsResult struct {
	Formats     []Format `json:"formats"`
	UsedCookies bool     `json:"used_cookies"`
	Platform    string   `json:"platform,omitempty"`
	Approach    string   `json:"approach,omitempty"`
}

// GetFormats calls /get_formats, falling back to the legacy /formats route
// when the application does not know the current one.
func (c *Client) GetFormats(ctx context.Context, req FormatsRequest) (FormatsResult, error) {
	if err := validateURL(req.URL); err != nil {
		return FormatsResult{}, err
	}
	mediaType := mediaTypeOrDefault(req.MediaType)

	body := map[string]any{"url": req.URL, "mediaType": mediaType}
	if len(req.Cookies) > 0 {
		body["cookies"] = req.Cookies
	}

	var out FormatsResult
	err := c.call(ctx, "/get_formats", body, &out)
	if isMissingRoute(err) {
		slog.Debug("desktop: falling back to legacy formats route", "url", req.URL)
		out = FormatsResult{}
		err = c.call(ctx, "/formats", map[string]any{"url": req.URL, "media_type": mediaType}, &out)
	}
	if err != nil {
		return FormatsResult{}, err
	}
	return out, nil
}

// DownloadRequest starts one download. An empty FormatID or "highest"
// selects the best quality.
type DownloadRequest struct {
	URL       string
	MediaType string
	FormatID  string
	Cookies   []types.Cookie
}

// DownloadResult is the application's acknowledgement. The download itself
// runs inside the application.
type DownloadResult struct {
	Message     string `json:"message"`
	Platform    string `json:"platform,omitempty"`
	URLAnalysis struct {
		Platform            string `json:"platform,omitempty"`
		IsTemporary         bool   `json:"is_temporary"`
		NeedsCookies        bool   `json:"needs_cookies"`
		UsedEnhancedCookies bool   `json:"used_enhanced_cookies"`
	} `json:"url_analysis"`
}

// Download asks the application to start a download. An application that
// rejects the request shape is retried with the legacy download_type body.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (DownloadResult, error) {
	if err := validateURL(req.URL); err != nil {
		return DownloadResult{}, err
	}
	mediaType := mediaTypeOrDefault(req.MediaType)
	formatID := strings.TrimSpace(req.FormatID)

	body := map[string]any{"url": req.URL, "media_type": mediaType}
	if formatID != "" {
		body["format_id"] = formatID
	}
	if len(req.Cookies) > 0 {
		body["cookies"] = req.Cookies
	}

	var out DownloadResult
	err := c.call(ctx, "/download", body, &out)
	if isLegacyShape(err) {
		slog.Debug("desktop: retrying download with legacy body", "url", req.URL)
		out = DownloadResult{}
		err = c.call(ctx, "/download", legacyDownloadBody(req.URL, mediaType, formatID), &out)
	}
	if err != nil {
		return DownloadResult{}, err
	}
	if out.Message == "" {
		out.Message = "Download started"
	}
	return out, nil
}

func legacyDownloadBody(rawURL, mediaType, formatID string) map[string]any {
	if formatID == "" || formatID == "highest" {
		return map[string]any{"url": rawURL, "download_type": "highest_quality", "media_type": mediaType}
	}
	return map[string]any{"url": rawURL, "download_type": "specific_format", "format_id": formatID, "media_type": mediaType}
}

// errorBody is how the application reports failures.
type errorBody struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Details     string   `json:"details"`
	Platform    string   `json:"platform"`
	Suggestions []string `json:"suggestions"`
}

// call POSTs body to path with bounded retries for transient failures.
func (c *Client) call(ctx context.Context, path string, body, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, time.Duration(attempt-1)*c.backoff); err != nil {
				return newError(CodeUnavailable, "request cancelled", err)
			}
			slog.Debug("desktop: retrying", "path", path, "attempt", attempt, "error", lastErr)
		}
		lastErr = c.post(ctx, path, body, out)
		if lastErr == nil || !transient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var raw json.RawMessage
	status, err := c.send(ctx, http.MethodPost, path, body, &raw)
	if err != nil {
		return newError(CodeUnavailable, "cannot reach desktop application", err)
	}

	var eb errorBody
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &eb)
	}
	msg := eb.Error
	if msg == "" && (status < 200 || status >= 300) {
		msg = eb.Message
	}

	if msg != "" {
		ce := newError(CodeRejected, msg, nil)
		ce.Status = status
		ce.Platform = eb.Platform
		ce.Kind = Classify(msg + " " + eb.Details)
		ce.Suggestions = eb.Suggestions
		if len(ce.Suggestions) == 0 {
			ce.Suggestions = Suggestions(eb.Platform, eb.Details)
		}
		return ce
	}
	if status < 200 || status >= 300 {
		ce := newError(CodeUnavailable, fmt.Sprintf("desktop application returned status %d", status), nil)
		ce.Status = status
		return ce
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return newError(CodeUnavailable, "malformed response from desktop application", err)
		}
	}
	return nil
}

// send performs one request and decodes a JSON body into out when present.
// Transport failures are returned as err; HTTP statuses never are.
func (c *Client) send(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 && looksJSON(resp, data) {
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], data...)
		} else if err := json.Unmarshal(data, out); err != nil {
			slog.Debug("desktop: response body not decoded", "path", path, "error", err)
		}
	}
	return resp.StatusCode, nil
}

func looksJSON(resp *http.Response, data []byte) bool {
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return true
	}
	t := bytes.TrimSpace(data)
	return len(t) > 0 && (t[0] == '{' || t[0] == '[')
}

// transient reports failures worth a second attempt: transport errors,
// timeouts and 403 responses.
func transient(err error) bool {
	var ce *CodedError
	if !errors.As(err, &ce) {
		return false
	}
	switch {
	case ce.Code == CodeUnavailable && ce.Status == 0:
		return true
	case ce.Status == http.StatusForbidden, ce.Status == http.StatusRequestTimeout, ce.Status == http.StatusGatewayTimeout:
		return true
	case ce.Kind == KindTimeout:
		return true
	}
	return false
}

func isMissingRoute(err error) bool {
	var ce *CodedError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Status == http.StatusNotFound || ce.Status == http.StatusMethodNotAllowed
}

func isLegacyShape(err error) bool {
	var ce *CodedError
	if !errors.As(err, &ce) || ce.Status != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(ce.Message), "download_type")
}

func validateURL(rawURL string) error {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return newError(CodeValidation, "url is required", nil)
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return newError(CodeValidation, "url must be http or https", nil)
	}
	return nil
}

func mediaTypeOrDefault(mt string) string {
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case "audio":
		return "audio"
	default:
		return "video"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
