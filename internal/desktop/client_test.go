package desktop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, contentType, body string) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: h}
}

type recorded struct {
	path string
	body map[string]any
	id   string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) add(req *http.Request) {
	rec := recorded{path: req.URL.Path, id: req.Header.Get("X-Request-ID")}
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(data))
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
	}
	r.mu.Lock()
	r.calls = append(r.calls, rec)
	r.mu.Unlock()
}

func newTestClient(fn func(*http.Request) (*http.Response, error)) (*Client, *recorder, *[]time.Duration) {
	rec := &recorder{}
	var sleeps []time.Duration
	c := New("http://desktop.test/", &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		rec.add(r)
		return fn(r)
	})})
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, rec, &sleeps
}

func codeOf(t *testing.T, err error) *CodedError {
	t.Helper()
	var ce *CodedError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v; want *CodedError", err)
	}
	return ce
}

func TestHealthFallsBackThroughEndpoints(t *testing.T) {
	c, rec, _ := newTestClient(func(r *http.Request) (*http.Response, error) {
		switch r.URL.Path {
		case "/health":
			return response(http.StatusNotFound, "text/html", "<h1>Not Found</h1>"), nil
		case "/status":
			return response(http.StatusInternalServerError, "", ""), nil
		default:
			return response(http.StatusOK, "text/plain", "pong"), nil
		}
	})

	got, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if got.Endpoint != "/ping" || got.Status != "ok" {
		t.Fatalf("Health() = %+v; want /ping ok", got)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("calls = %d; want 3", len(rec.calls))
	}
	if rec.calls[0].id == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestHealthDecodesBody(t *testing.T) {
	c, _, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "application/json", `{"status":"healthy","version":"2.1"}`), nil
	})
	got, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if got.Status != "healthy" || got.Version != "2.1" || got.Endpoint != "/health" {
		t.Fatalf("Health() = %+v", got)
	}
}

func TestHealthUnavailableCollectsAttempts(t *testing.T) {
	c, _, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := c.Health(context.Background())
	ce := codeOf(t, err)
	if ce.Code != CodeUnavailable {
		t.Fatalf("Code = %q; want %q", ce.Code, CodeUnavailable)
	}
	for _, path := range healthPaths {
		if !strings.Contains(err.Error(), path) {
			t.Fatalf("error %q missing attempt %s", err, path)
		}
	}
}

func TestAnalyzeURL(t *testing.T) {
	c, rec, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "application/json",
			`{"platform":"instagram","is_temporary":false,"needs_cookies":true,"required_headers":["User-Agent"],"suggestions":["x"]}`), nil
	})
	got, err := c.AnalyzeURL(context.Background(), "https://www.instagram.com/reel/abc/")
	if err != nil {
		t.Fatalf("AnalyzeURL() error = %v", err)
	}
	if got.Platform != "instagram" || !got.NeedsCookies || len(got.RequiredHeaders) != 1 {
		t.Fatalf("AnalyzeURL() = %+v", got)
	}
	if rec.calls[0].path != "/analyze_url" || rec.calls[0].body["url"] != "https://www.instagram.com/reel/abc/" {
		t.Fatalf("request = %+v", rec.calls[0])
	}
}

func TestValidationSkipsNetwork(t *testing.T) {
	c, rec, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		t.Fatal("unexpected request")
		return nil, nil
	})
	for _, u := range []string{"", "  ", "ftp://example.com/a.mp4"} {
		_, err := c.AnalyzeURL(context.Background(), u)
		if ce := codeOf(t, err); ce.Code != CodeValidation {
			t.Fatalf("AnalyzeURL(%q) code = %q; want validation", u, ce.Code)
		}
	}
	if len(rec.calls) != 0 {
		t.Fatalf("calls = %d; want 0", len(rec.calls))
	}
}

func TestGetFormatsSendsCookies(t *testing.T) {
	c, rec, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "application/json",
			`{"formats":[{"id":"18","ext":"mp4","resolution":"640x360","type":"video","quality":"standard"}],"used_cookies":true,"platform":"youtube"}`), nil
	})
	got, err := c.GetFormats(context.Background(), FormatsRequest{
		URL:       "https://www.youtube.com/watch?v=1",
		MediaType: "AUDIO",
		Cookies:   []types.Cookie{{Name: "YSC", Value: "v", Domain: ".youtube.com"}},
	})
	if err != nil {
		t.Fatalf("GetFormats() error = %v", err)
	}
	if len(got.Formats) != 1 || got.Formats[0].ID != "18" || !got.UsedCookies {
		t.Fatalf("GetFormats() = %+v", got)
	}
	call := rec.calls[0]
	if call.path != "/get_formats" || call.body["mediaType"] != "audio" {
		t.Fatalf("request = %+v", call)
	}
	cookies, ok := call.body["cookies"].([]any)
	if !ok || len(cookies) != 1 {
		t.Fatalf("cookies = %#v", call.body["cookies"])
	}
}

func TestGetFormatsLegacyFallback(t *testing.T) {
	c, rec, _ := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/get_formats" {
			return response(http.StatusNotFound, "text/html", "<h1>Not Found</h1>"), nil
		}
		return response(http.StatusOK, "application/json", `{"formats":[{"id":"best","ext":"mp4","resolution":"best","type":"video"}]}`), nil
	})
	got, err := c.GetFormats(context.Background(), FormatsRequest{URL: "https://vimeo.com/1"})
	if err != nil {
		t.Fatalf("GetFormats() error = %v", err)
	}
	if len(got.Formats) != 1 {
		t.Fatalf("formats = %+v", got.Formats)
	}
	if len(rec.calls) != 2 || rec.calls[1].path != "/formats" || rec.calls[1].body["media_type"] != "video" {
		t.Fatalf("calls = %+v", rec.calls)
	}
}

func TestGetFormatsRejected(t *testing.T) {
	c, rec, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusInternalServerError, "application/json",
			`{"error":"Access denied. This facebook content may be private.","details":"ERROR: HTTP Error 403: Forbidden","platform":"facebook"}`), nil
	})
	_, err := c.GetFormats(context.Background(), FormatsRequest{URL: "https://www.facebook.com/watch?v=1"})
	ce := codeOf(t, err)
	if ce.Code != CodeRejected || ce.Kind != KindForbidden {
		t.Fatalf("error = %+v; want rejected/forbidden", ce)
	}
	if len(ce.Suggestions) != 3 {
		t.Fatalf("suggestions = %v; want facebook 403 hints", ce.Suggestions)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("calls = %d; want no retry for a 500 rejection", len(rec.calls))
	}
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	var n int
	c, rec, sleeps := newTestClient(func(*http.Request) (*http.Response, error) {
		n++
		if n == 1 {
			return nil, errors.New("read: connection reset by peer")
		}
		return response(http.StatusOK, "application/json", `{"platform":"generic"}`), nil
	})
	if _, err := c.AnalyzeURL(context.Background(), "https://example.com/a.mp4"); err != nil {
		t.Fatalf("AnalyzeURL() error = %v", err)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("calls = %d; want 2", len(rec.calls))
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 500*time.Millisecond {
		t.Fatalf("sleeps = %v; want one 500ms backoff", *sleeps)
	}
}

func TestForbiddenRetriedThenReported(t *testing.T) {
	c, rec, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusForbidden, "text/plain", "nope"), nil
	})
	_, err := c.AnalyzeURL(context.Background(), "https://example.com/a.mp4")
	ce := codeOf(t, err)
	if ce.Status != http.StatusForbidden || ce.Code != CodeUnavailable {
		t.Fatalf("error = %+v", ce)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("calls = %d; want 2 attempts", len(rec.calls))
	}
}

func TestDisabledFeatureIsRejection(t *testing.T) {
	c, _, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "application/json", `{"error":"Browser integration is disabled"}`), nil
	})
	_, err := c.Download(context.Background(), DownloadRequest{URL: "https://example.com/a.mp4"})
	ce := codeOf(t, err)
	if ce.Code != CodeRejected || ce.Kind != KindDisabled {
		t.Fatalf("error = %+v; want rejected/disabled", ce)
	}
}

func TestDownload(t *testing.T) {
	c, rec, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "application/json",
			`{"message":"Download started successfully for youtube content!","platform":"youtube","url_analysis":{"needs_cookies":false}}`), nil
	})
	got, err := c.Download(context.Background(), DownloadRequest{URL: "https://www.youtube.com/watch?v=1", FormatID: "22"})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if got.Platform != "youtube" || !strings.HasPrefix(got.Message, "Download started") {
		t.Fatalf("Download() = %+v", got)
	}
	body := rec.calls[0].body
	if body["format_id"] != "22" || body["media_type"] != "video" {
		t.Fatalf("body = %+v", body)
	}
	if _, ok := body["cookies"]; ok {
		t.Fatal("cookies sent without any being supplied")
	}
}

func TestDownloadLegacyFallback(t *testing.T) {
	cases := []struct {
		formatID string
		wantType string
	}{
		{"", "highest_quality"},
		{"highest", "highest_quality"},
		{"137", "specific_format"},
	}
	for _, tc := range cases {
		t.Run(tc.wantType+"/"+tc.formatID, func(t *testing.T) {
			c, rec, _ := newTestClient(func(r *http.Request) (*http.Response, error) {
				data, _ := io.ReadAll(r.Body)
				if !strings.Contains(string(data), "download_type") {
					return response(http.StatusBadRequest, "application/json", `{"error":"URL and download_type are required"}`), nil
				}
				return response(http.StatusOK, "application/json", `{"message":"ok"}`), nil
			})
			if _, err := c.Download(context.Background(), DownloadRequest{URL: "https://example.com/v", FormatID: tc.formatID}); err != nil {
				t.Fatalf("Download() error = %v", err)
			}
			if len(rec.calls) != 2 {
				t.Fatalf("calls = %d; want 2", len(rec.calls))
			}
			if got := rec.calls[1].body["download_type"]; got != tc.wantType {
				t.Fatalf("download_type = %v; want %s", got, tc.wantType)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"Feature disabled by user": KindDisabled,
		"HTTP Error 403":           KindForbidden,
		"This content is private. Please ensure you're logged in": KindAuth,
		"This URL format is not supported.":                       KindUnsupported,
		"This content is not available in your region":            KindGone,
		"Request timed out":                                       KindTimeout,
		"something odd":                                           KindOther,
	}
	for msg, want := range cases {
		if got := Classify(msg); got != want {
			t.Fatalf("Classify(%q) = %q; want %q", msg, got, want)
		}
		if want != KindOther && Guidance(want) == "" {
			t.Fatalf("Guidance(%q) is empty", want)
		}
	}
}

func TestSuggestions(t *testing.T) {
	if got := Suggestions("youtube", ""); got != nil {
		t.Fatalf("Suggestions(empty) = %v; want nil", got)
	}
	if got := Suggestions("youtube", "ERROR: Private video"); len(got) != 1 || !strings.Contains(got[0], "private") {
		t.Fatalf("Suggestions(youtube private) = %v", got)
	}
	if got := Suggestions("tiktok", "HTTP Error 403 ... network"); len(got) != 3 {
		t.Fatalf("Suggestions(tiktok 403) = %v; want 2 platform + 1 general", got)
	}
	if got := Suggestions("generic", "socket timeout"); len(got) != 1 {
		t.Fatalf("Suggestions(generic timeout) = %v", got)
	}
}
