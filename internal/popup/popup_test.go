package popup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/media_sniffer/internal/bridge"
	"github.com/dgnsrekt/media_sniffer/internal/desktop"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

type fakeDaemon struct {
	media        bridge.MediaURLs
	streaming    map[string]bool
	cookies      []types.Cookie
	cookieStatus int

	mu          sync.Mutex
	cookieQuery string
}

func (f *fakeDaemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tabs/{tab_id}/media", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("tab_id") != "T1" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"unknown tab"}`))
			return
		}
		writeJSON(w, f.media)
	})
	mux.HandleFunc("GET /api/v1/streaming", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, bridge.StreamingCheck{IsStreaming: f.streaming[r.URL.Query().Get("url")]})
	})
	mux.HandleFunc("GET /api/v1/cookies", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cookieQuery = r.URL.RawQuery
		f.mu.Unlock()
		if f.cookieStatus != 0 {
			w.WriteHeader(f.cookieStatus)
			_, _ = w.Write([]byte(`{"detail":"browser gone"}`))
			return
		}
		writeJSON(w, CookieSet{URL: r.URL.Query().Get("url"), Count: len(f.cookies), Cookies: f.cookies})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fakeDesktop struct {
	needsCookies bool

	mu    sync.Mutex
	paths []string
	last  map[string]any
}

func (f *fakeDesktop) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		if r.Method == http.MethodPost {
			f.last = body
		}
		f.mu.Unlock()

		switch r.URL.Path {
		case "/health":
			writeJSON(w, map[string]string{"status": "ok"})
		case "/analyze_url":
			writeJSON(w, desktop.Analysis{Platform: "youtube", NeedsCookies: f.needsCookies})
		case "/get_formats":
			writeJSON(w, desktop.FormatsResult{Formats: []desktop.Format{{ID: "137", Ext: "mp4", Resolution: "1920x1080", Type: "video"}}})
		case "/download":
			writeJSON(w, map[string]string{"message": "Download started"})
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func (f *fakeDaemon) lastCookieQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookieQuery
}

func (f *fakeDesktop) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeDesktop) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func newOrchestrator(t *testing.T, d *fakeDaemon, dt *fakeDesktop) *Orchestrator {
	t.Helper()
	ds := httptest.NewServer(d.handler())
	t.Cleanup(ds.Close)
	var desktopURL string
	if dt != nil {
		dts := httptest.NewServer(dt.handler())
		t.Cleanup(dts.Close)
		desktopURL = dts.URL
	} else {
		closed := httptest.NewServer(http.NotFoundHandler())
		desktopURL = closed.URL
		closed.Close()
	}
	return New(NewDaemon(ds.URL, nil), desktop.New(desktopURL, nil))
}

func TestPlan(t *testing.T) {
	const page = "https://www.youtube.com/watch?v=abc"
	stable := types.MediaCandidate{URL: "https://cdn.example.com/v.mp4", Type: types.MediaVideo}
	temp := types.MediaCandidate{URL: "https://rr1.googlevideo.com/videoplayback?id=1", Type: types.MediaVideo, IsTemporary: true}

	tests := []struct {
		name       string
		pageURL    string
		cands      []types.MediaCandidate
		streaming  bool
		wantTarget string
		wantSource Source
		wantGuide  bool
	}{
		{"stable candidate wins", page, []types.MediaCandidate{stable, temp}, true, stable.URL, SourceMedia, false},
		{"watch page beats temporary", page, []types.MediaCandidate{temp}, true, page, SourcePage, false},
		{"temporary when not a watch page", "https://example.com/", []types.MediaCandidate{temp}, false, temp.URL, SourceMedia, false},
		{"page fallback with guidance", "https://example.com/", nil, false, "https://example.com/", SourcePage, true},
		{"nothing at all", "", nil, false, "", SourceNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDaemon{
				media:     bridge.MediaURLs{PageURL: tt.pageURL, MediaInfo: tt.cands},
				streaming: map[string]bool{tt.pageURL: tt.streaming},
			}
			o := newOrchestrator(t, d, &fakeDesktop{})
			plan, err := o.Plan(context.Background(), "T1")
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if plan.Target != tt.wantTarget || plan.Source != tt.wantSource {
				t.Fatalf("target = %q (%s), want %q (%s)", plan.Target, plan.Source, tt.wantTarget, tt.wantSource)
			}
			if (plan.Guidance != "") != tt.wantGuide {
				t.Fatalf("guidance = %q", plan.Guidance)
			}
			if plan.Candidates == nil {
				t.Fatalf("candidates should never be nil")
			}
			if plan.Streaming != tt.streaming {
				t.Fatalf("streaming = %v, want %v", plan.Streaming, tt.streaming)
			}
		})
	}
}

func TestPlanDaemonError(t *testing.T) {
	o := newOrchestrator(t, &fakeDaemon{}, &fakeDesktop{})
	_, err := o.Plan(context.Background(), "nope")
	var de *DaemonError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DaemonError", err)
	}
	if de.Status != http.StatusUnprocessableEntity || de.Detail != "unknown tab" {
		t.Fatalf("got %+v", de)
	}
}

func TestPlanMarksPlaylist(t *testing.T) {
	page := "https://www.youtube.com/playlist?list=PL123"
	d := &fakeDaemon{media: bridge.MediaURLs{PageURL: page}, streaming: map[string]bool{page: true}}
	plan, err := newOrchestrator(t, d, &fakeDesktop{}).Plan(context.Background(), "T1")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.Playlist {
		t.Fatalf("expected playlist")
	}
}

func TestFormatsAttachesEssentialCookies(t *testing.T) {
	d := &fakeDaemon{cookies: []types.Cookie{{Name: "SID", Value: "x", Domain: ".youtube.com", Path: "/"}}}
	dt := &fakeDesktop{needsCookies: true}
	o := newOrchestrator(t, d, dt)

	res, err := o.Formats(context.Background(), "https://rr1.googlevideo.com/videoplayback?id=1", "https://www.youtube.com/watch?v=abc", "video")
	if err != nil {
		t.Fatalf("Formats: %v", err)
	}
	if len(res.Formats) != 1 || res.Formats[0].ID != "137" {
		t.Fatalf("formats = %+v", res.Formats)
	}
	if !strings.Contains(d.lastCookieQuery(), "essential=true") || !strings.Contains(d.lastCookieQuery(), "youtube.com%2Fwatch") {
		t.Fatalf("cookie query = %q, want page URL with essential", d.lastCookieQuery())
	}
	got, ok := dt.lastBody()["cookies"].([]any)
	if !ok || len(got) != 1 {
		t.Fatalf("cookies sent = %#v", dt.lastBody()["cookies"])
	}
}

func TestFormatsWithoutCookieNeed(t *testing.T) {
	d := &fakeDaemon{cookies: []types.Cookie{{Name: "SID"}}}
	dt := &fakeDesktop{}
	if _, err := newOrchestrator(t, d, dt).Formats(context.Background(), "https://example.com/v.mp4", "", ""); err != nil {
		t.Fatalf("Formats: %v", err)
	}
	if d.lastCookieQuery() != "" {
		t.Fatalf("cookies fetched although not needed")
	}
	if _, ok := dt.lastBody()["cookies"]; ok {
		t.Fatalf("cookies sent although not needed")
	}
}

func TestCookieFailureDegrades(t *testing.T) {
	d := &fakeDaemon{cookieStatus: http.StatusBadGateway}
	dt := &fakeDesktop{needsCookies: true}
	o := newOrchestrator(t, d, dt)
	res, err := o.Download(context.Background(), DownloadOptions{Target: "https://www.youtube.com/watch?v=abc"})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.Message != "Download started" {
		t.Fatalf("message = %q", res.Message)
	}
	if _, ok := dt.lastBody()["cookies"]; ok {
		t.Fatalf("cookies sent after failure")
	}
}

func TestDownloadChecksHealthFirst(t *testing.T) {
	dt := &fakeDesktop{}
	o := newOrchestrator(t, &fakeDaemon{}, dt)
	if _, err := o.Download(context.Background(), DownloadOptions{Target: "https://example.com/v.mp4", FormatID: "137"}); err != nil {
		t.Fatalf("Download: %v", err)
	}
	calls := dt.calls()
	want := []string{"/health", "/analyze_url", "/download"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	if dt.lastBody()["format_id"] != "137" {
		t.Fatalf("format_id = %v", dt.lastBody()["format_id"])
	}
}

func TestDownloadRefusedWhenDesktopDown(t *testing.T) {
	o := newOrchestrator(t, &fakeDaemon{}, nil)
	_, err := o.Download(context.Background(), DownloadOptions{Target: "https://example.com/v.mp4"})
	var ce *desktop.CodedError
	if !errors.As(err, &ce) || ce.Code != desktop.CodeUnavailable {
		t.Fatalf("err = %v, want %s", err, desktop.CodeUnavailable)
	}
}

func TestIsPlaylistURL(t *testing.T) {
	cases := map[string]bool{
		"https://www.youtube.com/playlist?list=PL1":  true,
		"https://www.youtube.com/watch?v=a&list=PL1": true,
		"https://soundcloud.com/artist/sets/mix":     true,
		"https://example.bandcamp.com/album/x":       true,
		"https://vimeo.com/showcase/collection/1":    true,
		"https://www.youtube.com/watch?v=abc":        false,
		"https://cdn.example.com/video.mp4":          false,
		"":                                           false,
	}
	for u, want := range cases {
		if got := IsPlaylistURL(u); got != want {
			t.Fatalf("IsPlaylistURL(%q) = %v, want %v", u, got, want)
		}
	}
}
