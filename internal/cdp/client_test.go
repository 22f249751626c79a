package cdp

import (
	"context"
	"errors"
	"sync"
	"testing"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/media_sniffer/internal/capture"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

type fakeEvents struct {
	mu        sync.Mutex
	navigated []string
	closed    []types.TabID
}

func (f *fakeEvents) OnNavigate(tabID types.TabID, pageURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, string(tabID)+" "+pageURL)
}

func (f *fakeEvents) OnTabClosed(tabID types.TabID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tabID)
}

type fakeSink struct {
	obs []types.Observation
}

func (s *fakeSink) OnResponse(obs types.Observation) bool {
	s.obs = append(s.obs, obs)
	return true
}

func newTestClient(t *testing.T, filter string) (*Client, *fakeEvents, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	hc := capture.NewHTTPCapture(sink)
	t.Cleanup(hc.Close)
	events := &fakeEvents{}
	c := NewClient(Options{TabURLFilter: filter}, hc, events, NewTabRegistry())
	return c, events, sink
}

func TestEventHandlerNavigation(t *testing.T) {
	c, events, _ := newTestClient(t, "")
	handle := c.createEventHandler("T1")

	handle(&page.EventFrameNavigated{Frame: &cdpproto.Frame{ID: "main", URL: "https://www.youtube.com/watch?v=1"}})
	handle(&page.EventFrameNavigated{Frame: &cdpproto.Frame{ID: "ad", ParentID: "main", URL: "https://ads.example.com/"}})
	handle(&page.EventNavigatedWithinDocument{FrameID: "ad", URL: "https://ads.example.com/#x"})
	handle(&page.EventNavigatedWithinDocument{FrameID: "main", URL: "https://www.youtube.com/watch?v=2"})

	want := []string{
		"T1 https://www.youtube.com/watch?v=1",
		"T1 https://www.youtube.com/watch?v=2",
	}
	if len(events.navigated) != len(want) {
		t.Fatalf("navigated = %v; want %v", events.navigated, want)
	}
	for i := range want {
		if events.navigated[i] != want[i] {
			t.Fatalf("navigated[%d] = %q; want %q", i, events.navigated[i], want[i])
		}
	}
	info, ok := c.tabRegistry.GetByStringID("T1")
	if !ok || info.URL != "https://www.youtube.com/watch?v=2" {
		t.Fatalf("registry entry = %+v, %v", info, ok)
	}
}

func TestEventHandlerFeedsCapture(t *testing.T) {
	c, _, sink := newTestClient(t, "")
	handle := c.createEventHandler("T1")

	handle(&network.EventRequestWillBeSent{
		RequestID: "r1",
		Type:      network.ResourceTypeMedia,
		Request:   &network.Request{URL: "https://cdn.example.com/a.mp4", Method: "GET"},
	})
	handle(&network.EventResponseReceived{
		RequestID: "r1",
		Type:      network.ResourceTypeMedia,
		Response: &network.Response{
			URL:     "https://cdn.example.com/a.mp4",
			Status:  200,
			Headers: network.Headers{"Content-Type": "video/mp4"},
		},
	})

	if len(sink.obs) != 1 {
		t.Fatalf("observations = %d; want 1", len(sink.obs))
	}
	got := sink.obs[0]
	if got.TabID != "T1" || got.Response.Method != "GET" || got.Response.Header("content-type") != "video/mp4" {
		t.Fatalf("observation = %+v", got)
	}
}

func TestTrackable(t *testing.T) {
	c, _, _ := newTestClient(t, "YouTube.com")
	c.helperID = "helper"

	cases := []struct {
		info *target.Info
		want bool
	}{
		{&target.Info{TargetID: "A", Type: "page", URL: "https://www.youtube.com/watch?v=1"}, true},
		{&target.Info{TargetID: "B", Type: "page", URL: "https://vimeo.com/1"}, false},
		{&target.Info{TargetID: "C", Type: "service_worker", URL: "https://www.youtube.com/sw.js"}, false},
		{&target.Info{TargetID: "helper", Type: "page", URL: "https://youtube.com/"}, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := c.trackable(tc.info); got != tc.want {
			t.Fatalf("trackable(%+v) = %v; want %v", tc.info, got, tc.want)
		}
	}
}

func TestDetachUnknownTabIsSilent(t *testing.T) {
	c, events, _ := newTestClient(t, "")
	c.detach("missing")
	if len(events.closed) != 0 {
		t.Fatalf("closed = %v; want none", events.closed)
	}
}

func TestDetachKnownTab(t *testing.T) {
	c, events, _ := newTestClient(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	c.tabs["T1"] = &TabContext{ID: "T1", ctx: ctx, cancel: cancel}
	c.tabRegistry.Register("T1", "https://example.com", "")

	c.detach("T1")

	if len(events.closed) != 1 || events.closed[0] != "T1" {
		t.Fatalf("closed = %v; want [T1]", events.closed)
	}
	if ctx.Err() == nil {
		t.Fatal("tab context not cancelled")
	}
	if c.tabRegistry.Count() != 0 || c.GetTabCount() != 0 {
		t.Fatal("tab still tracked after detach")
	}
}

func TestCookiesRequiresConnection(t *testing.T) {
	c, _, _ := newTestClient(t, "")
	if _, err := c.Cookies(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Cookies() error = %v; want ErrNotConnected", err)
	}
	if c.Connected() {
		t.Fatal("Connected() = true before Connect")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestConvertCookie(t *testing.T) {
	got := convertCookie(&network.Cookie{Name: "SID", Value: "v", Domain: ".youtube.com", Path: "/", Expires: 1900000000, Secure: true, HTTPOnly: true})
	if got.ExpirationDate != 1900000000 || !got.Secure || !got.HTTPOnly || got.Session {
		t.Fatalf("convertCookie() = %+v", got)
	}

	session := convertCookie(&network.Cookie{Name: "YSC", Domain: ".youtube.com", Expires: -1, Session: true})
	if session.ExpirationDate != 0 || !session.Session {
		t.Fatalf("convertCookie(session) = %+v", session)
	}
}
