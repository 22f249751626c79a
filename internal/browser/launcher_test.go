package browser

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestArgs(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9333, ProfileDir: "/tmp/p", Headless: true})
	args := l.args()

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--remote-debugging-port=9333",
		"--user-data-dir=/tmp/p",
		"--window-size=1280,800",
		"--headless=new",
		"--autoplay-policy=no-user-gesture-required",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %v", want, args)
		}
	}
	if args[len(args)-1] != "about:blank" {
		t.Fatalf("last arg = %q; want start URL", args[len(args)-1])
	}
}

func TestLaunchSkipsWhenPortInUse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	p, _ := strconv.Atoi(port)

	l := NewLauncher(Config{CDPAddress: host, CDPPort: p, ProfileDir: t.TempDir()})
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if l.Running() {
		t.Fatal("Running() = true; want false when browser already listening")
	}
	l.Stop()
}

func TestWaitForCDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/130","Protocol-Version":"1.3","webSocketDebuggerUrl":"ws://x/devtools/browser/1"}`))
	}))
	defer srv.Close()

	host, port, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	p, _ := strconv.Atoi(port)
	l := NewLauncher(Config{CDPAddress: host, CDPPort: p})
	l.readyTimeout = 2 * time.Second

	v, err := l.waitForCDP(context.Background())
	if err != nil {
		t.Fatalf("waitForCDP() error = %v", err)
	}
	if v.Browser != "Chrome/130" || v.Protocol != "1.3" {
		t.Fatalf("version = %+v", v)
	}
}

func TestWaitForCDPNeedsDebuggerURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Browser":"Chrome/130"}`))
	}))
	defer srv.Close()

	host, port, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	p, _ := strconv.Atoi(port)
	l := NewLauncher(Config{CDPAddress: host, CDPPort: p})
	l.readyTimeout = 600 * time.Millisecond

	if _, err := l.waitForCDP(context.Background()); err == nil {
		t.Fatal("waitForCDP() succeeded without a debugger URL")
	}
}

func TestArgsMute(t *testing.T) {
	args := NewLauncher(Config{CDPPort: 9222, Mute: true}).args()
	if !strings.Contains(strings.Join(args, " "), "--mute-audio") {
		t.Fatalf("args missing --mute-audio: %v", args)
	}
}

func TestDetectBrowserOverride(t *testing.T) {
	if _, err := detectBrowser(t.TempDir() + "/missing-chrome"); err == nil {
		t.Fatal("expected error for missing override binary")
	}
}
