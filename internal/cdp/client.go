// Package cdp attaches to a running Chromium over the DevTools protocol and
// feeds per-tab network and navigation events into the media pipeline.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/media_sniffer/internal/capture"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// ErrNotConnected is returned by calls that need a live browser session.
var ErrNotConnected = errors.New("cdp: not connected")

// TabEvents receives tab lifecycle events.
type TabEvents interface {
	OnNavigate(tabID types.TabID, pageURL string)
	OnTabClosed(tabID types.TabID)
}

// Options configures a Client.
type Options struct {
	CDPURL         string
	TabURLFilter   string
	ReloadOnAttach bool
}

// Client manages CDP connections to browser tabs.
type Client struct {
	opts        Options
	httpCapture *capture.HTTPCapture
	events      TabEvents
	tabRegistry *TabRegistry

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	helperID      target.ID

	tabs   map[target.ID]*TabContext
	tabsMu sync.RWMutex
	closed bool
}

type TabContext struct {
	ID     target.ID
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(opts Options, httpCapture *capture.HTTPCapture, events TabEvents, tabRegistry *TabRegistry) *Client {
	return &Client{
		opts:        opts,
		httpCapture: httpCapture,
		events:      events,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*TabContext),
	}
}

// Connect attaches to every existing page tab and starts watching for new
// ones. A browser with no matching tabs is not an error.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("Connecting to Chromium", "url", c.opts.CDPURL)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), c.opts.CDPURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	c.tabsMu.Lock()
	c.allocCancel, c.browserCtx, c.browserCancel = allocCancel, browserCtx, browserCancel
	c.tabsMu.Unlock()

	if err := chromedp.Run(browserCtx); err != nil {
		c.shutdown()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	// The first Run opens a blank tab of our own; it is never tracked.
	if t := chromedp.FromContext(browserCtx).Target; t != nil {
		c.helperID = t.TargetID
	}

	chromedp.ListenBrowser(browserCtx, c.onBrowserEvent)
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	})); err != nil {
		c.shutdown()
		return fmt.Errorf("failed to enable target discovery: %w", err)
	}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		c.shutdown()
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}
	slog.Info("Found browser targets", "count", len(targets))

	attached := 0
	for _, t := range targets {
		if !c.trackable(t) {
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL, t.Title); err != nil {
			slog.Error("Failed to attach to tab", "target_id", t.TargetID, "url", truncateURL(t.URL), "error", err)
			continue
		}
		attached++
	}

	slog.Info("Attached to tabs", "count", attached, "tab_url_filter", c.opts.TabURLFilter)
	return nil
}

func (c *Client) trackable(info *target.Info) bool {
	if info == nil || info.Type != "page" || info.TargetID == c.helperID {
		return false
	}
	return c.matchesTabURL(info.URL)
}

// onBrowserEvent runs on the browser's event loop and must not block, so
// attaching happens on its own goroutine.
func (c *Client) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if c.trackable(e.TargetInfo) {
			go c.attachAsync(e.TargetInfo)
		}
	case *target.EventTargetInfoChanged:
		info := e.TargetInfo
		if info == nil {
			return
		}
		if c.isAttached(info.TargetID) {
			c.tabRegistry.Register(info.TargetID, info.URL, info.Title)
			return
		}
		// A tab opened on about:blank may only match the URL filter later.
		if c.trackable(info) {
			go c.attachAsync(info)
		}
	case *target.EventTargetDestroyed:
		go c.detach(e.TargetID)
	}
}

func (c *Client) attachAsync(info *target.Info) {
	if err := c.attachToTab(info.TargetID, info.URL, info.Title); err != nil {
		slog.Warn("Failed to attach to new tab", "target_id", info.TargetID, "error", err)
	}
}

func (c *Client) attachToTab(targetID target.ID, url, title string) error {
	c.tabsMu.Lock()
	if _, ok := c.tabs[targetID]; ok || c.closed || c.browserCtx == nil {
		c.tabsMu.Unlock()
		return nil
	}
	// Tab contexts must outlive the browser context: cancelling a chromedp
	// context closes its target, and these tabs belong to the user.
	tabCtx, tabCancel := chromedp.NewContext(context.WithoutCancel(c.browserCtx), chromedp.WithTargetID(targetID))
	c.tabs[targetID] = &TabContext{ID: targetID, ctx: tabCtx, cancel: tabCancel}
	c.tabsMu.Unlock()

	c.tabRegistry.Register(targetID, url, title)
	chromedp.ListenTarget(tabCtx, c.createEventHandler(string(targetID)))

	if err := chromedp.Run(tabCtx, network.Enable(), network.SetCacheDisabled(true), page.Enable()); err != nil {
		c.forget(targetID)
		return fmt.Errorf("failed to enable network/page domains: %w", err)
	}

	c.events.OnNavigate(types.TabID(targetID), url)
	slog.Info("Attached to tab", "target_id", targetID, "url", truncateURL(url))

	if c.opts.ReloadOnAttach {
		reloadCtx, reloadCancel := context.WithTimeout(tabCtx, 30*time.Second)
		defer reloadCancel()
		if err := chromedp.Run(reloadCtx, chromedp.Reload()); err != nil {
			slog.Warn("Failed to reload tab (continuing)", "target_id", targetID, "error", err)
		} else {
			slog.Info("Reloaded tab after attach", "target_id", targetID, "url", truncateURL(url))
		}
	}
	return nil
}

// createEventHandler returns the per-tab listener. chromedp calls it
// sequentially for one target, so mainFrame needs no lock.
func (c *Client) createEventHandler(tabID string) func(ev interface{}) {
	var mainFrame cdp.FrameID
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				mainFrame = e.Frame.ID
				c.navigated(tabID, e.Frame.URL, "full")
			}
		case *page.EventNavigatedWithinDocument:
			if mainFrame == "" || e.FrameID == mainFrame {
				c.navigated(tabID, e.URL, "spa")
			}
		case *network.EventRequestWillBeSent:
			c.httpCapture.OnRequestWillBeSent(tabID, e)
		case *network.EventResponseReceived:
			c.httpCapture.OnResponseReceived(tabID, e)
		case *network.EventLoadingFailed:
			c.httpCapture.OnLoadingFailed(tabID, e)
		}
	}
}

func (c *Client) navigated(tabID, url, kind string) {
	c.tabRegistry.Register(target.ID(tabID), url, "")
	c.events.OnNavigate(types.TabID(tabID), url)
	slog.Debug("Tab navigated", "tab_id", tabID, "kind", kind, "url", truncateURL(url))
}

// detach drops a destroyed tab and tells the pipeline it closed.
func (c *Client) detach(targetID target.ID) {
	tab := c.forget(targetID)
	if tab == nil {
		return
	}
	tab.cancel()
	c.events.OnTabClosed(types.TabID(targetID))
	slog.Info("Tab closed", "target_id", targetID)
}

func (c *Client) forget(targetID target.ID) *TabContext {
	c.tabsMu.Lock()
	tab, ok := c.tabs[targetID]
	delete(c.tabs, targetID)
	c.tabsMu.Unlock()
	c.tabRegistry.Remove(targetID)
	if !ok {
		return nil
	}
	return tab
}

func (c *Client) isAttached(targetID target.ID) bool {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	_, ok := c.tabs[targetID]
	return ok
}

// Cookies returns every cookie in the browser's cookie jar.
func (c *Client) Cookies(ctx context.Context) ([]types.Cookie, error) {
	c.tabsMu.RLock()
	browserCtx, closed := c.browserCtx, c.closed
	c.tabsMu.RUnlock()
	if browserCtx == nil || closed {
		return nil, ErrNotConnected
	}

	runCtx, cancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	out := make([]types.Cookie, 0, len(raw))
	for _, rc := range raw {
		if rc != nil {
			out = append(out, convertCookie(rc))
		}
	}
	return out, nil
}

func convertCookie(rc *network.Cookie) types.Cookie {
	ck := types.Cookie{
		Name:     rc.Name,
		Value:    rc.Value,
		Domain:   rc.Domain,
		Path:     rc.Path,
		Secure:   rc.Secure,
		HTTPOnly: rc.HTTPOnly,
		Session:  rc.Session,
	}
	if !rc.Session && rc.Expires > 0 {
		ck.ExpirationDate = rc.Expires
	}
	return ck
}

// Close stops event delivery and drops the browser connection. Attached tabs
// stay open in the browser.
func (c *Client) Close() error {
	c.tabsMu.Lock()
	if c.closed {
		c.tabsMu.Unlock()
		return nil
	}
	c.closed = true
	c.tabs = make(map[target.ID]*TabContext)
	c.tabsMu.Unlock()

	c.shutdown()
	slog.Info("CDP client closed")
	return nil
}

func (c *Client) shutdown() {
	c.tabsMu.Lock()
	browserCancel, allocCancel := c.browserCancel, c.allocCancel
	c.browserCtx, c.browserCancel, c.allocCancel = nil, nil, nil
	c.tabsMu.Unlock()

	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
}

// Connected reports whether Connect succeeded and Close has not run.
func (c *Client) Connected() bool {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return c.browserCtx != nil && !c.closed
}

func (c *Client) GetTabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func (c *Client) matchesTabURL(url string) bool {
	if c.opts.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.opts.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
