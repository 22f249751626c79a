// Package popup picks the URL to hand to the desktop application for a tab
// and drives format listing and downloads.
package popup

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/media_sniffer/internal/desktop"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// NoMediaGuidance is shown when a tab has nothing detected.
const NoMediaGuidance = "No media detected yet. Start playback on the page, then check again, or use the page URL."

// Source says where a plan's target URL came from.
type Source string

const (
	SourceNone  Source = ""
	SourceMedia Source = "media"
	SourcePage  Source = "page"
)

// Plan is the popup's view of one tab.
type Plan struct {
	TabID      types.TabID            `json:"tabId"`
	PageURL    string                 `json:"pageUrl"`
	Candidates []types.MediaCandidate `json:"candidates"`
	Target     string                 `json:"target,omitempty"`
	Source     Source                 `json:"source,omitempty"`
	Streaming  bool                   `json:"streaming"`
	Playlist   bool                   `json:"playlist"`
	Guidance   string                 `json:"guidance,omitempty"`
}

// Orchestrator combines the daemon's detections with the desktop
// application.
type Orchestrator struct {
	daemon  *Daemon
	desktop *desktop.Client
}

func New(daemon *Daemon, dc *desktop.Client) *Orchestrator {
	return &Orchestrator{daemon: daemon, desktop: dc}
}

// Plan resolves the URL to offer for tabID. A stable media URL wins. On a
// recognized watch page the page URL beats ephemeral CDN URLs, since the
// desktop application resolves watch pages itself.
func (o *Orchestrator) Plan(ctx context.Context, tabID types.TabID) (Plan, error) {
	media, err := o.daemon.Media(ctx, tabID)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{TabID: tabID, PageURL: media.PageURL, Candidates: media.MediaInfo}
	if plan.Candidates == nil {
		plan.Candidates = []types.MediaCandidate{}
	}

	if isWebURL(plan.PageURL) {
		streaming, err := o.daemon.IsStreaming(ctx, plan.PageURL)
		if err != nil {
			return Plan{}, err
		}
		plan.Streaming = streaming
	}

	switch {
	case len(plan.Candidates) > 0 && !plan.Candidates[0].IsTemporary:
		plan.Target, plan.Source = plan.Candidates[0].URL, SourceMedia
	case plan.Streaming:
		plan.Target, plan.Source = plan.PageURL, SourcePage
	case len(plan.Candidates) > 0:
		plan.Target, plan.Source = plan.Candidates[0].URL, SourceMedia
	case isWebURL(plan.PageURL):
		plan.Target, plan.Source = plan.PageURL, SourcePage
		plan.Guidance = NoMediaGuidance
	default:
		plan.Guidance = NoMediaGuidance
	}

	plan.Playlist = IsPlaylistURL(plan.Target) || IsPlaylistURL(plan.PageURL)
	return plan, nil
}

// Formats lists formats for target. pageURL, when set, is where cookies are
// read from; CDN hosts rarely carry the session cookies.
func (o *Orchestrator) Formats(ctx context.Context, target, pageURL, mediaType string) (desktop.FormatsResult, error) {
	analysis, err := o.desktop.AnalyzeURL(ctx, target)
	if err != nil {
		return desktop.FormatsResult{}, err
	}
	return o.desktop.GetFormats(ctx, desktop.FormatsRequest{
		URL:       target,
		MediaType: mediaType,
		Cookies:   o.cookiesFor(ctx, analysis, target, pageURL),
	})
}

// DownloadOptions selects what to download.
type DownloadOptions struct {
	Target    string
	PageURL   string
	MediaType string
	FormatID  string
}

// Download checks the application is up, then starts the download. An
// unreachable application is reported before anything is sent.
func (o *Orchestrator) Download(ctx context.Context, opts DownloadOptions) (desktop.DownloadResult, error) {
	if _, err := o.desktop.Health(ctx); err != nil {
		return desktop.DownloadResult{}, err
	}
	analysis, err := o.desktop.AnalyzeURL(ctx, opts.Target)
	if err != nil {
		return desktop.DownloadResult{}, err
	}
	return o.desktop.Download(ctx, desktop.DownloadRequest{
		URL:       opts.Target,
		MediaType: opts.MediaType,
		FormatID:  opts.FormatID,
		Cookies:   o.cookiesFor(ctx, analysis, opts.Target, opts.PageURL),
	})
}

// cookiesFor returns the essential cookies when the application asks for
// them. Cookie failures degrade to an anonymous request.
func (o *Orchestrator) cookiesFor(ctx context.Context, analysis desktop.Analysis, target, pageURL string) []types.Cookie {
	if !analysis.NeedsCookies {
		return nil
	}
	source := target
	if isWebURL(pageURL) {
		source = pageURL
	}
	set, err := o.daemon.Cookies(ctx, source, true, false)
	if err != nil {
		slog.Warn("cookies unavailable, continuing without", "url", source, "error", err)
		return nil
	}
	slog.Debug("attaching cookies", "url", source, "count", len(set.Cookies), "platform", set.Platform)
	return set.Cookies
}

var playlistMarkers = []string{
	"playlist?list=", "/playlist/", "/sets/", "/collection/", "album", "playlist", "list=",
}

// IsPlaylistURL reports whether rawURL looks like a playlist, album or set.
func IsPlaylistURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u := strings.ToLower(rawURL)
	for _, m := range playlistMarkers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}

func isWebURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
