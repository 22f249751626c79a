// Package bridge connects browser events to the media store and answers the
// popup's queries.
package bridge

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/filter"
	"github.com/dgnsrekt/media_sniffer/internal/mediastore"
	"github.com/dgnsrekt/media_sniffer/internal/relay"
	"github.com/dgnsrekt/media_sniffer/internal/storage"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// FeedBadge is the relay feed carrying badge updates.
const FeedBadge = "badge"

// Journal receives a record for every accepted candidate and tab event.
type Journal interface {
	Write(rec storage.Record) error
}

// Options wires optional collaborators.
type Options struct {
	Tabs    types.TabInfoProvider
	Broker  *relay.Broker
	Journal Journal
}

// Bridge is the event sink and query surface around one media store.
type Bridge struct {
	filter  *filter.Filter
	store   *mediastore.Store
	tabs    types.TabInfoProvider
	broker  *relay.Broker
	journal Journal

	badgeMu sync.RWMutex
	badges  map[types.TabID]int
}

// New wires f and store together. The bridge registers itself as the store's
// change callback to keep badge counts current.
func New(f *filter.Filter, store *mediastore.Store, opts Options) *Bridge {
	b := &Bridge{
		filter:  f,
		store:   store,
		tabs:    opts.Tabs,
		broker:  opts.Broker,
		journal: opts.Journal,
		badges:  make(map[types.TabID]int),
	}
	store.OnChange(b.setBadge)
	return b
}

// BadgeEvent is the payload published on FeedBadge.
type BadgeEvent struct {
	TabID types.TabID `json:"tabId"`
	Count int         `json:"count"`
	Text  string      `json:"text"`
}

// BadgeText renders a count the way the toolbar badge shows it: empty for
// zero.
func BadgeText(count int) string {
	if count <= 0 {
		return ""
	}
	return strconv.Itoa(count)
}

func (b *Bridge) setBadge(tabID types.TabID, count int) {
	b.badgeMu.Lock()
	if count > 0 {
		b.badges[tabID] = count
	} else {
		delete(b.badges, tabID)
	}
	b.badgeMu.Unlock()

	if b.broker == nil {
		return
	}
	evt := BadgeEvent{TabID: tabID, Count: count, Text: BadgeText(count)}
	if err := b.broker.PublishJSON(FeedBadge, string(tabID), evt); err != nil {
		slog.Warn("badge publish failed", "tab_id", tabID, "error", err)
	}
}

// Badge returns the tab's current badge count. Zero means unset.
func (b *Bridge) Badge(tabID types.TabID) int {
	b.badgeMu.RLock()
	defer b.badgeMu.RUnlock()
	return b.badges[tabID]
}

// OnResponse feeds one response observation through the filter. Only
// successful GET responses that belong to a tab are considered. It reports
// whether a candidate was recorded.
func (b *Bridge) OnResponse(obs types.Observation) bool {
	if obs.TabID == "" || obs.URL == "" {
		return false
	}
	if !obs.Response.Successful() {
		return false
	}

	pageURL := b.pageURL(obs.TabID)
	cand, ok := b.filter.Classify(obs.URL, obs.Response, pageURL)
	if !ok {
		return false
	}

	b.store.Record(obs.TabID, cand, pageURL)
	slog.Debug("media candidate recorded",
		"tab_id", obs.TabID,
		"type", cand.Type,
		"platform", cand.Platform,
		"temporary", cand.IsTemporary,
		"url", truncateURL(cand.URL))
	b.record(storage.KindAccepted, obs.TabID, pageURL, &cand)
	return true
}

// OnNavigate records a top-level navigation for tabID.
func (b *Bridge) OnNavigate(tabID types.TabID, pageURL string) {
	if tabID == "" || pageURL == "" {
		return
	}
	if b.store.Navigate(tabID, pageURL) {
		slog.Debug("tab media cleared on navigation", "tab_id", tabID, "page_url", pageURL)
	}
	b.record(storage.KindNavigated, tabID, pageURL, nil)
}

// OnTabClosed drops all state for tabID.
func (b *Bridge) OnTabClosed(tabID types.TabID) {
	if tabID == "" {
		return
	}
	b.store.Invalidate(tabID)
	b.forgetBadge(tabID)
	b.record(storage.KindClosed, tabID, "", nil)
}

func (b *Bridge) forgetBadge(tabID types.TabID) {
	b.badgeMu.Lock()
	delete(b.badges, tabID)
	b.badgeMu.Unlock()
	if b.broker != nil {
		b.broker.Forget(FeedBadge, string(tabID))
	}
}

// pageURL prefers the store's view of the tab and falls back to the CDP
// target URL for tabs that have not navigated since attach.
func (b *Bridge) pageURL(tabID types.TabID) string {
	if st, ok := b.store.State(tabID); ok && st.PageURL != "" {
		return st.PageURL
	}
	if b.tabs != nil {
		if info, ok := b.tabs.GetByStringID(string(tabID)); ok {
			return info.URL
		}
	}
	return ""
}

func (b *Bridge) record(kind storage.Kind, tabID types.TabID, pageURL string, cand *types.MediaCandidate) {
	if b.journal == nil {
		return
	}
	if err := b.journal.Write(storage.NewRecord(kind, tabID, pageURL, cand)); err != nil {
		slog.Debug("journal write skipped", "kind", kind, "error", err)
	}
}

// MediaURLs answers get_media_urls.
type MediaURLs struct {
	URLs      []string               `json:"urls"`
	MediaInfo []types.MediaCandidate `json:"mediaInfo"`
	PageURL   string                 `json:"pageUrl"`
}

// GetMediaURLs returns the tab's ranked candidates. A tab with nothing
// detected yields empty lists, not an error.
func (b *Bridge) GetMediaURLs(tabID types.TabID) (MediaURLs, error) {
	if err := validateTabID(tabID); err != nil {
		return MediaURLs{}, err
	}
	cands, pageURL := b.store.Query(tabID)
	if pageURL == "" {
		pageURL = b.pageURL(tabID)
	}
	out := MediaURLs{
		URLs:      make([]string, len(cands)),
		MediaInfo: make([]types.MediaCandidate, len(cands)),
		PageURL:   pageURL,
	}
	for i, c := range cands {
		out.URLs[i] = c.URL
		out.MediaInfo[i] = c
	}
	return out, nil
}

// StreamingCheck answers is_streaming_url.
type StreamingCheck struct {
	IsStreaming bool `json:"isStreaming"`
}

// IsStreamingURL reports whether rawURL is a recognized watch page.
func (b *Bridge) IsStreamingURL(rawURL string) StreamingCheck {
	return StreamingCheck{IsStreaming: b.filter.Rules().MatchesStreamingPage(strings.TrimSpace(rawURL))}
}

// DetectPlatform names the platform rawURL belongs to, if any.
func (b *Bridge) DetectPlatform(rawURL string) types.Platform {
	return b.filter.Rules().DetectPlatform(strings.TrimSpace(rawURL))
}

// ClearResult answers clear_tab_urls.
type ClearResult struct {
	Success bool `json:"success"`
}

// ClearTab drops the tab's candidates and resets its badge.
func (b *Bridge) ClearTab(tabID types.TabID) (ClearResult, error) {
	if err := validateTabID(tabID); err != nil {
		return ClearResult{}, err
	}
	b.store.Invalidate(tabID)
	b.setBadge(tabID, 0)
	b.record(storage.KindCleared, tabID, "", nil)
	return ClearResult{Success: true}, nil
}

// Analysis answers analyze_tab.
type Analysis struct {
	HasMedia         bool              `json:"hasMedia"`
	MediaCount       int               `json:"mediaCount"`
	MediaTypes       []types.MediaType `json:"mediaTypes"`
	HasTemporaryURLs bool              `json:"hasTemporaryUrls"`
	Platforms        []types.Platform  `json:"platforms"`
}

// AnalyzeTab summarizes the tab's candidates. Media types are listed best
// first; platforms alphabetically.
func (b *Bridge) AnalyzeTab(tabID types.TabID) (Analysis, error) {
	if err := validateTabID(tabID); err != nil {
		return Analysis{}, err
	}
	cands, _ := b.store.Query(tabID)

	out := Analysis{
		HasMedia:   len(cands) > 0,
		MediaCount: len(cands),
		MediaTypes: []types.MediaType{},
		Platforms:  []types.Platform{},
	}
	seenType := make(map[types.MediaType]bool)
	seenPlatform := make(map[types.Platform]bool)
	for _, c := range cands {
		if c.IsTemporary {
			out.HasTemporaryURLs = true
		}
		if !seenType[c.Type] {
			seenType[c.Type] = true
			out.MediaTypes = append(out.MediaTypes, c.Type)
		}
		if c.Platform != types.PlatformNone && !seenPlatform[c.Platform] {
			seenPlatform[c.Platform] = true
			out.Platforms = append(out.Platforms, c.Platform)
		}
	}
	sort.SliceStable(out.MediaTypes, func(i, j int) bool {
		return out.MediaTypes[i].Rank() < out.MediaTypes[j].Rank()
	})
	sort.Slice(out.Platforms, func(i, j int) bool { return out.Platforms[i] < out.Platforms[j] })
	return out, nil
}

// TabSummary is one row of the tab listing.
type TabSummary struct {
	TabID       types.TabID `json:"tabId"`
	PageURL     string      `json:"pageUrl"`
	Title       string      `json:"title,omitempty"`
	Badge       int         `json:"badge"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// Tabs lists attached tabs and tabs with stored state, merged by ID.
func (b *Bridge) Tabs() []TabSummary {
	byID := make(map[types.TabID]*TabSummary)
	var order []types.TabID
	add := func(id types.TabID) *TabSummary {
		if s, ok := byID[id]; ok {
			return s
		}
		s := &TabSummary{TabID: id, Badge: b.Badge(id)}
		byID[id] = s
		order = append(order, id)
		return s
	}

	if b.tabs != nil {
		for _, info := range b.tabs.List() {
			s := add(types.TabID(info.TargetID))
			s.PageURL = info.URL
			s.Title = info.Title
		}
	}
	for _, st := range b.store.Tabs() {
		s := add(st.TabID)
		if st.PageURL != "" {
			s.PageURL = st.PageURL
		}
		s.LastUpdated = st.LastUpdated
	}

	out := make([]TabSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

func validateTabID(tabID types.TabID) error {
	if strings.TrimSpace(string(tabID)) == "" {
		return newError(CodeValidation, "tab_id is required", nil)
	}
	return nil
}

func truncateURL(u string) string {
	const max = 160
	if len(u) <= max {
		return u
	}
	return u[:max] + "..."
}
