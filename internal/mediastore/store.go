// Package mediastore keeps the accepted media candidates of every tab.
//
// Entries are keyed by normalized URL, bounded by the page's profile and
// cleared on genuine navigation or tab close. The in-memory map is
// authoritative; an optional snapshot store is written through on every
// mutation and consulted only when a tab has no in-memory state.
package mediastore

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/rules"
	"github.com/dgnsrekt/media_sniffer/internal/snapshot"
	"github.com/dgnsrekt/media_sniffer/internal/types"
	"github.com/dgnsrekt/media_sniffer/internal/urlnorm"
)

// Snapshots is the durable write-through cache behind the store.
type Snapshots interface {
	Save(st types.TabMediaState) error
	Get(id types.TabID) (types.TabMediaState, bool, error)
	Delete(id types.TabID) error
}

// ChangeFunc is called after every mutation with the tab's new count.
type ChangeFunc func(tabID types.TabID, count int)

type entry struct {
	key  string
	cand types.MediaCandidate
}

type tabState struct {
	pageURL     string
	base        string
	entries     []entry
	lastUpdated time.Time
}

// Store is the per-tab media store. It is safe for concurrent use.
type Store struct {
	rules *rules.RuleSet
	snaps Snapshots

	mu       sync.Mutex
	tabs     map[types.TabID]*tabState
	onChange ChangeFunc

	now func() time.Time
}

// New creates an empty store. snaps may be nil.
func New(rs *rules.RuleSet, snaps Snapshots) *Store {
	if rs == nil {
		rs = rules.Default()
	}
	return &Store{
		rules: rs,
		snaps: snaps,
		tabs:  make(map[types.TabID]*tabState),
		now:   time.Now,
	}
}

// OnChange registers fn to be called after each mutation. It runs with the
// store lock held and must not call back into the store.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Record stores cand for tabID, seen while pageURL was loaded. A candidate
// whose normalized URL is already present replaces that entry in place.
func (s *Store) Record(tabID types.TabID, cand types.MediaCandidate, pageURL string) {
	if cand.URL == "" {
		return
	}
	key := urlnorm.Normalize(cand.URL)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.lookup(tabID)
	if st == nil {
		st = &tabState{}
		s.tabs[tabID] = st
	}
	if st.pageURL == "" && pageURL != "" {
		st.pageURL = pageURL
		st.base = urlnorm.Base(pageURL)
	}
	if pageURL == "" {
		pageURL = st.pageURL
	}

	prof := s.rules.ProfileFor(pageURL)
	st.entries = insert(st.entries, entry{key: key, cand: cand}, prof)
	st.lastUpdated = s.now()

	s.persist(tabID, st)
	s.notify(tabID, len(st.entries))
}

func insert(entries []entry, e entry, prof rules.Profile) []entry {
	idx := -1
	for i := range entries {
		if entries[i].key == e.key {
			entries[i] = e
			idx = i
			break
		}
	}
	if idx < 0 {
		switch prof.Insert {
		case rules.InsertReplace:
			return []entry{e}
		case rules.InsertPrepend:
			entries = append([]entry{e}, entries...)
			idx = 0
		default:
			entries = append(entries, e)
			idx = len(entries) - 1
		}
	}
	return trim(entries, idx, prof)
}

// trim cuts entries down to the profile cap. The entry at keep (if >= 0)
// always survives; the rest are taken from the head for prepend and from
// the tail otherwise. Replace keeps only one entry.
func trim(entries []entry, keep int, prof rules.Profile) []entry {
	limit := prof.Cap
	if limit < 1 {
		limit = 1
	}
	if len(entries) <= limit {
		return entries
	}
	if prof.Insert == rules.InsertReplace || limit == 1 {
		if keep < 0 {
			keep = len(entries) - 1
		}
		return []entry{entries[keep]}
	}

	kept := make([]bool, len(entries))
	n := 0
	if keep >= 0 {
		kept[keep] = true
		n++
	}
	if prof.Insert == rules.InsertPrepend {
		for i := 0; i < len(entries) && n < limit; i++ {
			if !kept[i] {
				kept[i] = true
				n++
			}
		}
	} else {
		for i := len(entries) - 1; i >= 0 && n < limit; i-- {
			if !kept[i] {
				kept[i] = true
				n++
			}
		}
	}

	out := make([]entry, 0, limit)
	for i, e := range entries {
		if kept[i] {
			out = append(out, e)
		}
	}
	return out
}

// Query returns the tab's candidates in ranked order and its page URL. When
// the tab has no in-memory state the snapshot is consulted.
func (s *Store) Query(tabID types.TabID) ([]types.MediaCandidate, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.lookup(tabID)
	if st == nil {
		return nil, ""
	}
	return Rank(candidates(st.entries)), st.pageURL
}

// Invalidate drops all state for tabID, including its snapshot. Invalidating
// an unknown tab is a no-op apart from the snapshot delete.
func (s *Store) Invalidate(tabID types.TabID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidate(tabID)
}

func (s *Store) invalidate(tabID types.TabID) {
	_, had := s.tabs[tabID]
	delete(s.tabs, tabID)
	if s.snaps != nil {
		if err := s.snaps.Delete(tabID); err != nil {
			slog.Warn("snapshot delete failed", "tab_id", tabID, "error", err)
		}
	}
	if had {
		s.notify(tabID, 0)
	}
}

// Navigate records a top-level navigation. Media is cleared only when the
// URL's base (no query, no fragment) differs from the current page's base.
// It reports whether the tab's media was cleared.
func (s *Store) Navigate(tabID types.TabID, pageURL string) bool {
	base := urlnorm.Base(pageURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.lookup(tabID)
	cleared := false
	if st != nil && st.base != "" && st.base != base {
		cleared = len(st.entries) > 0
		s.invalidate(tabID)
		st = nil
	}
	if st == nil {
		st = &tabState{}
		s.tabs[tabID] = st
	}
	st.pageURL = pageURL
	st.base = base
	st.lastUpdated = s.now()

	// A same-base navigation can still switch profile.
	if n := len(st.entries); n > 0 {
		st.entries = trim(st.entries, -1, s.rules.ProfileFor(pageURL))
		s.persist(tabID, st)
		if len(st.entries) != n {
			s.notify(tabID, len(st.entries))
		}
	}
	return cleared
}

// State returns a copy of one tab's state.
func (s *Store) State(tabID types.TabID) (types.TabMediaState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.lookup(tabID)
	if st == nil {
		return types.TabMediaState{}, false
	}
	return s.export(tabID, st), true
}

// Tabs returns a copy of every in-memory tab state, ordered by tab ID.
func (s *Store) Tabs() []types.TabMediaState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.TabMediaState, 0, len(s.tabs))
	for id, st := range s.tabs {
		out = append(out, s.export(id, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// Sweep evicts tabs not updated within maxAge and returns how many were
// evicted.
func (s *Store) Sweep(maxAge time.Duration) int {
	threshold := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, st := range s.tabs {
		if st.lastUpdated.Before(threshold) {
			s.invalidate(id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(maxAge); n > 0 {
				slog.Debug("evicted idle tabs", "count", n, "max_age", maxAge)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Rank orders candidates for display: stable URLs before CDN-ephemeral ones,
// then video, audio, stream, unknown. Ties keep their input order. The input
// slice is not modified.
func Rank(cands []types.MediaCandidate) []types.MediaCandidate {
	out := make([]types.MediaCandidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsTemporary != out[j].IsTemporary {
			return !out[i].IsTemporary
		}
		return out[i].Type.Rank() < out[j].Type.Rank()
	})
	return out
}

// lookup returns the in-memory state for tabID, loading it from the
// snapshot when absent. Callers hold s.mu.
func (s *Store) lookup(tabID types.TabID) *tabState {
	if st, ok := s.tabs[tabID]; ok {
		return st
	}
	if s.snaps == nil {
		return nil
	}
	snap, ok, err := s.snaps.Get(tabID)
	if errors.Is(err, snapshot.ErrInvalidID) {
		return nil
	}
	if err != nil {
		slog.Warn("snapshot read failed", "tab_id", tabID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	st := &tabState{
		pageURL:     snap.PageURL,
		base:        urlnorm.Base(snap.PageURL),
		lastUpdated: snap.LastUpdated,
	}
	for _, c := range snap.Media {
		st.entries = append(st.entries, entry{key: urlnorm.Normalize(c.URL), cand: c})
	}
	s.tabs[tabID] = st
	return st
}

func (s *Store) persist(tabID types.TabID, st *tabState) {
	if s.snaps == nil {
		return
	}
	if err := s.snaps.Save(s.export(tabID, st)); err != nil {
		slog.Warn("snapshot save failed", "tab_id", tabID, "error", err)
	}
}

func (s *Store) notify(tabID types.TabID, count int) {
	if s.onChange != nil {
		s.onChange(tabID, count)
	}
}

// export copies st in stored (insertion) order.
func (s *Store) export(tabID types.TabID, st *tabState) types.TabMediaState {
	return types.TabMediaState{
		TabID:       tabID,
		PageURL:     st.pageURL,
		Media:       candidates(st.entries),
		LastUpdated: st.lastUpdated,
	}
}

func candidates(entries []entry) []types.MediaCandidate {
	out := make([]types.MediaCandidate, len(entries))
	for i, e := range entries {
		out[i] = e.cand
	}
	return out
}
