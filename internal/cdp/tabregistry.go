package cdp

import (
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// TabRegistry maps CDP target IDs to tab metadata.
type TabRegistry struct {
	tabs map[target.ID]*types.TabInfo
	mu   sync.RWMutex
	now  func() time.Time
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*types.TabInfo), now: time.Now}
}

// Register records or refreshes a tab. AttachedAt is kept from the first
// registration; an empty title leaves the previous one in place.
func (r *TabRegistry) Register(targetID target.ID, url, title string) types.TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.tabs[targetID]
	if !ok {
		info = &types.TabInfo{TargetID: string(targetID), AttachedAt: r.now()}
		r.tabs[targetID] = info
	}
	info.URL = url
	if title != "" {
		info.Title = title
	}
	return *info
}

func (r *TabRegistry) Get(targetID target.ID) (*types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return nil, false
	}
	cp := *info
	return &cp, true
}

func (r *TabRegistry) GetByStringID(tabID string) (*types.TabInfo, bool) {
	return r.Get(target.ID(tabID))
}

// List returns every registered tab, oldest attachment first.
func (r *TabRegistry) List() []types.TabInfo {
	r.mu.RLock()
	out := make([]types.TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		out = append(out, *info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AttachedAt.Equal(out[j].AttachedAt) {
			return out[i].AttachedAt.Before(out[j].AttachedAt)
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}

// Remove forgets a tab and reports whether it was registered.
func (r *TabRegistry) Remove(targetID target.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tabs[targetID]
	delete(r.tabs, targetID)
	return ok
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}
