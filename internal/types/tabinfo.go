package types

import "time"

// TabInfo holds metadata about an attached browser tab.
type TabInfo struct {
	TargetID   string    `json:"target_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	AttachedAt time.Time `json:"attached_at"`
}

// TabInfoProvider looks up attached tabs. It breaks the import cycle between
// the cdp and bridge packages.
type TabInfoProvider interface {
	GetByStringID(tabID string) (*TabInfo, bool)
	List() []TabInfo
}
