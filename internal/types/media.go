package types

import "time"

// TabID identifies a browser tab. It is the CDP target ID of the page.
type TabID string

// MediaType is the coarse kind of a detected resource.
type MediaType string

const (
	MediaVideo   MediaType = "video"
	MediaAudio   MediaType = "audio"
	MediaStream  MediaType = "stream"
	MediaUnknown MediaType = "unknown"
)

// Rank orders media types for display: lower is better.
func (t MediaType) Rank() int {
	switch t {
	case MediaVideo:
		return 0
	case MediaAudio:
		return 1
	case MediaStream:
		return 2
	default:
		return 3
	}
}

// Platform names a recognized media platform. The zero value means none.
type Platform string

const (
	PlatformNone        Platform = ""
	PlatformYouTube     Platform = "youtube"
	PlatformFacebook    Platform = "facebook"
	PlatformInstagram   Platform = "instagram"
	PlatformTwitter     Platform = "twitter"
	PlatformTikTok      Platform = "tiktok"
	PlatformVimeo       Platform = "vimeo"
	PlatformDailymotion Platform = "dailymotion"
	PlatformTwitch      Platform = "twitch"
)

// MediaCandidate is one network-observed resource believed to be playable media.
type MediaCandidate struct {
	URL         string    `json:"url"`
	Type        MediaType `json:"type"`
	IsTemporary bool      `json:"isTemporary"`
	Platform    Platform  `json:"platform,omitempty"`
	Size        int64     `json:"size,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// TabMediaState is the per-tab set of accepted candidates.
type TabMediaState struct {
	TabID       TabID            `json:"tabId"`
	PageURL     string           `json:"pageUrl"`
	Media       []MediaCandidate `json:"media"`
	LastUpdated time.Time        `json:"lastUpdated"`
}
