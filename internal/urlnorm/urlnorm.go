// Package urlnorm produces stable deduplication keys for observed media URLs.
package urlnorm

import (
	"net/url"
	"strings"
)

// trackingParams are dropped from every URL regardless of host.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"fbclid":       true,
	"gclid":        true,
	"dclid":        true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"igshid":       true,
	"_ga":          true,
	"ref_src":      true,
	"ref_url":      true,
}

// playerStateParam lists query parameters that carry player state (position,
// playlist index, byte range) for hosts ending in suffix.
type playerStateParam struct {
	suffix string
	params map[string]bool
}

var playerStateParams = []playerStateParam{
	{suffix: "youtube.com", params: set("t", "start", "index", "list", "pp", "feature", "si", "ab_channel")},
	{suffix: "youtu.be", params: set("t", "si", "feature")},
	{suffix: "googlevideo.com", params: set("range", "rn", "rbuf", "cpn", "alr")},
	{suffix: "fbcdn.net", params: set("bytestart", "byteend")},
	{suffix: "facebook.com", params: set("t", "start_time")},
	{suffix: "vimeo.com", params: set("t")},
	{suffix: "twitch.tv", params: set("t")},
	{suffix: "dailymotion.com", params: set("start")},
	{suffix: "tiktok.com", params: set("is_from_webapp", "sender_device", "lang")},
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// Normalize removes tracking and player-state query parameters and the
// fragment. Parameter order is preserved, so Normalize(Normalize(u)) equals
// Normalize(u). Input that does not parse is returned unchanged.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	if u.Opaque != "" {
		u.Fragment = ""
		u.RawFragment = ""
		return u.String()
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = filterQuery(u.RawQuery, hostParams(u.Hostname()))
	u.ForceQuery = false
	return u.String()
}

// Base returns the URL without its query string and fragment. Two
// navigations with the same base are treated as the same page.
func Base(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "/")
}

func hostParams(host string) map[string]bool {
	for _, p := range playerStateParams {
		if host == p.suffix || strings.HasSuffix(host, "."+p.suffix) {
			return p.params
		}
	}
	return nil
}

// filterQuery drops matching pairs while keeping the raw encoding of the
// survivors, so repeated passes are no-ops.
func filterQuery(rawQuery string, extra map[string]bool) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		key = strings.ToLower(key)
		if trackingParams[key] || strings.HasPrefix(key, "utm_") || extra[key] {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}
