// Package rules holds the classification rule table used to tell playable
// media requests apart from page decoration.
//
// Every rule is a {pattern, category} record evaluated by one matcher. The
// table is built once at startup and is read-only afterwards, so a *RuleSet
// is safe for concurrent use.
package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// Category partitions the rule table.
type Category string

const (
	// CategoryExtension rules match the lower-cased URL path.
	CategoryExtension Category = "extension"
	// CategoryContentType rules match the lower-cased content-type value.
	CategoryContentType Category = "content_type"
	// CategoryStreamingPage rules match a platform's canonical watch page.
	CategoryStreamingPage Category = "streaming_page"
	// CategoryIgnore rules reject decoration, trackers and static assets.
	CategoryIgnore Category = "ignore"
	// CategoryStrict rules allow-list real video on noisy platform CDNs.
	CategoryStrict Category = "strict"
	// CategoryTemporary rules flag CDN-ephemeral URLs.
	CategoryTemporary Category = "temporary"
	// CategoryPlatformHost rules map a hostname to a platform.
	CategoryPlatformHost Category = "platform_host"
	// CategoryQuality rules detect quality markers in strict mode.
	CategoryQuality Category = "quality"
	// CategoryDimension rules detect sized thumbnail variants in strict mode.
	CategoryDimension Category = "dimension"
	// CategoryManifest rules detect adaptive-stream manifests.
	CategoryManifest Category = "manifest"
)

var knownCategories = map[Category]bool{
	CategoryExtension:     true,
	CategoryContentType:   true,
	CategoryStreamingPage: true,
	CategoryIgnore:        true,
	CategoryStrict:        true,
	CategoryTemporary:     true,
	CategoryPlatformHost:  true,
	CategoryQuality:       true,
	CategoryDimension:     true,
	CategoryManifest:      true,
}

// Rule is one pattern record. Platform scopes a rule to one platform; an
// empty Platform applies everywhere. Type is the media type implied by an
// extension or content-type match.
type Rule struct {
	Pattern  string          `yaml:"pattern"`
	Category Category        `yaml:"category"`
	Platform types.Platform  `yaml:"platform,omitempty"`
	Type     types.MediaType `yaml:"type,omitempty"`

	re *regexp.Regexp
}

// RuleSet is a compiled, immutable rule table plus its strictness profiles.
type RuleSet struct {
	byCategory map[Category][]*Rule
	profiles   Profiles
}

// New compiles rules and validates profiles.
func New(rules []Rule, profiles Profiles) (*RuleSet, error) {
	rs := &RuleSet{byCategory: make(map[Category][]*Rule)}
	for i := range rules {
		r := rules[i]
		if !knownCategories[r.Category] {
			return nil, fmt.Errorf("rule %d (%q): unknown category %q", i, r.Pattern, r.Category)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err)
		}
		r.re = re
		rs.byCategory[r.Category] = append(rs.byCategory[r.Category], &r)
	}
	if err := profiles.validate(); err != nil {
		return nil, err
	}
	rs.profiles = profiles
	return rs, nil
}

// Default returns the built-in rule set.
func Default() *RuleSet {
	rs, err := New(DefaultRules(), DefaultProfiles())
	if err != nil {
		panic("rules: built-in table does not compile: " + err.Error())
	}
	return rs
}

// Count returns the number of rules in a category.
func (s *RuleSet) Count(cat Category) int {
	return len(s.byCategory[cat])
}

// match returns the first rule in cat matching subject. Rules scoped to a
// platform only apply when that platform is requested, unless platform is
// empty, in which case every rule in the category is considered.
func (s *RuleSet) match(cat Category, platform types.Platform, subject string) (*Rule, bool) {
	for _, r := range s.byCategory[cat] {
		if platform != types.PlatformNone && r.Platform != types.PlatformNone && r.Platform != platform {
			continue
		}
		if r.re.MatchString(subject) {
			return r, true
		}
	}
	return nil, false
}

// matchExact is match restricted to rules scoped to exactly platform.
func (s *RuleSet) matchExact(cat Category, platform types.Platform, subject string) bool {
	for _, r := range s.byCategory[cat] {
		if r.Platform != platform {
			continue
		}
		if r.re.MatchString(subject) {
			return true
		}
	}
	return false
}

// HasMediaExtension reports whether the URL path ends with or contains a
// media file extension. Query and fragment are ignored.
func (s *RuleSet) HasMediaExtension(rawURL string) bool {
	_, ok := s.ExtensionType(rawURL)
	return ok
}

// ExtensionType returns the media type implied by the URL's extension.
func (s *RuleSet) ExtensionType(rawURL string) (types.MediaType, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.MediaUnknown, false
	}
	r, ok := s.match(CategoryExtension, types.PlatformNone, strings.ToLower(u.Path))
	if !ok {
		return types.MediaUnknown, false
	}
	return typeOf(r), true
}

// HasMediaContentType reports whether headers carry a media content type.
func (s *RuleSet) HasMediaContentType(headers map[string]string) bool {
	_, ok := s.ContentTypeType(types.ResponseMetadata{Headers: headers}.Header("content-type"))
	return ok
}

// ContentTypeType returns the media type implied by a content-type value.
func (s *RuleSet) ContentTypeType(contentType string) (types.MediaType, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return types.MediaUnknown, false
	}
	r, ok := s.match(CategoryContentType, types.PlatformNone, ct)
	if !ok {
		return types.MediaUnknown, false
	}
	return typeOf(r), true
}

// MatchesStreamingPage reports whether the URL is a canonical watch page of
// a recognized platform.
func (s *RuleSet) MatchesStreamingPage(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	_, ok := s.match(CategoryStreamingPage, types.PlatformNone, strings.ToLower(rawURL))
	return ok
}

// ShouldIgnore reports whether the URL is a thumbnail, tracker, analytics
// beacon, static asset or other known decoration.
func (s *RuleSet) ShouldIgnore(rawURL string) bool {
	_, ok := s.match(CategoryIgnore, types.PlatformNone, strings.ToLower(rawURL))
	return ok
}

// MatchesPlatformStrictPattern reports whether the URL matches the
// allow-list of a platform whose CDN mixes thumbnails and video.
func (s *RuleSet) MatchesPlatformStrictPattern(rawURL string, platform types.Platform) bool {
	if platform == types.PlatformNone {
		return false
	}
	return s.matchExact(CategoryStrict, platform, strings.ToLower(rawURL))
}

// PassesStrictHeuristics applies the secondary strict-mode checks: minimum
// URL length, no NNNxNNN dimension token, and a quality token or manifest
// suffix.
func (s *RuleSet) PassesStrictHeuristics(rawURL string, profile Profile) bool {
	if len(rawURL) < profile.MinURLLength {
		return false
	}
	lower := strings.ToLower(rawURL)
	if _, ok := s.match(CategoryDimension, types.PlatformNone, lower); ok {
		return false
	}
	if _, ok := s.match(CategoryQuality, types.PlatformNone, lower); ok {
		return true
	}
	return s.IsManifest(rawURL)
}

// IsManifest reports whether the URL names an HLS or DASH manifest.
func (s *RuleSet) IsManifest(rawURL string) bool {
	_, ok := s.match(CategoryManifest, types.PlatformNone, strings.ToLower(rawURL))
	return ok
}

// IsTemporary reports whether the URL is CDN-ephemeral.
func (s *RuleSet) IsTemporary(rawURL string) bool {
	_, ok := s.match(CategoryTemporary, types.PlatformNone, strings.ToLower(rawURL))
	return ok
}

// DetectPlatform maps a URL to a platform by hostname.
func (s *RuleSet) DetectPlatform(rawURL string) types.Platform {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.PlatformNone
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return types.PlatformNone
	}
	r, ok := s.match(CategoryPlatformHost, types.PlatformNone, host)
	if !ok {
		return types.PlatformNone
	}
	return r.Platform
}

// ProfileFor selects the store profile for a page: a platform override
// wins, then the streaming profile for watch pages, then the default.
func (s *RuleSet) ProfileFor(pageURL string) Profile {
	if p, ok := s.profiles.Platforms[s.DetectPlatform(pageURL)]; ok {
		return p
	}
	if s.MatchesStreamingPage(pageURL) {
		return s.profiles.Streaming
	}
	return s.profiles.Default
}

// StrictPlatform returns the page's platform and profile when that
// platform requires strict mode.
func (s *RuleSet) StrictPlatform(pageURL string) (types.Platform, Profile, bool) {
	platform := s.DetectPlatform(pageURL)
	p, ok := s.profiles.Platforms[platform]
	if !ok || !p.Strict {
		return types.PlatformNone, Profile{}, false
	}
	return platform, p, true
}

// Profiles returns a copy of the configured profiles.
func (s *RuleSet) Profiles() Profiles {
	out := s.profiles
	out.Platforms = make(map[types.Platform]Profile, len(s.profiles.Platforms))
	for k, v := range s.profiles.Platforms {
		out.Platforms[k] = v
	}
	return out
}

func typeOf(r *Rule) types.MediaType {
	if r.Type == "" {
		return types.MediaUnknown
	}
	return r.Type
}
