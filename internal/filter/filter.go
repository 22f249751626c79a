// Package filter decides whether an observed network response is playable
// media worth offering to the user.
package filter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dgnsrekt/media_sniffer/internal/rules"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// Filter applies a rule set to individual observations. It holds no mutable
// state and is safe for concurrent use.
type Filter struct {
	rules *rules.RuleSet
}

// New returns a filter over rs. A nil rs selects the built-in rule set.
func New(rs *rules.RuleSet) *Filter {
	if rs == nil {
		rs = rules.Default()
	}
	return &Filter{rules: rs}
}

// Rules returns the underlying rule set.
func (f *Filter) Rules() *rules.RuleSet {
	return f.rules
}

// Accept reports whether candidateURL, seen with meta while pageURL was
// loaded, is playable media. Unparseable URLs are rejected.
func (f *Filter) Accept(candidateURL string, meta types.ResponseMetadata, pageURL string) bool {
	if !wellFormed(candidateURL) {
		return false
	}
	if f.rules.ShouldIgnore(candidateURL) {
		return false
	}

	if platform, prof, strict := f.rules.StrictPlatform(pageURL); strict {
		if !f.rules.MatchesPlatformStrictPattern(candidateURL, platform) {
			return false
		}
		if !f.rules.PassesStrictHeuristics(candidateURL, prof) {
			return false
		}
	}

	if f.rules.HasMediaExtension(candidateURL) {
		return true
	}
	if f.rules.HasMediaContentType(meta.Headers) {
		return true
	}
	return false
}

// Classify runs Accept and, on success, builds the candidate record.
func (f *Filter) Classify(candidateURL string, meta types.ResponseMetadata, pageURL string) (types.MediaCandidate, bool) {
	if !f.Accept(candidateURL, meta, pageURL) {
		return types.MediaCandidate{}, false
	}

	contentType := strings.TrimSpace(meta.Header("content-type"))
	platform := f.rules.DetectPlatform(candidateURL)
	if platform == types.PlatformNone {
		platform = f.rules.DetectPlatform(pageURL)
	}

	return types.MediaCandidate{
		URL:         candidateURL,
		Type:        f.mediaType(candidateURL, contentType),
		IsTemporary: f.rules.IsTemporary(candidateURL),
		Platform:    platform,
		Size:        contentLength(meta.Header("content-length")),
		ContentType: contentType,
	}, true
}

// mediaType prefers the response content type over the path extension.
func (f *Filter) mediaType(candidateURL, contentType string) types.MediaType {
	if t, ok := f.rules.ContentTypeType(contentType); ok {
		return t
	}
	if t, ok := f.rules.ExtensionType(candidateURL); ok {
		return t
	}
	return types.MediaUnknown
}

func wellFormed(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	return u.Host != ""
}

func contentLength(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
