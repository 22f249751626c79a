// Package cookies selects the browser cookies worth sending along with a
// media URL and renders them for external tools.
package cookies

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// Domains returns the host of rawURL plus its www and parent-domain
// variants, without leading dots. An unparseable URL yields nil.
func Domains(rawURL string) []string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	add(host)
	bare := strings.TrimPrefix(host, "www.")
	add(bare)
	add("www." + bare)
	if labels := strings.Split(bare, "."); len(labels) > 2 {
		parent := strings.Join(labels[len(labels)-2:], ".")
		add(parent)
		add("www." + parent)
	}
	return out
}

// Valid reports whether c has a name and domain and has not expired at now.
func Valid(c types.Cookie, now time.Time) bool {
	if c.Name == "" || c.Domain == "" {
		return false
	}
	if c.Session || c.ExpirationDate <= 0 {
		return true
	}
	return c.ExpirationDate >= float64(now.Unix())
}

// Select keeps the valid cookies whose domain covers rawURL's host or one of
// its variants. Duplicates by name, domain and path are dropped.
func Select(all []types.Cookie, rawURL string, now time.Time) []types.Cookie {
	domains := Domains(rawURL)
	if len(domains) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	out := []types.Cookie{}
	for _, c := range all {
		if !Valid(c, now) || !covers(c.Domain, domains) {
			continue
		}
		if c.Path == "" {
			c.Path = "/"
		}
		key := c.Name + "\x00" + strings.ToLower(c.Domain) + "\x00" + c.Path
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func covers(cookieDomain string, domains []string) bool {
	d := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	for _, v := range domains {
		if v == d || strings.HasSuffix(v, "."+d) {
			return true
		}
	}
	return false
}

var essentialNames = map[types.Platform][]*regexp.Regexp{
	types.PlatformFacebook:  names(`c_user`, `xs`, `datr`, `sb`, `fr`),
	types.PlatformInstagram: names(`sessionid`, `csrftoken`, `ds_user_id`, `shbid`, `rur`),
	types.PlatformYouTube:   names(`visitor_info1_live`, `ysc`, `pref`),
	types.PlatformTwitter:   names(`auth_token`, `ct0`, `personalization_id`),
	types.PlatformTikTok:    names(`sessionid`, `tt_csrf_token`, `tt_webid`),
}

func names(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Essential trims cookies to the names the platform needs for
// authenticated extraction. When none match, or the platform has no list,
// the input is returned unchanged.
func Essential(all []types.Cookie, platform types.Platform) []types.Cookie {
	patterns, ok := essentialNames[platform]
	if !ok || len(all) == 0 {
		return all
	}
	var out []types.Cookie
	for _, c := range all {
		name := strings.ToLower(c.Name)
		for _, re := range patterns {
			if re.MatchString(name) {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// Netscape renders cookies as a Netscape cookie file, the format yt-dlp and
// curl read. Cookies without a domain are skipped.
func Netscape(all []types.Cookie) string {
	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	b.WriteString("# Generated by mediactl\n\n")

	escaper := strings.NewReplacer("\t", `\t`, "\n", `\n`, "\r", `\r`)
	for _, c := range all {
		domain := strings.TrimSpace(c.Domain)
		if domain == "" {
			continue
		}
		if !strings.HasPrefix(domain, ".") {
			domain = "." + domain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		secure := "FALSE"
		if c.Secure {
			secure = "TRUE"
		}
		var expires int64
		if !c.Session && c.ExpirationDate > 0 {
			expires = int64(c.ExpirationDate)
		}
		fmt.Fprintf(&b, "%s\tTRUE\t%s\t%s\t%d\t%s\t%s\n",
			domain, path, secure, expires, c.Name, escaper.Replace(c.Value))
	}
	return b.String()
}
