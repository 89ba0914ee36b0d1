package fetch

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the canonical form used for cache keys and link
// deduplication: lower-cased scheme and host, default port dropped, no
// fragment, no query and no trailing slash on the path.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// NormalizeKey is NormalizeURL that falls back to the trimmed input on parse errors.
func NormalizeKey(raw string) string {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return normalized
}

// SameSite reports whether two hosts are the same site, ignoring a leading "www.".
func SameSite(a, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") == strings.TrimPrefix(strings.ToLower(b), "www.")
}
