package crawling

import (
	"net/url"
	"path"
	"strings"

	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/types"
)

// DefaultMaxCandidates caps how many links are offered to the selector.
const DefaultMaxCandidates = 50

// excludedPathKeywords mark pages that never belong in a brochure.
var excludedPathKeywords = []string{"privacy", "terms", "cookie", "legal", "gdpr", "disclaimer"}

// assetExtensions are static files, not pages.
var assetExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true, ".bmp": true, ".zip": true, ".gz": true, ".tgz": true,
	".tar": true, ".rar": true, ".7z": true, ".mp3": true, ".mp4": true, ".mov": true,
	".avi": true, ".css": true, ".js": true, ".xml": true, ".rss": true, ".json": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".dmg": true, ".exe": true,
}

// Candidates returns the homepage links worth offering to link selection:
// same-site pages (ignoring "www."), excluding the homepage itself, legal
// pages and static assets, deduplicated by normalized URL and capped at max.
func Candidates(home *types.PageContent, baseURL string, max int) ([]types.LinkCandidate, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &LinkExtractionError{Message: "failed to parse base URL", Cause: err}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &LinkExtractionError{Message: "invalid base URL: " + baseURL + " (must have scheme and host)"}
	}
	if max <= 0 {
		max = DefaultMaxCandidates
	}
	if home == nil {
		return []types.LinkCandidate{}, nil
	}

	self := map[string]bool{fetch.NormalizeKey(baseURL): true}
	if home.URL != "" {
		self[fetch.NormalizeKey(home.URL)] = true
	}

	seen := make(map[string]bool)
	out := make([]types.LinkCandidate, 0)
	for _, link := range home.Links {
		if len(out) >= max {
			break
		}

		u, err := url.Parse(link.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if !fetch.SameSite(u.Hostname(), base.Hostname()) {
			continue
		}

		key := fetch.NormalizeKey(link.URL)
		if self[key] || seen[key] {
			continue
		}
		if isExcludedPath(u.Path) {
			continue
		}

		seen[key] = true
		out = append(out, link)
	}
	return out, nil
}

func isExcludedPath(p string) bool {
	lower := strings.ToLower(p)
	if assetExtensions[path.Ext(lower)] {
		return true
	}
	for _, kw := range excludedPathKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
