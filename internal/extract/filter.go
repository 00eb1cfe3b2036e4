package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultExcludedPatterns keeps the portal page out of the link graph
var DefaultExcludedPatterns = []string{
	`^/wiki/Main_Page`,
}

// LinkFilter decides which hrefs are same-site article links
type LinkFilter struct {
	host     string
	prefix   string
	excluded []*regexp.Regexp
}

// NewLinkFilter creates a filter for article links under prefix on the host
// of baseURL. Patterns are matched against the link path.
func NewLinkFilter(baseURL, prefix string, patterns []string) (*LinkFilter, error) {
	host, err := ExtractDomain(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if host == "" {
		return nil, fmt.Errorf("invalid base URL %q: no host", baseURL)
	}

	excluded := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", p, err)
		}
		excluded = append(excluded, re)
	}

	return &LinkFilter{host: host, prefix: prefix, excluded: excluded}, nil
}

// ExtractDomain extracts the lowercased hostname from a URL string
func ExtractDomain(urlStr string) (string, error) {
	// Handle protocol-relative URLs
	if strings.HasPrefix(urlStr, "//") {
		urlStr = "https:" + urlStr
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	return strings.ToLower(parsed.Hostname()), nil
}

// IsExcluded checks if a path matches any excluded pattern
func (f *LinkFilter) IsExcluded(path string) bool {
	for _, pattern := range f.excluded {
		if pattern.MatchString(path) {
			return true
		}
	}
	return false
}

// Resolve turns href into an absolute article URL relative to page. The
// second return value is false when the link must be dropped.
func (f *LinkFilter) Resolve(page *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)

	// Skip empty and anchor-only links
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	target := page.ResolveReference(ref)

	if target.Scheme != "http" && target.Scheme != "https" {
		return "", false
	}

	// Same site only
	if strings.ToLower(target.Hostname()) != f.host {
		return "", false
	}

	// Article namespace only; special pages carry a colon
	if !strings.HasPrefix(target.Path, f.prefix) {
		return "", false
	}
	article := strings.TrimPrefix(target.Path, f.prefix)
	if article == "" || strings.Contains(article, ":") {
		return "", false
	}

	if f.IsExcluded(target.Path) {
		return "", false
	}

	return target.String(), true
}
