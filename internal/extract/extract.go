// Package extract turns fetched HTML into plain text and same-site article
// links.
package extract

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/microcosm-cc/bluemonday"
)

// Text extraction modes
const (
	// ModeParagraphs joins the text of every <p> element.
	ModeParagraphs = "paragraphs"
	// ModeBody strips all markup from the whole document.
	ModeBody = "body"
)

var repeatedSpaceRegex = regexp.MustCompile(`\s+`)

// Page is the extraction result for one document
type Page struct {
	Text  string
	Links []string
}

// Config holds the extractor settings
type Config struct {
	BaseURL          string
	ArticlePrefix    string
	ExcludedPatterns []string
	TextMode         string
}

// Extractor implements the text and link extraction collaborator
type Extractor struct {
	mode   string
	filter *LinkFilter
	policy *bluemonday.Policy
}

// New creates an Extractor. Empty settings fall back to paragraph mode, the
// /wiki/ prefix and DefaultExcludedPatterns.
func New(cfg Config) (*Extractor, error) {
	if cfg.TextMode == "" {
		cfg.TextMode = ModeParagraphs
	}
	if cfg.TextMode != ModeParagraphs && cfg.TextMode != ModeBody {
		return nil, fmt.Errorf("unknown text mode %q", cfg.TextMode)
	}
	if cfg.ArticlePrefix == "" {
		cfg.ArticlePrefix = "/wiki/"
	}
	if cfg.ExcludedPatterns == nil {
		cfg.ExcludedPatterns = DefaultExcludedPatterns
	}

	filter, err := NewLinkFilter(cfg.BaseURL, cfg.ArticlePrefix, cfg.ExcludedPatterns)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		mode:   cfg.TextMode,
		filter: filter,
		policy: bluemonday.StrictPolicy(),
	}, nil
}

// Extract parses body once and returns its text and links
func (e *Extractor) Extract(body []byte, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	links, err := e.links(doc, pageURL)
	if err != nil {
		return nil, err
	}

	return &Page{Text: e.text(doc, body), Links: links}, nil
}

// ExtractText returns the plain text of body
func (e *Extractor) ExtractText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}
	return e.text(doc, body), nil
}

// ExtractLinks returns the same-site article links of body in first-seen
// order, without duplicates
func (e *Extractor) ExtractLinks(body []byte, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return e.links(doc, pageURL)
}

func (e *Extractor) text(doc *goquery.Document, body []byte) string {
	var text string
	switch e.mode {
	case ModeBody:
		text = html.UnescapeString(string(e.policy.SanitizeBytes(body)))
	default:
		paragraphs := doc.Find("p").Map(func(_ int, s *goquery.Selection) string {
			return s.Text()
		})
		text = strings.Join(paragraphs, " ")
	}
	return strings.TrimSpace(repeatedSpaceRegex.ReplaceAllString(text, " "))
}

func (e *Extractor) links(doc *goquery.Document, pageURL string) ([]string, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, ok := e.filter.Resolve(page, href)
		if !ok || !seen.Add(link) {
			return
		}
		links = append(links, link)
	})
	return links, nil
}
