// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/pdiddy/theme-engine/internal/httputil"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// publisherSelectors maps publisher hostnames to the CSS selector of their
// article-body region. Unknown hosts fall back to readability extraction.
var publisherSelectors = map[string]string{
	"www.nature.com":        "div.c-article-body",
	"link.springer.com":     "div.main-content",
	"www.sciencedirect.com": "div#body",
	"journals.plos.org":     "div#artText",
	"www.frontiersin.org":   "div.JournalFullText",
	"www.mdpi.com":          "div.html-body",
	"bmcpublichealth.biomedcentral.com": "div.c-article-body",
	"onlinelibrary.wiley.com":           "section.article-section__full",
}

// strippedSelectors are removed from the page before any content-region
// extraction: navigation, chrome, and decoration that pollutes body text.
const strippedSelectors = "script, style, noscript, nav, header, footer, aside, figure, form, iframe, [role='navigation'], [class*='cookie'], [class*='banner']"

// minReadableLength guards against readability extracting only a title or
// byline while the real content is elsewhere on the page.
const minReadableLength = 200

// ScrapeTier fetches a document's landing page and extracts the article
// body. Applicable only when the document has a URL (R2.5).
type ScrapeTier struct {
	Client    *http.Client
	UserAgent string

	policy    *bluemonday.Policy
	hostRules *lru.Cache[string, string]
}

// NewScrapeTier builds the scrape tier. The sanitizer policy and host-rule
// cache are shared across all fetches.
func NewScrapeTier(client *http.Client, userAgent string) (*ScrapeTier, error) {
	// Hostname lookups repeat heavily within a run when many documents
	// share a publisher.
	rules, err := lru.New[string, string](256)
	if err != nil {
		return nil, fmt.Errorf("building host-rule cache: %w", err)
	}
	return &ScrapeTier{
		Client:    client,
		UserAgent: userAgent,
		policy:    bluemonday.StrictPolicy(),
		hostRules: rules,
	}, nil
}

func (t *ScrapeTier) Source() types.FullTextSource { return types.TierHTMLScrape }

func (t *ScrapeTier) Applicable(doc *types.Document) bool {
	return doc.URL != ""
}

func (t *ScrapeTier) Fetch(ctx context.Context, doc *types.Document) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)
	req.Header.Set("Accept", "text/html")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, doc.URL)
	}

	page, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}

	page.Find(strippedSelectors).Remove()

	if selector := t.selectorFor(doc.URL); selector != "" {
		region := page.Find(selector)
		if region.Length() > 0 {
			if html, err := region.Html(); err == nil {
				text := t.flatten(html)
				if len(text) >= minReadableLength {
					return text, nil
				}
			}
		}
		// Known publisher but the selector missed: the page layout may
		// have changed, so fall through to the generic path.
	}

	cleaned, err := page.Html()
	if err != nil {
		return "", fmt.Errorf("serializing cleaned page: %w", err)
	}
	return t.readable(cleaned)
}

// selectorFor maps a document URL to its publisher's content selector,
// caching hostname lookups.
func (t *ScrapeTier) selectorFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())

	if sel, ok := t.hostRules.Get(host); ok {
		return sel
	}
	sel := publisherSelectors[host]
	t.hostRules.Add(host, sel)
	return sel
}

// readable applies the generic main-content heuristic for unknown hosts.
func (t *ScrapeTier) readable(html string) (string, error) {
	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err != nil {
		return "", fmt.Errorf("readability extraction: %w", err)
	}

	var buf strings.Builder
	if err := article.RenderText(&buf); err != nil {
		return "", fmt.Errorf("rendering article text: %w", err)
	}
	text := normalizeWhitespace(buf.String())
	if len(text) < minReadableLength {
		return "", fmt.Errorf("extracted text too short (%d chars)", len(text))
	}
	return text, nil
}

// flatten strips all markup from an HTML fragment, leaving plain text.
func (t *ScrapeTier) flatten(html string) string {
	// Block boundaries become newlines before tags are stripped, so
	// paragraphs do not run together.
	for _, tag := range []string{"</p>", "</div>", "</h1>", "</h2>", "</h3>", "</li>", "<br>", "<br/>"} {
		html = strings.ReplaceAll(html, tag, tag+"\n")
	}
	return normalizeWhitespace(t.policy.Sanitize(html))
}
