// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/theme-engine/internal/httputil"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// Base URLs for the PMC tier. Declared as vars so tests can substitute
// httptest servers.
var (
	pmcIDConvBase = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"
	pmcEFetchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// PMCTier fetches structured article XML from PubMed Central. Applicable
// only when the document carries a PMC-resolvable identifier (R2.3).
type PMCTier struct {
	Client    *http.Client
	UserAgent string
	APIKey    string
}

func (t *PMCTier) Source() types.FullTextSource { return types.TierPMC }

func (t *PMCTier) Applicable(doc *types.Document) bool {
	ids := doc.ExternalIDs
	return ids.PMCID != "" || ids.PMID != "" || ids.DOI != ""
}

// Fetch resolves the document's identifier to a PMCID, fetches the article
// XML, and returns the body text with references, figures, tables, and
// footnotes stripped (R2.4).
func (t *PMCTier) Fetch(ctx context.Context, doc *types.Document) (string, error) {
	pmcid := doc.ExternalIDs.PMCID
	if pmcid == "" {
		var err error
		pmcid, err = t.resolvePMCID(ctx, doc.ExternalIDs)
		if err != nil {
			return "", err
		}
	}

	raw, err := t.fetchArticleXML(ctx, pmcid)
	if err != nil {
		return "", err
	}

	text, err := extractBodyText(raw)
	if err != nil {
		return "", fmt.Errorf("parsing article XML for %s: %w", pmcid, err)
	}
	return text, nil
}

// idconv response structures.
type idConvResponse struct {
	Records []idConvRecord `json:"records"`
}

type idConvRecord struct {
	PMCID  string `json:"pmcid"`
	Status string `json:"status"`
}

// resolvePMCID converts a DOI or PMID to a PMCID via the idconv service.
func (t *PMCTier) resolvePMCID(ctx context.Context, ids types.ExternalIDs) (string, error) {
	id := ids.PMID
	if id == "" {
		id = ids.DOI
	}

	q := url.Values{}
	q.Set("ids", id)
	q.Set("format", "json")
	if t.APIKey != "" {
		q.Set("api_key", t.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pmcIDConvBase+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating idconv request: %w", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, t.client(), req, 0)
	if err != nil {
		return "", fmt.Errorf("idconv request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("idconv returned HTTP %d", resp.StatusCode)
	}

	var conv idConvResponse
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return "", fmt.Errorf("parsing idconv response: %w", err)
	}

	for _, rec := range conv.Records {
		if rec.PMCID != "" {
			return rec.PMCID, nil
		}
	}
	return "", fmt.Errorf("no PMC record for %q", id)
}

func (t *PMCTier) fetchArticleXML(ctx context.Context, pmcid string) ([]byte, error) {
	q := url.Values{}
	q.Set("db", "pmc")
	q.Set("id", strings.TrimPrefix(pmcid, "PMC"))
	q.Set("rettype", "xml")
	if t.APIKey != "" {
		q.Set("api_key", t.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pmcEFetchBase+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating efetch request: %w", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, t.client(), req, 0)
	if err != nil {
		return nil, fmt.Errorf("efetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (t *PMCTier) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// skippedElements are non-body subtrees removed from the article text:
// reference lists, figures, tables, footnotes, and the front/back matter.
var skippedElements = map[string]bool{
	"front":      true,
	"back":       true,
	"ref-list":   true,
	"fig":        true,
	"table-wrap": true,
	"fn-group":   true,
	"xref":       true,
}

// extractBodyText walks JATS article XML and collects paragraph and
// heading text inside <body>, skipping non-body subtrees.
func extractBodyText(raw []byte) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(raw)))

	var sb strings.Builder
	inBody := false
	skipDepth := 0
	var textDepth int

	flushBlock := func() {
		if textDepth == 0 && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n\n") {
			sb.WriteString("\n\n")
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			name := el.Name.Local
			if skipDepth > 0 {
				skipDepth++
				continue
			}
			if skippedElements[name] {
				skipDepth = 1
				continue
			}
			if name == "body" {
				inBody = true
				continue
			}
			if inBody && (name == "p" || name == "title") {
				textDepth++
			}
		case xml.EndElement:
			name := el.Name.Local
			if skipDepth > 0 {
				skipDepth--
				continue
			}
			if name == "body" {
				inBody = false
				continue
			}
			if inBody && (name == "p" || name == "title") {
				textDepth--
				flushBlock()
			}
		case xml.CharData:
			if skipDepth > 0 || !inBody || textDepth == 0 {
				continue
			}
			sb.Write(el)
		}
	}

	text := normalizeWhitespace(sb.String())
	if text == "" {
		return "", fmt.Errorf("article has no body text")
	}
	return text, nil
}

// normalizeWhitespace collapses runs of spaces within lines and runs of
// blank lines to a single blank line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
