// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/theme-engine/internal/httputil"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// unpaywallAPIBase is the open-access lookup endpoint. Package-level var
// for test substitution.
var unpaywallAPIBase = "https://api.unpaywall.org/v2/"

// PDFExtractor turns PDF bytes into plain text. An external capability:
// the production implementation posts to a TEI extraction service.
type PDFExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// UnpaywallTier resolves a DOI to an open-access PDF, downloads it, and
// extracts its text. Applicable only when a DOI is present (R2.6).
type UnpaywallTier struct {
	Client    *http.Client
	UserAgent string
	Email     string
	Extractor PDFExtractor
}

func (t *UnpaywallTier) Source() types.FullTextSource { return types.TierUnpaywall }

func (t *UnpaywallTier) Applicable(doc *types.Document) bool {
	return doc.ExternalIDs.DOI != "" && t.Extractor != nil
}

func (t *UnpaywallTier) Fetch(ctx context.Context, doc *types.Document) (string, error) {
	pdfURL, err := t.resolvePDFURL(ctx, doc.ExternalIDs.DOI)
	if err != nil {
		return "", err
	}

	pdf, err := t.download(ctx, pdfURL)
	if err != nil {
		return "", err
	}

	text, err := t.Extractor.ExtractText(ctx, pdf)
	if err != nil {
		return "", fmt.Errorf("extracting PDF text: %w", err)
	}
	return stripReferenceTail(text), nil
}

// unpaywall response structures.
type unpaywallResponse struct {
	BestOALocation *oaLocation `json:"best_oa_location"`
}

type oaLocation struct {
	URLForPDF string `json:"url_for_pdf"`
}

// resolvePDFURL looks up the DOI's best open-access location.
func (t *UnpaywallTier) resolvePDFURL(ctx context.Context, doi string) (string, error) {
	q := url.Values{}
	q.Set("email", t.Email)
	lookupURL := unpaywallAPIBase + url.PathEscape(doi) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating lookup request: %w", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, t.client(), req, 0)
	if err != nil {
		return "", fmt.Errorf("unpaywall lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unpaywall returned HTTP %d", resp.StatusCode)
	}

	var ur unpaywallResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("parsing unpaywall response: %w", err)
	}
	if ur.BestOALocation == nil || ur.BestOALocation.URLForPDF == "" {
		return "", fmt.Errorf("no open-access PDF for DOI %s", doi)
	}
	return ur.BestOALocation.URLForPDF, nil
}

func (t *UnpaywallTier) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := t.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading PDF: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PDF download returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (t *UnpaywallTier) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// referenceHeadings mark where a paper's reference list begins.
var referenceHeadings = []string{"references", "bibliography", "works cited", "literature cited"}

// stripReferenceTail cuts the reference list off the end of extracted
// text. Only a heading in the last third of the text counts: a "References"
// mention mid-paper is prose, not the list (R2.7).
func stripReferenceTail(text string) string {
	lower := strings.ToLower(text)
	cutAfter := len(text) * 2 / 3
	for _, heading := range referenceHeadings {
		idx := strings.LastIndex(lower, "\n"+heading)
		if idx >= cutAfter {
			return strings.TrimSpace(text[:idx])
		}
	}
	return text
}

// TEIService extracts PDF text through an HTTP TEI conversion service
// (a GROBID-style sidecar).
type TEIService struct {
	BaseURL string
	Client  *http.Client
}

// teiProcessPath is the sidecar's full-text processing endpoint.
const teiProcessPath = "/api/processFulltextDocument"

// teiResponse holds the TEI body sections the service returns.
type teiResponse struct {
	Sections []teiSection `xml:"text>body>div"`
}

type teiSection struct {
	Head string   `xml:"head"`
	P    []string `xml:"p"`
}

func (s *TEIService) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("input", "document.pdf")
	if err != nil {
		return "", fmt.Errorf("building multipart form: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return "", fmt.Errorf("writing PDF to form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+teiProcessPath, &body)
	if err != nil {
		return "", fmt.Errorf("creating TEI request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling TEI service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("TEI service returned HTTP %d", resp.StatusCode)
	}

	var tei teiResponse
	if err := xml.NewDecoder(resp.Body).Decode(&tei); err != nil {
		return "", fmt.Errorf("parsing TEI response: %w", err)
	}

	var sb strings.Builder
	for _, sec := range tei.Sections {
		if sec.Head != "" {
			sb.WriteString(sec.Head)
			sb.WriteString("\n\n")
		}
		for _, p := range sec.P {
			sb.WriteString(p)
			sb.WriteString("\n\n")
		}
	}
	text := normalizeWhitespace(sb.String())
	if text == "" {
		return "", fmt.Errorf("TEI service returned no body text")
	}
	return text, nil
}
