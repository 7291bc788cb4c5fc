// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extraction runs the external code/theme extraction capability
// across many sources with bounded concurrency and settle-all semantics.
// Implements: prd003-extraction (R1-R5); docs/ARCHITECTURE § Extraction.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"golang.org/x/time/rate"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// RawExtraction is the extraction capability's output for one source:
// atomic code statements plus the themes the extractor asserted over them.
type RawExtraction struct {
	Codes  []string         `json:"codes" yaml:"codes"`
	Themes []types.RawTheme `json:"themes" yaml:"themes"`
}

// Backend abstracts the extraction capability so tests can supply a mock.
// Per Strategy pattern (R2.1).
type Backend interface {
	ExtractSource(ctx context.Context, src types.SourceDescriptor) (RawExtraction, error)
}

// extractionPromptTmpl is the prompt sent per source. It asks for codes
// (atomic researcher-meaningful statements) and themes with weights,
// confidence, and supporting excerpts.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a qualitative research analysis system performing thematic coding. Analyze the following {{.Type}} source and extract codes and themes.

Codes are atomic, researcher-meaningful statements found in the source (preserve the source's own language, do not paraphrase).

Themes group related codes. For each theme provide:
- label: a short noun-phrase name (2-6 words)
- description: one or two sentences
- keywords: 2-8 lowercase keywords drawn from the source
- weight: a float in [0.0, 1.0] for how much of the source this theme covers
- confidence: a float in [0.0, 1.0] for how certain you are the theme is present
- controversial: true only if the source itself frames the topic as contested
- excerpts: up to 3 short supporting quotes

Respond with a JSON object {"codes": [...], "themes": [...]} and no text outside it.

Title: {{.Title}}

Content:
{{.Content}}
`))

// extractionAPIURL is the Claude API endpoint. Package-level var for test
// substitution.
var extractionAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend extracts codes and themes through the Claude API. The
// limiter spreads calls out; the API is rate-limited and cost-bearing (R4.2).
type ClaudeBackend struct {
	APIKey  string
	Model   string
	Client  *http.Client
	Limiter *rate.Limiter
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *ClaudeBackend) ExtractSource(ctx context.Context, src types.SourceDescriptor) (RawExtraction, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return RawExtraction{}, err
		}
	}

	var prompt bytes.Buffer
	if err := extractionPromptTmpl.Execute(&prompt, src); err != nil {
		return RawExtraction{}, fmt.Errorf("rendering extraction prompt: %w", err)
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages:  []claudeMessage{{Role: "user", Content: prompt.String()}},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return RawExtraction{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, extractionAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return RawExtraction{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return RawExtraction{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return RawExtraction{}, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return RawExtraction{}, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var raw RawExtraction
		if err := json.Unmarshal([]byte(block.Text), &raw); err != nil {
			return RawExtraction{}, fmt.Errorf("parsing extraction JSON: %w", err)
		}
		return raw, nil
	}
	return RawExtraction{}, fmt.Errorf("no text content in Claude API response")
}
