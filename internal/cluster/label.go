// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/theme-engine/internal/stem"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// ThemeLabel is a labeling capability's verdict for one cluster.
type ThemeLabel struct {
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description" yaml:"description"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Confidence  float64  `json:"confidence" yaml:"confidence"`
}

// Labeler names a cluster of codes. Implementations are external
// capabilities; tests supply a mock. Per Strategy pattern (R4.1).
type Labeler interface {
	Label(ctx context.Context, codes []types.Code) (ThemeLabel, error)
}

// labelPromptTmpl asks the model to name a cluster of related codes.
var labelPromptTmpl = template.Must(template.New("label").Parse(`You are a qualitative research assistant. The following statements were extracted from research sources and grouped because their meanings are related. Name the theme they share.

Respond with a JSON object:
- label: a short noun-phrase theme name (2-6 words)
- description: one or two sentences summarizing the theme
- keywords: 3-8 lowercase keywords drawn from the statements
- confidence: a float between 0.0 and 1.0 for how coherent the group is

Do not include any text outside the JSON object.

Statements:
{{range .Codes}}- {{.Text}}
{{end}}`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test
// substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeLabeler names clusters through the Claude API.
type ClaudeLabeler struct {
	APIKey string
	Model  string
	Client *http.Client
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

// maxCodesPerPrompt bounds the statements sent for one label; a cluster's
// first codes are representative enough and the call is cost-bearing.
const maxCodesPerPrompt = 30

func (c *ClaudeLabeler) Label(ctx context.Context, codes []types.Code) (ThemeLabel, error) {
	if len(codes) > maxCodesPerPrompt {
		codes = codes[:maxCodesPerPrompt]
	}

	var buf bytes.Buffer
	if err := labelPromptTmpl.Execute(&buf, struct{ Codes []types.Code }{Codes: codes}); err != nil {
		return ThemeLabel{}, fmt.Errorf("rendering label prompt: %w", err)
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 1024,
		Messages:  []claudeMessage{{Role: "user", Content: buf.String()}},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return ThemeLabel{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return ThemeLabel{}, fmt.Errorf("creating request: %w", err)
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
		return ThemeLabel{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ThemeLabel{}, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return ThemeLabel{}, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var lbl ThemeLabel
		if err := json.Unmarshal([]byte(block.Text), &lbl); err != nil {
			return ThemeLabel{}, fmt.Errorf("parsing label JSON: %w", err)
		}
		if strings.TrimSpace(lbl.Label) == "" {
			return ThemeLabel{}, fmt.Errorf("labeler returned an empty label")
		}
		return lbl, nil
	}
	return ThemeLabel{}, fmt.Errorf("no text content in Claude API response")
}

// stopwords excluded from fallback labels.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "are": true, "was": true, "were": true, "from": true,
	"have": true, "has": true, "had": true, "not": true, "but": true,
	"their": true, "they": true, "between": true, "more": true, "than": true,
	"into": true, "when": true, "which": true, "also": true, "can": true,
	"may": true, "our": true, "these": true, "its": true,
}

// fallbackLabel builds a degraded label from the cluster's most frequent
// content words when the labeling capability fails. The theme is kept;
// only its name degrades (R4.2).
func fallbackLabel(codes []types.Code) ThemeLabel {
	freq := make(map[string]int)
	display := make(map[string]string)
	for _, c := range codes {
		for _, tok := range stem.Tokenize(c.Text) {
			if len(tok) < 3 || stopwords[tok] {
				continue
			}
			key := stem.Stem(tok)
			freq[key]++
			if _, ok := display[key]; !ok {
				display[key] = tok
			}
		}
	}

	type kv struct {
		key   string
		count int
	}
	ranked := make([]kv, 0, len(freq))
	for k, n := range freq {
		ranked = append(ranked, kv{k, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].key < ranked[j].key
	})

	var words []string
	for _, r := range ranked {
		words = append(words, display[r.key])
		if len(words) == 3 {
			break
		}
	}
	if len(words) == 0 {
		words = []string{"unlabeled", "theme"}
	}

	return ThemeLabel{
		Label:      strings.Join(words, " / "),
		Keywords:   words,
		Confidence: 0.5,
	}
}
