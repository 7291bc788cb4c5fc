// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// FormatTable writes ranked documents as a human-readable table to w.
func FormatTable(q *CompiledQuery, ranked []types.ScoredDocument, w io.Writer) {
	if q != nil && q.Raw != "" {
		fmt.Fprintf(w, "Query: %s", q.Raw)
		if q.StemmedPhrase != "" && q.StemmedPhrase != q.Phrase {
			fmt.Fprintf(w, " (stemmed: %s)", q.StemmedPhrase)
		}
		fmt.Fprintln(w)
	}
	if len(ranked) == 0 {
		fmt.Fprintln(w, "No documents ranked.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-56s  %-20s  %-4s  %-7s  %s\n",
		"Rank", "Title", "Authors", "Year", "Score", "FullText")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, d := range ranked {
		title := d.Title
		if len(title) > 56 {
			title = title[:53] + "..."
		}
		year := ""
		if d.Year > 0 {
			year = fmt.Sprintf("%d", d.Year)
		}
		fmt.Fprintf(w, "%-4d  %-56s  %-20s  %-4s  %-7.2f  %s\n",
			i+1, title, formatAuthors(d.Authors), year, d.RelevanceScore, d.FullTextStatus)
	}

	fmt.Fprintf(w, "\n%d documents ranked\n", len(ranked))
}

// FormatJSON writes ranked documents as indented JSON to w.
func FormatJSON(ranked []types.ScoredDocument, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ranked)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
