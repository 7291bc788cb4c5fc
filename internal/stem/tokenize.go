// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stem

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase tokens. Letters, digits, and interior
// hyphens stay together; every other rune separates. Single-character and
// digit-only tokens are dropped as noise, while mixed tokens like "covid-19"
// and "gpt-4" survive intact.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if tok := cleanToken(current.String()); tok != "" {
			tokens = append(tokens, tok)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// cleanToken strips stray hyphens and rejects tokens carrying no matching
// signal. Returns "" for rejected tokens.
func cleanToken(tok string) string {
	tok = strings.Trim(tok, "-")
	for strings.Contains(tok, "--") {
		tok = strings.ReplaceAll(tok, "--", "-")
	}
	if len(tok) <= 1 || isNumericOnly(tok) {
		return ""
	}
	return tok
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}

// stopwords are function words carrying no topical signal. Label similarity
// and fallback labeling both filter them; the relevance scorer does not,
// since query terms are caller-chosen keywords.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "nor": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {},
	"by": {}, "from": {}, "as": {}, "into": {}, "over": {}, "under": {},
	"between": {}, "during": {}, "through": {}, "about": {}, "via": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"has": {}, "have": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "should": {}, "may": {},
	"might": {}, "must": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"there": {}, "their": {}, "them": {}, "they": {}, "we": {}, "our": {},
	"you": {}, "your": {}, "he": {}, "she": {}, "his": {}, "her": {},
	"what": {}, "which": {}, "who": {}, "how": {}, "when": {}, "where": {},
	"why": {}, "not": {}, "no": {}, "than": {}, "then": {}, "also": {},
	"such": {}, "some": {}, "more": {}, "most": {}, "other": {}, "each": {},
	"both": {}, "own": {}, "same": {}, "so": {}, "too": {}, "very": {},
	"among": {}, "within": {}, "across": {}, "toward": {}, "towards": {},
}

// FilterStopwords returns tokens with common function words removed.
// The input slice is not modified.
func FilterStopwords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// IsStopword reports whether tok is on the stopword list.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
