// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package themes

import (
	"strings"

	"github.com/pdiddy/theme-engine/internal/stem"
)

// labelKey normalizes a theme label for exact comparison: lowercased,
// tokenized, stemmed, rejoined. "Sleep Deprivation" and "sleep deprivations"
// collapse to the same key.
func labelKey(label string) string {
	toks := stem.Tokenize(label)
	stems := make([]string, len(toks))
	for i, tok := range toks {
		stems[i] = stem.Stem(tok)
	}
	return strings.Join(stems, " ")
}

// labelTokens returns the stemmed token set of a label.
func labelTokens(label string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range stem.Tokenize(label) {
		set[stem.Stem(tok)] = struct{}{}
	}
	return set
}

// similarity scores how likely two labels name the same concept, in [0,1].
// Total function: any pair of labels gets a score, and acceptance is a
// single threshold comparison at the call site, never a heuristic chain.
//
// The score is the maximum of three signals: exact normalized equality
// (1.0), Jaccard overlap of the stemmed token sets, and a containment
// signal for when one label is a qualified form of the other ("sleep
// stress" vs "sleep stress in adolescents").
func similarity(aKey string, aToks map[string]struct{}, bKey string, bToks map[string]struct{}) float64 {
	if aKey != "" && aKey == bKey {
		return 1.0
	}
	if len(aToks) == 0 || len(bToks) == 0 {
		return 0
	}

	small, large := aToks, bToks
	if len(small) > len(large) {
		small, large = large, small
	}
	overlap := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}

	jaccard := float64(overlap) / float64(len(aToks)+len(bToks)-overlap)

	// Containment discounts the extra qualifying tokens rather than
	// penalizing them at full Jaccard strength.
	containment := containmentWeight * float64(overlap) / float64(len(small))

	if containment > jaccard {
		return containment
	}
	return jaccard
}

// containmentWeight caps the containment signal below exact equality so a
// one-token label cannot absorb every label that mentions its word.
const containmentWeight = 0.8
