// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stem provides the morphological normalization shared by relevance
// scoring and theme deduplication: a Porter-style suffix stemmer, a
// tokenizer, and a bounded memo cache.
// Implements: prd001-ranking (R1.1-R1.6); docs/ARCHITECTURE § Ranking.
package stem

import "strings"

// Stem reduces an English word to its morphological stem: plurals collapse
// (studies → studi), -ed/-ing inflections drop with consonant undoubling
// (running → run, hopped → hop), and derivational suffix families reduce
// when the stem's measure is large enough to survive it (optimization →
// optim, relational → relat). Words shorter than three characters and
// words containing non-letters are returned unchanged apart from
// lowercasing. Pure and deterministic.
//
// Known imprecision: irregular words over-stem. "mercy" stems to "merci",
// the identical stem its plural produces. The imprecision is documented
// here rather than special-cased per word.
func Stem(word string) string {
	w := strings.ToLower(word)
	if len(w) < 3 {
		return w
	}
	for i := 0; i < len(w); i++ {
		if w[i] < 'a' || w[i] > 'z' {
			return w
		}
	}
	w = step1a(w)
	w = step1b(w)
	w = step1c(w)
	w = step2(w)
	w = step3(w)
	w = step4(w)
	w = step5(w)
	return w
}

// isConsonant reports whether w[i] is a consonant. y counts as a vowel
// only when it follows a consonant ("syzygy"), as a consonant at the start
// of a word or after a vowel ("toy").
func isConsonant(w string, i int) bool {
	switch w[i] {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	case 'y':
		return i == 0 || !isConsonant(w, i-1)
	}
	return true
}

// measure counts vowel-consonant sequences: the m in [C](VC)^m[V].
// Short stems (small m) are protected from derivational stripping.
func measure(w string) int {
	m := 0
	i := 0
	for i < len(w) && isConsonant(w, i) {
		i++
	}
	for i < len(w) {
		for i < len(w) && !isConsonant(w, i) {
			i++
		}
		if i >= len(w) {
			break
		}
		m++
		for i < len(w) && isConsonant(w, i) {
			i++
		}
	}
	return m
}

func hasVowel(w string) bool {
	for i := range w {
		if !isConsonant(w, i) {
			return true
		}
	}
	return false
}

// endsDouble reports whether w ends in a doubled consonant (hopp, fall).
func endsDouble(w string) bool {
	n := len(w)
	return n >= 2 && w[n-1] == w[n-2] && isConsonant(w, n-1)
}

// endsCVC reports whether w ends consonant-vowel-consonant with the final
// consonant not w, x, or y (fil, hop — candidates for a restored e).
func endsCVC(w string) bool {
	n := len(w)
	if n < 3 {
		return false
	}
	if !isConsonant(w, n-3) || isConsonant(w, n-2) || !isConsonant(w, n-1) {
		return false
	}
	c := w[n-1]
	return c != 'w' && c != 'x' && c != 'y'
}

// step1a collapses plurals: sses → ss, ies → i, trailing s dropped, but a
// bare ss ending is left alone.
func step1a(w string) string {
	switch {
	case strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "ies"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

// step1b strips -ed/-ing when the remaining stem still contains a vowel,
// then repairs the stem: restore e after at/bl/iz, undouble a trailing
// double consonant (except l, s, z), or restore e after a short CVC stem.
func step1b(w string) string {
	if strings.HasSuffix(w, "eed") {
		if measure(w[:len(w)-3]) > 0 {
			return w[:len(w)-1]
		}
		return w
	}

	var stem string
	switch {
	case strings.HasSuffix(w, "ed") && hasVowel(w[:len(w)-2]):
		stem = w[:len(w)-2]
	case strings.HasSuffix(w, "ing") && hasVowel(w[:len(w)-3]):
		stem = w[:len(w)-3]
	default:
		return w
	}

	switch {
	case strings.HasSuffix(stem, "at"), strings.HasSuffix(stem, "bl"), strings.HasSuffix(stem, "iz"):
		return stem + "e"
	case endsDouble(stem) && !strings.ContainsRune("lsz", rune(stem[len(stem)-1])):
		return stem[:len(stem)-1]
	case measure(stem) == 1 && endsCVC(stem):
		return stem + "e"
	}
	return stem
}

// step1c normalizes a trailing y to i when the stem has a vowel, so
// "happy" and "happiness" land on the same stem.
func step1c(w string) string {
	if strings.HasSuffix(w, "y") && hasVowel(w[:len(w)-1]) {
		return w[:len(w)-1] + "i"
	}
	return w
}

type suffixRule struct {
	suffix  string
	replace string
}

// Longest suffixes first where one suffix ends another, so "ization" wins
// over "ation" and "ational" over "tional".
var step2Rules = []suffixRule{
	{"ational", "ate"},
	{"tional", "tion"},
	{"enci", "ence"},
	{"anci", "ance"},
	{"izer", "ize"},
	{"abli", "able"},
	{"alli", "al"},
	{"entli", "ent"},
	{"ousli", "ous"},
	{"eli", "e"},
	{"ization", "ize"},
	{"ation", "ate"},
	{"ator", "ate"},
	{"alism", "al"},
	{"iveness", "ive"},
	{"fulness", "ful"},
	{"ousness", "ous"},
	{"aliti", "al"},
	{"iviti", "ive"},
	{"biliti", "ble"},
}

var step3Rules = []suffixRule{
	{"icate", "ic"},
	{"ative", ""},
	{"alize", "al"},
	{"iciti", "ic"},
	{"ical", "ic"},
	{"ful", ""},
	{"ness", ""},
}

// applyRules replaces the first matching suffix if the remaining stem's
// measure meets the bar. Only one rule is ever considered per call: a
// match whose measure check fails ends the step without a rewrite.
func applyRules(w string, rules []suffixRule, minMeasure int) string {
	for _, r := range rules {
		if !strings.HasSuffix(w, r.suffix) {
			continue
		}
		stem := w[:len(w)-len(r.suffix)]
		if measure(stem) >= minMeasure {
			return stem + r.replace
		}
		return w
	}
	return w
}

func step2(w string) string { return applyRules(w, step2Rules, 1) }

func step3(w string) string { return applyRules(w, step3Rules, 1) }

// Longest first, so "ement" is never caught by "ment" or "ent".
var step4Suffixes = []string{
	"ement",
	"ance", "ence", "able", "ible", "ment",
	"ant", "ent", "ism", "ate", "iti", "ous", "ive", "ize", "ion",
	"al", "er", "ic", "ou",
}

// step4 drops residual derivational suffixes from long stems (measure > 1).
// "ion" drops only after s or t: adoption → adopt, but "union" stays.
func step4(w string) string {
	for _, suf := range step4Suffixes {
		if !strings.HasSuffix(w, suf) {
			continue
		}
		stem := w[:len(w)-len(suf)]
		if suf == "ion" && !strings.HasSuffix(stem, "s") && !strings.HasSuffix(stem, "t") {
			return w
		}
		if measure(stem) > 1 {
			return stem
		}
		return w
	}
	return w
}

// step5 tidies the result: drop a final e unless the stem is short enough
// to need it, and undouble a final ll on long stems (controll → control).
func step5(w string) string {
	if strings.HasSuffix(w, "e") {
		stem := w[:len(w)-1]
		m := measure(stem)
		if m > 1 || (m == 1 && !endsCVC(stem)) {
			w = stem
		}
	}
	if strings.HasSuffix(w, "ll") && measure(w) > 1 {
		w = w[:len(w)-1]
	}
	return w
}
