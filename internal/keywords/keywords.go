// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package keywords tokenizes free text into comparable terms. The strategist,
// relevance scoring, refiner, and synthesizer all share it so a keyword means
// the same thing everywhere in the pipeline.
package keywords

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be
		because been before being below between both but by can could did do does doing down during
		each few for from further had has have having he her here hers him his how i if in into is it
		its itself just me more most my no nor not now of off on once only or other our ours out over
		own same she should so some such than that the their theirs them then there these they this
		those through to too under until up very was we were what when where which while who whom why
		will with would you your yours company companies inc llc ltd corp find identify look looking
		information info evidence research signal signals recent latest news www com http https
		across also via new per`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether w (already lower-cased) carries no search signal.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Normalize lower-cases s, drops punctuation, and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the distinct non-stopword terms of s in first-seen order.
// Terms shorter than two characters are dropped.
func Tokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(Normalize(s)) {
		if len(w) < 2 || IsStopword(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Merge concatenates token lists, keeping the first occurrence of each term.
func Merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, w := range l {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// HitRatio returns the fraction of terms that occur in text.
// It is 0 when terms is empty.
func HitRatio(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	words := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(text)) {
		words[w] = struct{}{}
	}
	hits := 0
	for _, t := range terms {
		if _, ok := words[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// Contains reports whether text mentions any of terms.
func Contains(terms []string, text string) bool {
	return HitRatio(terms, text) > 0
}

// Top returns up to n terms from texts ranked by frequency, skipping any term
// in exclude. Ties break alphabetically so results are stable.
func Top(texts []string, exclude []string, n int) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	counts := make(map[string]int)
	for _, t := range texts {
		for _, w := range strings.Fields(Normalize(t)) {
			if len(w) < 3 || IsStopword(w) || isNumber(w) {
				continue
			}
			if _, ok := skip[w]; ok {
				continue
			}
			counts[w]++
		}
	}
	terms := make([]string, 0, len(counts))
	for w := range counts {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if n >= 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
