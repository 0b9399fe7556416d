// Package moderation censors configured words in message content before it
// reaches the durable log. Matching is case-insensitive and ignores
// punctuation and spacing inserted to dodge the filter.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Filter struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// textMapping links the normalized rune stream back to positions in the
// original string so censoring preserves the author's spacing.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewFilter builds the Aho-Corasick automaton over the normalized word list.
// Entries that normalize to nothing (pure punctuation, empty strings) are
// ignored.
func NewFilter(words []string, replacement rune) (*Filter, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if p := normalize([]rune(word)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{matcher: m, replacement: replacement}, nil
}

// Apply replaces every match with the replacement rune and reports whether
// anything was censored.
func (f *Filter) Apply(content string) (string, bool) {
	mapping := f.mapRunes(content)
	if len(mapping.normalized) == 0 {
		return content, false
	}

	spans := f.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return content, false
	}

	runes := []rune(content)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			runes[i] = f.replacement
		}
	}
	return string(runes), true
}

func (f *Filter) mapRunes(input string) textMapping {
	orig := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(orig)),
		origIdx:    make([]int, 0, len(orig)),
	}
	for i, r := range orig {
		if isNoise(r) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(r))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalize(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if isNoise(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
