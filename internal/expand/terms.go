package expand

import (
	"strings"
	"unicode"
)

// minTermLength is the shortest term worth keeping for scoring.
const minTermLength = 2

// ExtractTerms pulls scoring-relevant terms out of raw query text.
// Splitting happens on whitespace and punctuation, with two exceptions:
// hyphenated compounds are kept both whole and split, and '#'-prefixed
// tags are kept verbatim with the hash preserved. A tag occurrence does
// not also produce its bare word, so "#api" and "api" stay distinct.
func ExtractTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	add := func(t string) {
		key := strings.ToLower(t)
		if seen[key] {
			return
		}
		seen[key] = true
		terms = append(terms, t)
	}

	for _, field := range strings.Fields(query) {
		if strings.HasPrefix(field, "#") {
			tag := trimPunct(field[1:])
			if validTagBody(tag) {
				add("#" + tag)
			}
			continue
		}

		word := trimPunct(field)
		if word == "" {
			continue
		}
		if strings.Contains(word, "-") {
			// Compound: keep the whole term and its parts.
			if validTerm(word) {
				add(word)
			}
			for _, part := range strings.Split(word, "-") {
				if validTerm(part) {
					add(part)
				}
			}
			continue
		}
		// Punctuation inside the field still splits (e.g. "a/b", "a.b").
		for _, part := range splitNonTerm(word) {
			if validTerm(part) {
				add(part)
			}
		}
	}

	return terms
}

// trimPunct strips leading/trailing punctuation that is not part of a
// term, preserving interior hyphens and slashes.
func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '/'
	})
}

// splitNonTerm splits on anything outside the term alphabet.
func splitNonTerm(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// validTerm reports whether s is a usable scoring term: at least two
// runes, alphanumeric/underscore/hyphen only.
func validTerm(s string) bool {
	if len([]rune(s)) < minTermLength {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

// validTagBody validates a tag with the hash already stripped. Tags may
// nest with '/' separators.
func validTagBody(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, "/") {
		if !validTerm(seg) {
			return false
		}
	}
	return true
}
