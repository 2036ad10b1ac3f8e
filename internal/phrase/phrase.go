// Package phrase implements the keyword matching used by the keyword tables.
// Text is split into lower-case word tokens and a phrase matches when its
// tokens appear contiguously, so "lock" matches "lock the door" but not
// "unlock the door". The last token of a phrase also matches its plural, so
// "light" matches "turn on the lights". A possessive splits off as its own
// token: "today's" is "today" followed by "s".
package phrase

import (
	"strings"
	"unicode"
)

// Tokens splits s into lower-case runs of letters and digits.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// inflected reports whether tok is w or a plural of w. Words of two letters
// or fewer never inflect, so "on" does not match "ones".
func inflected(tok, w string) bool {
	if tok == w {
		return true
	}
	if len(w) <= 2 {
		return false
	}
	rest, ok := strings.CutPrefix(tok, w)
	return ok && (rest == "s" || rest == "es")
}

// Text is a tokenized command ready for repeated matching.
type Text []string

// New tokenizes s.
func New(s string) Text { return Text(Tokens(s)) }

// Contains reports whether p occurs in t as a contiguous token sequence.
func (t Text) Contains(p string) bool {
	want := Tokens(p)
	if len(want) == 0 || len(want) > len(t) {
		return false
	}
	for i := 0; i+len(want) <= len(t); i++ {
		match := true
		for j, w := range want {
			if t[i+j] != w && (j < len(want)-1 || !inflected(t[i+j], w)) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of the phrases occurs in t.
func (t Text) ContainsAny(phrases []string) bool {
	for _, p := range phrases {
		if t.Contains(p) {
			return true
		}
	}
	return false
}
