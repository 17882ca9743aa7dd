// Package match pairs timetable slots with resolved attendance codes. Phase
// one looks for exact agreements, phase two falls back to normalized label
// overlap; anything still unpaired is reported unmatched rather than guessed.
package match

import (
	"strings"
	"unicode"
)

// abbreviations maps long activity names onto the short forms code sources
// tend to use. Applied word by word after lowercasing.
var abbreviations = map[string]string{
	"laboratory": "lab",
	"tutorial":   "tut",
	"practical":  "prac",
	"session":    "sess",
	"lecture":    "lec",
	"workshop":   "workshop",
	"seminar":    "sem",
}

// Normalize canonicalizes a slot label for comparison: lowercase, known
// activity names abbreviated, punctuation flattened to spaces, digit runs
// zero-padded to two places so "Lab 2" and "lab 02" agree.
func Normalize(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for i, word := range words {
		if short, ok := abbreviations[word]; ok {
			words[i] = short
			continue
		}
		if isDigits(word) && len(word) == 1 {
			words[i] = "0" + word
		}
	}
	return strings.Join(words, " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// overlap measures how much of the shorter normalized label appears in the
// longer one, as a ratio of the shorter's word count.
func overlap(a, b string) float64 {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	short, long := wa, wb
	if len(wb) < len(wa) {
		short, long = wb, wa
	}

	longSet := make(map[string]bool, len(long))
	for _, w := range long {
		longSet[w] = true
	}
	hits := 0
	for _, w := range short {
		if longSet[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(short))
}
