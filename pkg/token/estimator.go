// Package token estimates how many model tokens a piece of text occupies.
//
// The heuristic counts CJK ideographs and kana as one token each, Latin words
// as 1.3 tokens each, and every other character, whitespace included, as a
// quarter token.
// It does not track any real tokenizer; it only has to be stable so budget
// trimming is deterministic.
package token

import "math"

const (
	cjkWeight   = 1.0
	wordWeight  = 1.3
	otherWeight = 0.25
)

// Estimate returns the heuristic token count of text, rounded up.
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	var cjk, words, other int
	inWord := false

	for _, r := range text {
		switch {
		case isCJK(r):
			cjk++
			inWord = false
		case isLatinLetter(r):
			if !inWord {
				words++
				inWord = true
			}
		default:
			other++
			inWord = false
		}
	}

	total := float64(cjk)*cjkWeight + float64(words)*wordWeight + float64(other)*otherWeight
	return int(math.Ceil(total))
}

// EstimateAll sums the per-item estimates of texts.
func EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}

// hiragana, katakana and the CJK unified ideographs block
func isCJK(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) ||
		(r >= 0x30A0 && r <= 0x30FF) ||
		(r >= 0x4E00 && r <= 0x9FAF)
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
