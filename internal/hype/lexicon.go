package hype

import (
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Hype Lexicon — weighted keyword table + capped intensity bonuses
// Score = sum of matched keyword weights + bounded punctuation/emoji/caps
// bonuses, so repetition alone can never dominate the keyword signal.
// ---------------------------------------------------------------------------

// KeywordWeight pairs a lowercase lexicon phrase with its hype weight.
type KeywordWeight struct {
	Phrase string
	Weight float64
}

// DefaultLexicon returns the built-in weighted hype vocabulary.
// Phrases are matched case-insensitively by substring presence; each phrase
// contributes its weight at most once per message.
func DefaultLexicon() []KeywordWeight {
	return []KeywordWeight{
		{Phrase: "launch", Weight: 10},
		{Phrase: "presale", Weight: 10},
		{Phrase: "stealth launch", Weight: 15},
		{Phrase: "fair launch", Weight: 12},
		{Phrase: "moon", Weight: 8},
		{Phrase: "100x", Weight: 10},
		{Phrase: "1000x", Weight: 12},
		{Phrase: "gem", Weight: 7},
		{Phrase: "alpha", Weight: 9},
		{Phrase: "call", Weight: 8},
		{Phrase: "pump", Weight: 6},
		{Phrase: "bullish", Weight: 5},
		{Phrase: "buy now", Weight: 7},
		{Phrase: "entry", Weight: 6},
		{Phrase: "degen", Weight: 5},
		{Phrase: "ca:", Weight: 15},
		{Phrase: "contract", Weight: 12},
		{Phrase: "0x", Weight: 10},
	}
}

// Bonus caps. Each intensity bonus saturates independently.
const (
	exclamationBonusCap = 10
	emojiBonusCap       = 5
	capsBonusCap        = 15

	// Runes above this codepoint count toward the emoji bonus.
	emojiRuneFloor = 127000
)

// keywordScore sums the weights of every lexicon phrase present in the
// lowercased text.
func keywordScore(lowered string, lexicon []KeywordWeight) float64 {
	var score float64
	for _, kw := range lexicon {
		if strings.Contains(lowered, kw.Phrase) {
			score += kw.Weight
		}
	}
	return score
}

// exclamationBonus awards 2 points per '!' capped at 10.
func exclamationBonus(text string) float64 {
	n := strings.Count(text, "!")
	return min(float64(n*2), exclamationBonusCap)
}

// emojiBonus awards 1 point per emoji-range rune capped at 5.
func emojiBonus(text string) float64 {
	n := 0
	for _, r := range text {
		if r > emojiRuneFloor {
			n++
		}
	}
	return min(float64(n), emojiBonusCap)
}

// capsBonus awards 3 points per ALL-CAPS word longer than 2 runes, capped
// at 15. A word counts when it contains at least one letter and no
// lowercase letters.
func capsBonus(text string) float64 {
	n := 0
	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		if len(runes) <= 2 {
			continue
		}
		cased := false
		upper := true
		for _, r := range runes {
			if unicode.IsLower(r) {
				upper = false
				break
			}
			if unicode.IsUpper(r) {
				cased = true
			}
		}
		if cased && upper {
			n++
		}
	}
	return min(float64(n*3), capsBonusCap)
}
