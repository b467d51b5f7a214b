package search

import (
	"strings"
	"unicode/utf8"

	"github.com/maktaba-search/maktaba/internal/textnorm"
)

// Short-query cutoff correction. A fixed similarity floor lets 1-3
// character queries return low-confidence matches because there is little
// content to discriminate on, so the floor is raised for them.
const (
	// singleWordClamp caps the effective length of single-word queries.
	// The correction is about ambiguity, not raw length: a long single
	// token is still one ambiguous term and keeps the short-query bonus.
	singleWordClamp = 6

	// tinyQueryBonus applies at <= 3 effective characters.
	tinyQueryBonus = 0.40

	// shortQueryBonus applies at <= 6 effective characters.
	shortQueryBonus = 0.30
)

// DynamicCutoff derives the similarity floor passed to the vector backend
// for this query. The result never falls below base.
func DynamicCutoff(query string, base float64) float64 {
	n := cutoffLength(query)

	var bonus float64
	switch {
	case n <= 3:
		bonus = tinyQueryBonus
	case n <= singleWordClamp:
		bonus = shortQueryBonus
	}

	if bonus <= 0 {
		return base
	}
	return base + bonus
}

// cutoffLength counts the query's characters with whitespace collapsed,
// clamped for single-word queries.
func cutoffLength(query string) int {
	fields := strings.Fields(textnorm.StripQuotes(query))
	n := utf8.RuneCountInString(strings.Join(fields, ""))

	if len(fields) == 1 && n > singleWordClamp {
		n = singleWordClamp
	}
	return n
}
