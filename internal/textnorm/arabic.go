// Package textnorm provides Arabic text normalization helpers used by the
// query classifier and the local lexical analyzer. These are pure string
// transforms; they carry no ranking logic.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tatweel is the Arabic elongation character, purely typographic.
const Tatweel = 'ـ'

// diacriticStripper removes combining marks (harakat, shadda, sukun and
// friends are all category Mn) after canonical composition.
var diacriticStripper = transform.Chain(
	norm.NFC,
	runes.Remove(runes.In(unicode.Mn)),
)

// StripDiacritics removes Arabic vocalization marks and the tatweel.
// Non-Arabic text passes through unchanged apart from combining marks.
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		// transform.String only fails on malformed input; fall back to
		// the original rather than dropping the text.
		out = s
	}
	return strings.Map(func(r rune) rune {
		if r == Tatweel {
			return -1
		}
		return r
	}, out)
}

// NormalizeLetters folds Arabic letter variants that users type
// interchangeably: alef forms to bare alef, alef maqsura to yaa,
// taa marbuta to haa.
func NormalizeLetters(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'آ', 'أ', 'إ': // آ أ إ
			return 'ا' // ا
		case 'ى': // ى
			return 'ي' // ي
		case 'ة': // ة
			return 'ه' // ه
		}
		return r
	}, s)
}

// Normalize applies the full pipeline used for lexical matching:
// diacritic strip, letter folding, whitespace collapse.
func Normalize(s string) string {
	return CollapseWhitespace(NormalizeLetters(StripDiacritics(s)))
}

// CollapseWhitespace trims and squeezes runs of whitespace to one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// quoteRunes covers ASCII quotes, Unicode smart quotes and guillemets.
const quoteRunes = "\"'`«»‘’‚‛“”„‟‹›"

// IsQuoteRune reports whether r is any quotation mark variant.
func IsQuoteRune(r rune) bool {
	return strings.ContainsRune(quoteRunes, r)
}

// StripQuotes removes all quotation mark variants from s.
func StripQuotes(s string) string {
	return strings.Map(func(r rune) rune {
		if IsQuoteRune(r) {
			return -1
		}
		return r
	}, s)
}

// HasArabicScript reports whether s contains any code point in the
// Arabic, Arabic Supplement, or Arabic Presentation Forms blocks.
func HasArabicScript(s string) bool {
	for _, r := range s {
		if IsArabicRune(r) {
			return true
		}
	}
	return false
}

// IsArabicRune reports whether r falls in an Arabic Unicode block.
func IsArabicRune(r rune) bool {
	switch {
	case r >= 0x0600 && r <= 0x06FF: // Arabic
		return true
	case r >= 0x0750 && r <= 0x077F: // Arabic Supplement
		return true
	case r >= 0xFB50 && r <= 0xFDFF: // Presentation Forms-A
		return true
	case r >= 0xFE70 && r <= 0xFEFF: // Presentation Forms-B
		return true
	}
	return false
}
