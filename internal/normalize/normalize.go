// Package normalize provides pure string normalization for series and
// issue matching. The matching form (SeriesName) is distinct from the
// display-preserving form used to build search queries (SearchQuery).
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	volumeSuffixRe    = regexp.MustCompile(`\s+vol\.?\s*\d+`)
	volumeSuffixCIRe  = regexp.MustCompile(`(?i)\s+vol\.?\s*\d+`)
	yearParenRe       = regexp.MustCompile(`\s*\(\d{4}\)`)
	leadingTheRe      = regexp.MustCompile(`^the\s+`)
	separatorRe       = regexp.MustCompile(`[:\-_]`)
	punctuationRe     = regexp.MustCompile(`[^\w\s']`)
	looseApostropheRe = regexp.MustCompile(`\s+'|'\s+`)
	yearInParensRe    = regexp.MustCompile(`\((\d{4})\)`)
	volYearRe         = regexp.MustCompile(`(?i)vol\.?\s*(\d{4})`)
	volNumberRe       = regexp.MustCompile(`(?i)vol\.?\s*(\d+)`)

	// Strips combining marks left over after NFKD decomposition, so
	// accented characters fold to their ASCII base letter.
	asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

// fractionGlyphs maps unicode fraction characters to decimal strings.
var fractionGlyphs = map[string]string{
	"½": "0.5",
	"⅓": "0.333",
	"⅔": "0.667",
	"¼": "0.25",
	"¾": "0.75",
}

// SeriesName reduces a series name to its matching-canonical form:
// lowercase, ASCII-folded, volume/year annotations and the leading
// definite article removed, punctuation stripped except apostrophes
// inside words, whitespace collapsed.
//
//	"Green Lantern Vol. 2"     -> "green lantern"
//	"The Amazing Spider-Man"   -> "amazing spider man"
//	"Batman: The Dark Knight"  -> "batman dark knight"
func SeriesName(name string) string {
	name = strings.ToLower(name)

	if folded, _, err := transform.String(asciiFold, name); err == nil {
		name = folded
	}
	name = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, name)

	name = volumeSuffixRe.ReplaceAllString(name, "")
	name = yearParenRe.ReplaceAllString(name, "")
	name = leadingTheRe.ReplaceAllString(name, "")
	name = separatorRe.ReplaceAllString(name, " ")
	name = punctuationRe.ReplaceAllString(name, "")
	name = looseApostropheRe.ReplaceAllString(name, " ")

	return strings.Join(strings.Fields(name), " ")
}

// IssueNumber canonicalizes an issue-number string for lookup.
//
//	"001" -> "1"
//	"1.5" -> "1.5"
//	"1/2" -> "0.5"
//	"½"   -> "0.5"
func IssueNumber(number string) string {
	number = strings.TrimSpace(number)

	for glyph, decimal := range fractionGlyphs {
		if strings.Contains(number, glyph) {
			number = strings.ReplaceAll(number, glyph, decimal)
		}
	}

	if strings.Contains(number, "/") {
		parts := strings.Split(number, "/")
		if len(parts) == 2 {
			numerator, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			denominator, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 == nil && err2 == nil && denominator != 0 {
				return formatNumber(numerator / denominator)
			}
		}
	}

	if value, err := strconv.ParseFloat(number, 64); err == nil {
		return formatNumber(value)
	}

	return number
}

func formatNumber(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SearchQuery builds a catalog search query from a raw series name.
// Unlike SeriesName it preserves case and hyphenation; it only strips
// volume indicators, year parentheticals and trailing punctuation that
// would confuse the search endpoint.
func SearchQuery(seriesName string) string {
	query := volumeSuffixCIRe.ReplaceAllString(seriesName, "")
	query = yearParenRe.ReplaceAllString(query, "")
	query = strings.TrimRight(query, ".:;,-")
	return strings.TrimSpace(query)
}

// YearFromName extracts a year embedded in a series name, either as a
// parenthesized four-digit year or a "Vol. YYYY" annotation. Returns 0
// when no plausible year is present.
func YearFromName(name string) int {
	if m := yearInParensRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		return year
	}

	if m := volYearRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		if year > 1900 && year < 2100 {
			return year
		}
	}

	return 0
}

// VolumeNumber extracts a "Vol. X" volume number from a series name.
// Values of 100 or above are assumed to be years, not volume numbers.
// Returns 0 when no volume number is present.
func VolumeNumber(name string) int {
	if m := volNumberRe.FindStringSubmatch(name); m != nil {
		vol, _ := strconv.Atoi(m[1])
		if vol < 100 {
			return vol
		}
	}
	return 0
}
