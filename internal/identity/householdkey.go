package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// missingFirstName is substituted when no first name is on file.
	missingFirstName = "UNKNOWN"
	// zipKeyWidth is the fixed width of the postal segment of a household key.
	zipKeyWidth = 5
)

// asciiFold decomposes accented characters and strips the combining marks,
// so "Muñoz" and "Munoz" derive the same key.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// HouseholdKey derives the fallback match key LASTNAME_FIRSTNAME_ZIP used when
// no phone is on file. Name components are uppercased with diacritics folded
// to ASCII and everything that is not a letter removed, so the hyphens and
// apostrophes in names like "O'Brien" or "Smith-Jones" do not survive into
// the key. The postal code is reduced to digits and truncated or
// zero-padded to a fixed width. An empty last name yields an empty key.
func HouseholdKey(first, last, zip string) string {
	lastKey := foldName(last)
	if lastKey == "" {
		return ""
	}
	firstKey := foldName(first)
	if firstKey == "" {
		firstKey = missingFirstName
	}
	return lastKey + "_" + firstKey + "_" + foldZip(zip)
}

// foldName uppercases a name component, keeping only ASCII letters after
// diacritic folding.
func foldName(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldZip keeps the digits of a postal code, truncated or right-padded with
// zeros to zipKeyWidth.
func foldZip(zip string) string {
	var b strings.Builder
	b.Grow(zipKeyWidth)
	for i := 0; i < len(zip) && b.Len() < zipKeyWidth; i++ {
		if c := zip[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	s := b.String()
	if len(s) < zipKeyWidth {
		s += strings.Repeat("0", zipKeyWidth-len(s))
	}
	return s
}
