// ABOUTME: Guess text normalization for exclusion matching
// ABOUTME: Case-folds, strips diacritics and collapses whitespace
package game

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes, drops combining marks and recomposes, so
// "Canción" and "Cancion" normalize identically.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeGuess maps a guess or option label to its comparison key.
func NormalizeGuess(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}
