package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Generate creates a lowercase, hyphen-separated slug from name. Accents are
// stripped after canonical decomposition, so "Café Crème" becomes "cafe-creme".
//
// Examples:
//   - "The Forest Hiker" → "the-forest-hiker"
//   - "Sea Explorer (5 days)" → "sea-explorer-5-days"
func Generate(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		folded = name
	}

	s := nonAlnum.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(s, "-")
}
