package library

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey canonicalizes a string for album matching: Unicode NFKC,
// case fold, internal whitespace collapsed to single spaces. Locale
// independent. A Caser carries state, so one is built per call.
func NormalizeKey(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
