package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reSpaceOrHyphen = regexp.MustCompile(`[\s\-\x{00A0}\x{2010}-\x{2015}\x{05BE}]+`)
	ampersand       = strings.NewReplacer("&", " ו ")
	hebrewPunct     = strings.NewReplacer("״", `"`, "׳", "'")
)

// NormalizeSpaces applies NFC and collapses runs of whitespace or hyphens
// (including maqaf) into one space.
func NormalizeSpaces(input string) string {
	s := norm.NFC.String(input)
	s = reSpaceOrHyphen.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeText is the free-text coercion used for names, descriptions and
// addresses. Blank input yields nil.
func NormalizeText(input string) *string {
	s := NormalizeSpaces(ampersand.Replace(input))
	if s == "" {
		return nil
	}
	return &s
}

// NormalizeToken prepares a short code-like token (units, abbreviations) for
// table lookups.
func NormalizeToken(input string) string {
	s := hebrewPunct.Replace(norm.NFC.String(input))
	return strings.ToLower(NormalizeSpaces(s))
}

func TextOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
