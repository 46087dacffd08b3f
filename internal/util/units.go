package util

import "sort"

// UnitForms lists the spellings feeds use for each measurement unit, keyed by
// the unit's canonical name. Forms are written as they appear in feeds; use
// NormalizeToken before comparing.
var UnitForms = map[string][]string{
	"gram":       {"גרם", "גר", "גר'", "ג", "ג'", "גרמים", "gr", "g", "gram", "grams"},
	"kilogram":   {"קג", `ק"ג`, "קילו", "קילוגרם", "קילוגרמים", "kg", "kilo", "kilogram"},
	"liter":      {"ליטר", "ליטרים", "ל", "ל'", "lt", "l", "liter", "litre"},
	"milliliter": {"מל", `מ"ל`, "מ'ל", "מיליליטר", "ml", "milliliter", "millilitre"},
	"unit":       {"יחידה", "יחידות", "יח", "יח'", "מארז", "unit", "units", "each", "ea", "pcs"},
	"meter":      {"מטר", "מטרים", "מ'", "מ", "m", "meter", "metre"},
}

// UnitSpellings returns every form in UnitForms, normalized and deduplicated.
func UnitSpellings() []string {
	seen := map[string]bool{}
	var out []string
	for _, forms := range UnitForms {
		for _, f := range forms {
			if n := NormalizeToken(f); n != "" && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// NormalizeHebrewPunct maps gershayim and geresh to the ASCII quotes feeds
// usually type in their place.
func NormalizeHebrewPunct(s string) string {
	return hebrewPunct.Replace(s)
}
