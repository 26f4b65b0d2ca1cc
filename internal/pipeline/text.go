package pipeline

import (
	"strings"
	"unicode"
)

// CleanText trims s and collapses whitespace runs, newlines included, into
// single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// locationAbbreviations maps common South African shorthand to the full
// place name.
var locationAbbreviations = map[string]string{
	"jhb":      "Johannesburg",
	"jozi":     "Johannesburg",
	"cpt":      "Cape Town",
	"ct":       "Cape Town",
	"dbn":      "Durban",
	"pta":      "Pretoria",
	"pe":       "Port Elizabeth",
	"gqeberha": "Port Elizabeth",
	"bloem":    "Bloemfontein",
}

// ExpandLocation cleans a location and expands any word that is a known
// abbreviation. Only whole words are expanded, so "Cape Town" is never
// mistaken for "pe".
func ExpandLocation(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		core := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if full, ok := locationAbbreviations[strings.ToLower(core)]; ok {
			words[i] = strings.Replace(w, core, full, 1)
		}
	}
	return strings.Join(words, " ")
}
