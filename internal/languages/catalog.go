// Package languages is the fixed catalog of translatable languages.
package languages

import (
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is one supported translation language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// supportedCodes mirrors the on-device model catalog. Keep sorted.
var supportedCodes = []string{
	"ar", "bn", "cs", "da", "de", "el", "en", "es", "fi", "fr",
	"he", "hi", "hr", "hu", "id", "it", "ja", "ko", "mr", "ms",
	"nl", "no", "pl", "pt", "ro", "ru", "sv", "th", "tr", "uk",
	"vi", "zh",
}

var catalog []Language

func init() {
	namer := display.English.Languages()
	catalog = make([]Language, 0, len(supportedCodes))
	for _, code := range supportedCodes {
		tag, err := language.Parse(code)
		name := code
		if err == nil {
			name = namer.Name(tag)
		}
		catalog = append(catalog, Language{Code: code, Name: name})
	}
	sort.Slice(catalog, func(i, j int) bool {
		return catalog[i].Name < catalog[j].Name
	})
}

// Supported returns the catalog sorted by display name.
func Supported() []Language {
	ret := make([]Language, len(catalog))
	copy(ret, catalog)
	return ret
}

// IsSupported reports whether code names a catalog language. Region
// subtags are ignored.
func IsSupported(code string) bool {
	base := strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	for _, c := range supportedCodes {
		if c == base {
			return true
		}
	}
	return false
}

// Detect guesses the language of text, for callers passing "auto" as a
// source language. Returns false when detection is unreliable or the
// detected language is not in the catalog.
func Detect(text string) (string, bool) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "", false
	}
	code := info.Lang.Iso6391()
	if code == "" || !IsSupported(code) {
		return "", false
	}
	return code, true
}
