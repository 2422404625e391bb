// Package language maps between the recognition-language identifiers the
// engine understands and the tags used by the language-suggestion model.
package language

import "slices"

// Recognition language identifiers (Tesseract trained-data names).
const (
	English  = "eng"
	Amharic  = "amh"
	Oromo    = "orm"
	Tigrinya = "tir"
)

// AI suggestion vocabulary.
const (
	AIEnglish  = "en"
	AIAmharic  = "am"
	AIOromo    = "or"
	AITigrinya = "ti"
)

// Supported lists the recognition languages offered to users, in display order.
var Supported = []string{English, Amharic, Oromo, Tigrinya}

// AITags lists the suggestion vocabulary.
var AITags = []string{AIEnglish, AIAmharic, AIOromo, AITigrinya}

var aiToOCR = map[string]string{
	AIEnglish:  English,
	AIAmharic:  Amharic,
	AIOromo:    Oromo,
	AITigrinya: Tigrinya,
}

var ocrToAI = map[string]string{
	English:  AIEnglish,
	Amharic:  AIAmharic,
	Oromo:    AIOromo,
	Tigrinya: AITigrinya,
}

var displayNames = map[string]string{
	English:  "English",
	Amharic:  "Amharic",
	Oromo:    "Oromo",
	Tigrinya: "Tigrinya",
}

// FromAITag returns the recognition language for a suggestion tag.
func FromAITag(tag string) (string, bool) {
	l, ok := aiToOCR[tag]
	return l, ok
}

// ToAITag returns the suggestion tag for a recognition language.
func ToAITag(lang string) (string, bool) {
	t, ok := ocrToAI[lang]
	return t, ok
}

// FromAITags maps suggestion tags to recognition languages, dropping unknown
// tags and duplicates while keeping order.
func FromAITags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if l, ok := FromAITag(tag); ok && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

// IsSupported reports whether lang is an offered recognition language.
func IsSupported(lang string) bool {
	_, ok := ocrToAI[lang]
	return ok
}

// Unsupported returns the entries of langs that are not offered recognition
// languages, in order.
func Unsupported(langs []string) []string {
	var out []string
	for _, l := range langs {
		if !IsSupported(l) {
			out = append(out, l)
		}
	}
	return out
}

// DisplayName returns the English name of a recognition language, or the
// identifier itself when unknown.
func DisplayName(lang string) string {
	if n, ok := displayNames[lang]; ok {
		return n
	}
	return lang
}
