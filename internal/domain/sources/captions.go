package sources

import "strings"

// CaptionLanguages is the preference order for platform captions. Anything
// else is taken only when none of these is offered.
var CaptionLanguages = []string{"en", "hi"}

// CaptionLanguage picks the caption track to use. For each preferred language
// an uploaded track wins over a generated one. Otherwise the first uploaded
// track is used, then the original-language generated one, then any.
func CaptionLanguage(uploaded, generated []string) (string, bool) {
	for _, pref := range CaptionLanguages {
		if l, ok := findLang(uploaded, pref); ok {
			return l, true
		}
		if l, ok := findLang(generated, pref); ok {
			return l, true
		}
	}
	if len(uploaded) > 0 {
		return uploaded[0], true
	}
	for _, l := range generated {
		if strings.HasSuffix(l, "-orig") {
			return l, true
		}
	}
	if len(generated) > 0 {
		return generated[0], true
	}
	return "", false
}

// findLang matches pref exactly first, then regional variants like en-US.
func findLang(langs []string, pref string) (string, bool) {
	for _, l := range langs {
		if l == pref {
			return l, true
		}
	}
	for _, l := range langs {
		if strings.HasPrefix(l, pref+"-") {
			return l, true
		}
	}
	return "", false
}
