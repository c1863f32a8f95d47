package otp

import "regexp"

// patterns are tried in order; the first match wins. Keyword-anchored forms
// come first because message bodies often carry unrelated numbers. The bare
// digit fallbacks can still fire on promotional text with no code in it.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:code is|code:|otp|verification code|login code)[\s:]*(\d{4,8})`),
	regexp.MustCompile(`(?i)(\d{4,8})\s*(?:is your|code)`),
	regexp.MustCompile(`(?i)your code is\s*(\d{4,8})`),
	regexp.MustCompile(`(\d{6})`),
	regexp.MustCompile(`(\d{5})`),
	regexp.MustCompile(`(\d{4})`),
}

// Match extracts a one-time code from text.
func Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
