package resolver

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// notFoundPhrases mark a model answer that admits it has no name.
var notFoundPhrases = []string{
	"not_found", "not found", "unknown", "no information", "not available",
	"unable to", "cannot determine", "could not", "n/a",
}

// nameNoise are dropped from a candidate before the shape checks.
var nameNoise = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"dr": true, "mr": true, "ms": true, "mrs": true,
	"ceo": true, "president": true,
}

var (
	nameCharset = regexp.MustCompile(`^[A-Za-z\s'-]+$`)
	nameToken   = regexp.MustCompile(`^[A-Z][A-Za-z'-]{1,19}$`)
)

// ValidateName normalizes a model answer into a plausible personal name, or
// returns "" when the answer is not one.
func ValidateName(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}

	lower := strings.ToLower(s)
	for _, p := range notFoundPhrases {
		if strings.Contains(lower, p) {
			return ""
		}
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '"', '“', '”', '`', '(', ')', '[', ']', '{', '}', '<', '>', '*':
			return -1
		case ',':
			return ' '
		case '‘', '’':
			return '\''
		}
		return r
	}, s)

	var tokens []string
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, "'.")
		if tok == "" || nameNoise[strings.ToLower(tok)] {
			continue
		}
		tokens = append(tokens, tok)
	}

	if len(tokens) < 2 || len(tokens) > 4 {
		return ""
	}
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < 2 || !nameToken.MatchString(tok) {
			return ""
		}
	}

	name := strings.Join(tokens, " ")
	if !nameCharset.MatchString(name) {
		return ""
	}
	return name
}
