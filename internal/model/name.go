package model

import "strings"

var namePrefixes = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "miss": true, "prof": true, "sir": true,
}

var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"phd": true, "mba": true, "md": true, "cpa": true, "esq": true, "pmp": true, "cfa": true,
}

// SplitName parses a display name into first and last name. Honorifics,
// generational suffixes and trailing credentials ("Jane Doe, MBA") are dropped.
// A single-token name yields an empty last name.
func SplitName(full string) (first, last string) {
	if i := strings.Index(full, ","); i >= 0 {
		full = full[:i]
	}
	var tokens []string
	for _, tok := range strings.Fields(full) {
		key := strings.ToLower(strings.Trim(tok, ".()\"'"))
		if key == "" || namePrefixes[key] || nameSuffixes[key] {
			continue
		}
		tokens = append(tokens, strings.Trim(tok, "()\""))
	}
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], ""
	default:
		return tokens[0], tokens[len(tokens)-1]
	}
}
