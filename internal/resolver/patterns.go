package resolver

import "strings"

// Part is one element of an email local-part template.
type Part int

const (
	First Part = iota
	Last
	FirstInitial
	LastInitial
	Dot
	Underscore
	Hyphen
)

// Pattern is an email local-part format with its observed share of
// real-world business addresses, in percent.
type Pattern struct {
	Name      string
	Parts     []Part
	Frequency float64
}

// Patterns lists the supported formats, most common first.
var Patterns = []Pattern{
	{"flast", []Part{FirstInitial, Last}, 42.9},
	{"first.last", []Part{First, Dot, Last}, 30.8},
	{"first_only", []Part{First}, 8.0},
	{"firstlast", []Part{First, Last}, 3.4},
	{"f.last", []Part{FirstInitial, Dot, Last}, 2.8},
	{"firstl", []Part{First, LastInitial}, 2.1},
	{"first_last", []Part{First, Underscore, Last}, 1.9},
	{"last_only", []Part{Last}, 1.6},
	{"lastf", []Part{Last, FirstInitial}, 1.2},
	{"last.first", []Part{Last, Dot, First}, 0.9},
	{"first.l", []Part{First, Dot, LastInitial}, 0.8},
	{"lastfirst", []Part{Last, First}, 0.7},
	{"fl", []Part{FirstInitial, LastInitial}, 0.6},
	{"first-last", []Part{First, Hyphen, Last}, 0.5},
	{"last_first", []Part{Last, Underscore, First}, 0.4},
	{"f_last", []Part{FirstInitial, Underscore, Last}, 0.35},
	{"last-first", []Part{Last, Hyphen, First}, 0.3},
	{"f-last", []Part{FirstInitial, Hyphen, Last}, 0.2},
	{"first_l", []Part{First, Underscore, LastInitial}, 0.1},
}

// Build renders the local part from normalized names. It returns "" when a
// part needs a name that is empty.
func (p Pattern) Build(first, last string) string {
	var b strings.Builder
	for _, part := range p.Parts {
		switch part {
		case First:
			if first == "" {
				return ""
			}
			b.WriteString(first)
		case Last:
			if last == "" {
				return ""
			}
			b.WriteString(last)
		case FirstInitial:
			if first == "" {
				return ""
			}
			b.WriteString(first[:1])
		case LastInitial:
			if last == "" {
				return ""
			}
			b.WriteString(last[:1])
		case Dot:
			b.WriteByte('.')
		case Underscore:
			b.WriteByte('_')
		case Hyphen:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// normalizeNamePart folds a name to ASCII lowercase letters
// ("O'Brien" → "obrien", "José" → "jose").
func normalizeNamePart(s string) string {
	return lettersOnly(fold(s))
}
