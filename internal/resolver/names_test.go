package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"John Smith", "John Smith"},
		{`"John Smith"`, "John Smith"},
		{"  [Jane Doe]  ", "Jane Doe"},
		{"Dr. Jane Doe", "Jane Doe"},
		{"John Smith Jr.", "John Smith"},
		{"Robert Downey III", "Robert Downey"},
		{"Mary-Kate O'Brien", "Mary-Kate O'Brien"},
		{"Mary Ann Van Dyke", "Mary Ann Van Dyke"},
		{"John Smith, CEO", "John Smith"},
		{"CEO John Smith", "John Smith"},
		{"John Smith\nHe has led Acme since 2010.", "John Smith"},
		{"NOT_FOUND", ""},
		{"Not found", ""},
		{"Unknown", ""},
		{"There is no information about the CEO.", ""},
		{"N/A", ""},
		{"john smith", ""},
		{"John S", ""},
		{"José García", ""},
		{"John Smith 2nd", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateName(tt.raw))
		})
	}
}

// Candidates with fewer than 2 or more than 4 name tokens are rejected.
func TestValidateName_TokenCount(t *testing.T) {
	words := []string{"Anna", "Beth", "Clara", "Diane", "Emma", "Fiona", "Grace"}
	for n := 0; n <= len(words); n++ {
		raw := strings.Join(words[:n], " ")
		got := ValidateName(raw)
		if n < 2 || n > 4 {
			assert.Empty(t, got, "tokens=%d", n)
		} else {
			assert.Equal(t, raw, got, "tokens=%d", n)
		}
	}
}

func TestValidateName_TokenLength(t *testing.T) {
	assert.Equal(t, "", ValidateName("John A"+strings.Repeat("b", 20)))
	assert.Equal(t, "John A"+strings.Repeat("b", 19), ValidateName("John A"+strings.Repeat("b", 19)))
}
