package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules_MergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
denylist:
  - example.com
executive_titles: [CEO, "managing director"]
`), 0o644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, r.Denylist)
	assert.Equal(t, []string{"CEO", "managing director"}, r.ExecutiveTitles)
	assert.Equal(t, DefaultRules().LegalSuffixes, r.LegalSuffixes)
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("denylist: [unclosed"), 0o644))
	_, err = LoadRules(path)
	assert.Error(t, err)
}

func TestDefaultRules_LegalSuffixes(t *testing.T) {
	r := DefaultRules()
	for _, s := range []string{"inc", "llc", "corp", "ltd", "company"} {
		assert.Contains(t, r.LegalSuffixes, s)
	}
}
