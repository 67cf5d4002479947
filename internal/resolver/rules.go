package resolver

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules holds the tunable word lists used by the resolvers.
type Rules struct {
	// Denylist holds registered domains of general-purpose platforms that
	// are never a company's own website. Subdomains match too.
	Denylist []string `yaml:"denylist"`
	// LegalSuffixes are dropped from company names before the relevance check.
	LegalSuffixes []string `yaml:"legal_suffixes"`
	// ExecutiveTitles are OR-ed into the leadership search query.
	ExecutiveTitles []string `yaml:"executive_titles"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	return &Rules{
		Denylist: []string{
			// search engines, portals
			"google.com", "bing.com", "duckduckgo.com", "yahoo.com", "jina.ai", "perplexity.ai",
			// social networks, video
			"linkedin.com", "facebook.com", "twitter.com", "x.com", "instagram.com",
			"youtube.com", "tiktok.com", "pinterest.com", "reddit.com", "medium.com",
			// wikis, reference, news
			"wikipedia.org", "wikidata.org", "bloomberg.com", "forbes.com", "reuters.com",
			// business directories, data vendors
			"crunchbase.com", "zoominfo.com", "dnb.com", "apollo.io", "rocketreach.co",
			"pitchbook.com", "owler.com", "craft.co", "opencorporates.com", "bbb.org",
			"yelp.com", "yellowpages.com", "manta.com", "glassdoor.com", "indeed.com",
			"ziprecruiter.com", "builtin.com", "levels.fyi", "comparably.com",
			// marketplaces, app stores
			"amazon.com", "ebay.com", "etsy.com", "apple.com",
			// job boards, ATS
			"greenhouse.io", "lever.co", "myworkdayjobs.com", "smartrecruiters.com",
			"icims.com", "jobvite.com",
		},
		LegalSuffixes: []string{
			"inc", "llc", "corp", "ltd", "company",
			"corporation", "incorporated", "limited", "gmbh", "plc", "llp",
		},
		ExecutiveTitles: []string{"CEO", "founder", "president", "owner"},
	}
}

// LoadRules reads rules from a YAML file. Lists missing from the file keep
// their defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: read rules %s", path)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "resolver: parse rules")
	}

	def := DefaultRules()
	if len(r.Denylist) == 0 {
		r.Denylist = def.Denylist
	}
	if len(r.LegalSuffixes) == 0 {
		r.LegalSuffixes = def.LegalSuffixes
	}
	if len(r.ExecutiveTitles) == 0 {
		r.ExecutiveTitles = def.ExecutiveTitles
	}
	return &r, nil
}
