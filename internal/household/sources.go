package household

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SourceRules canonicalizes lead source identifiers. Feed files and agency
// management systems spell the same vendor a dozen ways; conflict detection
// and match confidence compare canonical forms so spelling alone never flags
// a household.
type SourceRules struct {
	aliases map[string]string
}

// LoadSourceRules reads lead source rules from a YAML file. The file maps
// each canonical source to the alias spellings seen in the wild:
//
//	lead_sources:
//	  canonical:
//	    web_form: [webform, "web lead"]
//	    referral: [ref, word_of_mouth]
func LoadSourceRules(path string) (*SourceRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "household: read source rules %s", path)
	}

	var wrapper struct {
		LeadSources struct {
			Canonical map[string][]string `yaml:"canonical"`
		} `yaml:"lead_sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "household: parse source rules")
	}

	rules := &SourceRules{aliases: make(map[string]string)}
	for canonical, aliases := range wrapper.LeadSources.Canonical {
		canonical = cleanSource(canonical)
		for _, alias := range aliases {
			rules.aliases[cleanSource(alias)] = canonical
		}
	}
	return rules, nil
}

// Normalize returns the canonical form of a raw lead source. Unknown sources
// are kept, lowercased with whitespace collapsed to underscores, so new
// vendors flow through without configuration. A nil receiver normalizes
// spelling only.
func (r *SourceRules) Normalize(raw string) string {
	clean := cleanSource(raw)
	if r == nil || clean == "" {
		return clean
	}
	if canonical, ok := r.aliases[clean]; ok {
		return canonical
	}
	return clean
}

func cleanSource(raw string) string {
	clean := strings.ToLower(strings.TrimSpace(raw))
	clean = strings.ReplaceAll(clean, "-", " ")
	return strings.Join(strings.Fields(clean), "_")
}
