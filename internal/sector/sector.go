// Package sector assigns programs to one of a fixed set of economic sectors.
//
// Classification is tiered: program overrides, then bureau rules, then agency
// rules, then the default sector. Rule order inside a tier is priority order.
package sector

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/creditscope/internal/identity"
	"github.com/leapstack-labs/creditscope/internal/lookups"
)

// Priority describes the tiers in evaluation order.
var Priority = []string{
	"1. Program-level overrides",
	"2. Bureau-level rules",
	"3. Agency-level fallback",
}

type rule struct {
	pattern string
	sector  string
}

// Classifier is immutable once built and safe for concurrent use.
type Classifier struct {
	overrides []rule
	bureaus   []rule
	agencies  []rule
	fallback  string
	sectors   []lookups.SectorDef
}

// New builds a classifier from lookup tables. Patterns are normalized once.
func New(t *lookups.Tables) *Classifier {
	return &Classifier{
		overrides: compile(t.ProgramOverrides),
		bureaus:   compile(t.BureauRules),
		agencies:  compile(t.AgencyRules),
		fallback:  t.DefaultSector,
		sectors:   append([]lookups.SectorDef(nil), t.Sectors...),
	}
}

func compile(rules []lookups.Rule) []rule {
	out := make([]rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, rule{pattern: identity.Normalize(r.Pattern), sector: r.Sector})
	}
	return out
}

// Classify returns the sector of a program. Empty components never match.
func (c *Classifier) Classify(agency, bureau, account, program string) string {
	prog := identity.Normalize(program)
	acct := identity.Normalize(account)
	for _, r := range c.overrides {
		if (prog != "" && strings.Contains(prog, r.pattern)) ||
			(acct != "" && strings.Contains(acct, r.pattern)) {
			return r.sector
		}
	}
	if s, ok := match(c.bureaus, identity.Normalize(bureau)); ok {
		return s
	}
	if s, ok := match(c.agencies, identity.Normalize(agency)); ok {
		return s
	}
	return c.fallback
}

// match is exact-or-substring; substring covers exact, kept explicit so a
// rule list reads the same as its documentation.
func match(rules []rule, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, r := range rules {
		if r.pattern == name || strings.Contains(name, r.pattern) {
			return r.sector, true
		}
	}
	return "", false
}

// Default returns the catch-all sector.
func (c *Classifier) Default() string { return c.fallback }

// Sectors returns the sector definitions in declaration order.
func (c *Classifier) Sectors() []lookups.SectorDef {
	return append([]lookups.SectorDef(nil), c.sectors...)
}

// Known reports whether id is a defined sector.
func (c *Classifier) Known(id string) bool {
	for _, s := range c.sectors {
		if s.ID == id {
			return true
		}
	}
	return false
}

// DisplayName returns the configured name of a sector, or a title-cased
// rendering of its id.
func (c *Classifier) DisplayName(id string) string {
	for _, s := range c.sectors {
		if s.ID == id && s.Name != "" {
			return s.Name
		}
	}
	return cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
}

// Sector is one entry of the exported taxonomy.
type Sector struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Taxonomy is the JSON document describing the classification scheme.
type Taxonomy struct {
	Sectors                map[string]Sector `json:"sectors"`
	ClassificationPriority []string          `json:"classification_priority"`
	ProgramOverrideCount   int               `json:"program_override_count"`
	BureauRuleCount        int               `json:"bureau_rule_count"`
	AgencyRuleCount        int               `json:"agency_rule_count"`
	DefaultSector          string            `json:"default_sector"`
}

// Taxonomy exports the sectors with rule counts.
func (c *Classifier) Taxonomy() Taxonomy {
	sectors := make(map[string]Sector, len(c.sectors))
	for _, s := range c.sectors {
		sectors[s.ID] = Sector{Name: c.DisplayName(s.ID), Description: s.Description}
	}
	return Taxonomy{
		Sectors:                sectors,
		ClassificationPriority: append([]string(nil), Priority...),
		ProgramOverrideCount:   len(c.overrides),
		BureauRuleCount:        len(c.bureaus),
		AgencyRuleCount:        len(c.agencies),
		DefaultSector:          c.fallback,
	}
}
