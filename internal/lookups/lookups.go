// Package lookups holds the hand-curated tables the pipeline depends on:
// known bureau labels, program aliases, sector rules and agency display
// mappings. Defaults are embedded; a YAML file can extend them.
package lookups

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Rule maps a normalized pattern to a sector id.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Sector  string `yaml:"sector"`
}

// SectorDef describes one sector.
type SectorDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// AgencyTables maps raw agency labels to reporting departments.
type AgencyTables struct {
	Exclude            []string          `yaml:"exclude"`
	Clean              []string          `yaml:"clean"`
	Renames            map[string]string `yaml:"renames"`
	ProgramNames       map[string]string `yaml:"program_names"`
	Bureaus            map[string]string `yaml:"bureaus"`
	DepartmentVariants map[string]string `yaml:"department_variants"`
	ProgramAgencies    map[string]string `yaml:"program_agencies"`
}

// AllTables is the Bureaus key whose labels apply to every table.
const AllTables = 0

// Tables is the full lookup set.
type Tables struct {
	// Bureaus lists the known bureau labels of each FCS table.
	Bureaus          map[int][]string  `yaml:"bureaus"`
	Aliases          map[string]string `yaml:"aliases"`
	DefaultSector    string            `yaml:"default_sector"`
	Sectors          []SectorDef       `yaml:"sectors"`
	ProgramOverrides []Rule            `yaml:"program_overrides"`
	BureauRules      []Rule            `yaml:"bureau_rules"`
	AgencyRules      []Rule            `yaml:"agency_rules"`
	Agencies         AgencyTables      `yaml:"agencies"`
}

// Default returns a fresh copy of the embedded tables.
func Default() *Tables {
	t, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("lookups: embedded defaults are invalid: %v", err))
	}
	return t
}

// Parse decodes and validates a lookup document.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse lookups: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load returns the defaults extended by the file at path. An empty path
// returns the defaults.
func Load(path string) (*Tables, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lookups file: %w", err)
	}
	var extra Tables
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse lookups file %s: %w", path, err)
	}
	base.Merge(&extra)
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lookups file %s: %w", path, err)
	}
	return base, nil
}

// Merge extends t with o. Bureaus and aliases are added; o's rules take
// priority over t's; agency mappings in o replace those in t. Sectors are
// fixed and are not merged.
func (t *Tables) Merge(o *Tables) {
	if len(o.Bureaus) > 0 && t.Bureaus == nil {
		t.Bureaus = make(map[int][]string, len(o.Bureaus))
	}
	for table, labels := range o.Bureaus {
		t.Bureaus[table] = appendUnique(t.Bureaus[table], labels)
	}
	t.Aliases = mergeMap(t.Aliases, o.Aliases)
	t.ProgramOverrides = append(append([]Rule{}, o.ProgramOverrides...), t.ProgramOverrides...)
	t.BureauRules = append(append([]Rule{}, o.BureauRules...), t.BureauRules...)
	t.AgencyRules = append(append([]Rule{}, o.AgencyRules...), t.AgencyRules...)
	if o.DefaultSector != "" {
		t.DefaultSector = o.DefaultSector
	}

	a := &t.Agencies
	a.Exclude = append(a.Exclude, o.Agencies.Exclude...)
	a.Clean = append(a.Clean, o.Agencies.Clean...)
	a.Renames = mergeMap(a.Renames, o.Agencies.Renames)
	a.ProgramNames = mergeMap(a.ProgramNames, o.Agencies.ProgramNames)
	a.Bureaus = mergeMap(a.Bureaus, o.Agencies.Bureaus)
	a.DepartmentVariants = mergeMap(a.DepartmentVariants, o.Agencies.DepartmentVariants)
	a.ProgramAgencies = mergeMap(a.ProgramAgencies, o.Agencies.ProgramAgencies)
}

// Validate checks that every rule points at a defined sector.
func (t *Tables) Validate() error {
	if len(t.Sectors) == 0 {
		return fmt.Errorf("no sectors defined")
	}
	known := make(map[string]struct{}, len(t.Sectors))
	for _, s := range t.Sectors {
		if s.ID == "" {
			return fmt.Errorf("sector with empty id")
		}
		known[s.ID] = struct{}{}
	}
	for table := range t.Bureaus {
		if table < AllTables {
			return fmt.Errorf("bureaus: invalid table %d", table)
		}
	}
	if _, ok := known[t.DefaultSector]; !ok {
		return fmt.Errorf("default sector %q is not defined", t.DefaultSector)
	}
	for name, rules := range map[string][]Rule{
		"program_overrides": t.ProgramOverrides,
		"bureau_rules":      t.BureauRules,
		"agency_rules":      t.AgencyRules,
	} {
		for i, r := range rules {
			if r.Pattern == "" {
				return fmt.Errorf("%s[%d]: empty pattern", name, i)
			}
			if _, ok := known[r.Sector]; !ok {
				return fmt.Errorf("%s[%d]: unknown sector %q", name, i, r.Sector)
			}
		}
	}
	return nil
}

// appendUnique appends the labels of src missing from dst.
func appendUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, b := range dst {
		seen[b] = struct{}{}
	}
	for _, b := range src {
		if _, ok := seen[b]; !ok {
			dst = append(dst, b)
			seen[b] = struct{}{}
		}
	}
	return dst
}

func mergeMap(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
