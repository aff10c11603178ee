package registry

import (
	"fmt"
	"sort"
)

// Info is a read-only view of a program identity.
type Info struct {
	ID              string         `json:"program_id"`
	Seq             int            `json:"seq"`
	CanonicalName   string         `json:"canonical_name"`
	Agency          string         `json:"agency"`
	Bureau          string         `json:"bureau"`
	Account         string         `json:"account"`
	NameVariants    []string       `json:"name_variants"`
	KeyVariants     []string       `json:"key_variants"`
	BudgetYearsSeen []int          `json:"budget_years_seen"`
	NameYears       map[string]int `json:"name_years"`
}

func (p *program) info() Info {
	nameYears := make(map[string]int, len(p.nameYears))
	for k, v := range p.nameYears {
		nameYears[k] = v
	}
	return Info{
		ID:              p.id,
		Seq:             p.seq,
		CanonicalName:   p.canonicalName,
		Agency:          p.agency,
		Bureau:          p.bureau,
		Account:         p.account,
		NameVariants:    sortedKeys(p.nameVariants),
		KeyVariants:     sortedKeys(p.keyVariants),
		BudgetYearsSeen: sortedYears(p.years),
		NameYears:       nameYears,
	}
}

// Snapshot is the persistable state of a registry.
type Snapshot struct {
	Programs []Info            `json:"programs"`
	Keys     map[string]string `json:"keys"`
	Retired  map[string]string `json:"retired"`
	NextSeq  int               `json:"next_seq"`
}

// Snapshot captures live programs, every key's live ID and the retired IDs.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Programs: r.sortedInfo(),
		Keys:     make(map[string]string, len(r.keys)),
		Retired:  make(map[string]string, len(r.retired)),
		NextSeq:  r.next,
	}
	for k, seq := range r.keys {
		s.Keys[k] = r.programs[r.root(seq)].id
	}
	for from, to := range r.retired {
		s.Retired[from] = to
	}
	return s
}

// Restore replaces the registry's state with a snapshot so later
// registrations reuse persisted IDs.
func (r *Registry) Restore(s Snapshot) error {
	programs := make(map[int]*program, len(s.Programs))
	byID := make(map[string]int, len(s.Programs))
	next := s.NextSeq
	for _, info := range s.Programs {
		if info.Seq <= 0 || info.ID == "" {
			return fmt.Errorf("invalid program %q in snapshot", info.ID)
		}
		if _, dup := programs[info.Seq]; dup {
			return fmt.Errorf("duplicate program sequence %d in snapshot", info.Seq)
		}
		p := &program{
			seq:           info.Seq,
			id:            info.ID,
			canonicalName: info.CanonicalName,
			agency:        info.Agency,
			bureau:        info.Bureau,
			account:       info.Account,
			nameVariants:  toSet(info.NameVariants),
			keyVariants:   toSet(info.KeyVariants),
			years:         make(map[int]struct{}, len(info.BudgetYearsSeen)),
			nameYears:     make(map[string]int, len(info.NameYears)),
		}
		for _, y := range info.BudgetYearsSeen {
			p.years[y] = struct{}{}
		}
		for k, v := range info.NameYears {
			p.nameYears[k] = v
		}
		programs[p.seq] = p
		byID[p.id] = p.seq
		if p.seq >= next {
			next = p.seq + 1
		}
	}

	keys := make(map[string]int, len(s.Keys))
	for k, id := range s.Keys {
		seq, ok := byID[id]
		if !ok {
			return fmt.Errorf("key %q points at unknown program %s", k, id)
		}
		keys[k] = seq
	}

	retired := make(map[string]string, len(s.Retired))
	for from, to := range s.Retired {
		retired[from] = to
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs = programs
	r.keys = keys
	r.parent = make(map[int]int)
	r.retired = retired
	if next < 1 {
		next = 1
	}
	r.next = next
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedYears(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for y := range m {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		out[v] = struct{}{}
	}
	return out
}
