// Package registry assigns stable program identities across budget years.
//
// Every canonical key ever registered maps to a node in a union-find forest.
// Live programs are roots; reconciliation merges a program into another by
// re-parenting its node, so pre-merge keys keep resolving to the survivor
// without rewriting the key table.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/creditscope/internal/identity"
)

// Config configures a Registry.
type Config struct {
	Aliases *identity.Aliases
	Logger  *slog.Logger
}

type program struct {
	seq           int
	id            string
	canonicalName string
	agency        string
	bureau        string
	account       string
	nameVariants  map[string]struct{}
	keyVariants   map[string]struct{}
	years         map[int]struct{}
	nameYears     map[string]int
}

// Registry maps canonical keys to program IDs. It is safe for concurrent use,
// but ID order follows registration order, so callers that need stable IDs
// must register in a deterministic order.
type Registry struct {
	mu      sync.RWMutex
	aliases *identity.Aliases
	logger  *slog.Logger

	keys     map[string]int    // canonical key -> node
	parent   map[int]int       // merged node -> node it was merged into
	programs map[int]*program  // live roots
	retired  map[string]string // merged ID -> ID it was merged into
	next     int
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		aliases:  cfg.Aliases,
		logger:   logger,
		keys:     make(map[string]int),
		parent:   make(map[int]int),
		programs: make(map[int]*program),
		retired:  make(map[string]string),
		next:     1,
	}
}

// FormatID renders a sequence number as a program ID.
func FormatID(seq int) string {
	return fmt.Sprintf("P%03d", seq)
}

// Register records one observation of a program and returns its ID. The
// alias-resolved key is tried first, then the raw key; a new ID is minted only
// when neither is known. Both keys point at the returned ID afterwards.
// Missing hierarchy components are valid and register as empty strings.
func (r *Registry) Register(agency, bureau, account, name string, year int) string {
	raw := identity.CanonicalKey(agency, bureau, account, name)
	resolved := r.aliases.Resolve(raw)
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	seq, ok := r.find(resolved)
	if !ok {
		seq, ok = r.find(raw)
	}
	var p *program
	if ok {
		p = r.programs[seq]
	} else {
		p = r.mint(name, agency, bureau, account)
		r.logger.Debug("program registered",
			slog.String("program_id", p.id),
			slog.String("key", resolved))
	}

	r.bind(raw, p)
	r.bind(resolved, p)
	if year != 0 {
		p.years[year] = struct{}{}
	}
	if name != "" {
		p.nameVariants[name] = struct{}{}
		if y, seen := p.nameYears[name]; year != 0 && (!seen || year > y) {
			p.nameYears[name] = year
		}
	}
	return p.id
}

// GetID looks up an identity without registering it.
func (r *Registry) GetID(agency, bureau, account, name string) (string, bool) {
	raw := identity.CanonicalKey(agency, bureau, account, name)
	resolved := r.aliases.Resolve(raw)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range []string{resolved, raw} {
		if seq, ok := r.find(k); ok {
			return r.programs[seq].id, true
		}
	}
	return "", false
}

// LookupKey resolves a canonical key to the live program ID.
func (r *Registry) LookupKey(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seq, ok := r.find(key)
	if !ok {
		return "", false
	}
	return r.programs[seq].id, true
}

// ResolveID follows merges from a possibly retired ID to the live ID.
func (r *Registry) ResolveID(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := 0; i <= len(r.retired); i++ {
		next, ok := r.retired[id]
		if !ok {
			break
		}
		id = next
	}
	for _, p := range r.programs {
		if p.id == id {
			return id, true
		}
	}
	return "", false
}

// Count returns the number of live programs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// Get returns a copy of one live program.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.programs {
		if p.id == id {
			return p.info(), true
		}
	}
	return Info{}, false
}

// AllPrograms returns a snapshot of every live program keyed by ID.
func (r *Registry) AllPrograms() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Info, len(r.programs))
	for _, p := range r.programs {
		out[p.id] = p.info()
	}
	return out
}

// Programs returns every live program in ID order.
func (r *Registry) Programs() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedInfo()
}

func (r *Registry) sortedInfo() []Info {
	out := make([]Info, 0, len(r.programs))
	for _, p := range r.live() {
		out = append(out, p.info())
	}
	return out
}

// live returns the live programs in sequence order.
func (r *Registry) live() []*program {
	out := make([]*program, 0, len(r.programs))
	for _, p := range r.programs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Registry) mint(name, agency, bureau, account string) *program {
	seq := r.next
	r.next++
	p := &program{
		seq:           seq,
		id:            FormatID(seq),
		canonicalName: name,
		agency:        strings.TrimSpace(agency),
		bureau:        strings.TrimSpace(bureau),
		account:       strings.TrimSpace(account),
		nameVariants:  make(map[string]struct{}),
		keyVariants:   make(map[string]struct{}),
		years:         make(map[int]struct{}),
		nameYears:     make(map[string]int),
	}
	r.programs[seq] = p
	return p
}

// bind points key at p. A key already bound to another program keeps its
// first binding.
func (r *Registry) bind(key string, p *program) {
	if seq, ok := r.keys[key]; ok {
		if r.root(seq) != p.seq {
			return
		}
	} else {
		r.keys[key] = p.seq
	}
	p.keyVariants[key] = struct{}{}
}

// find returns the root node for key.
func (r *Registry) find(key string) (int, bool) {
	seq, ok := r.keys[key]
	if !ok {
		return 0, false
	}
	return r.root(seq), true
}

func (r *Registry) root(seq int) int {
	for {
		up, ok := r.parent[seq]
		if !ok {
			return seq
		}
		seq = up
	}
}

// compress re-points every merged node directly at its root.
func (r *Registry) compress() {
	for seq := range r.parent {
		r.parent[seq] = r.root(seq)
	}
}
