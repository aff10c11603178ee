package identity

// Aliases maps normalized names to the normalized name of the same
// real-world entity, for renames between budget cycles.
type Aliases struct {
	m map[string]string
}

// NewAliases normalizes both sides of every pair.
func NewAliases(pairs map[string]string) *Aliases {
	a := &Aliases{m: make(map[string]string, len(pairs))}
	for from, to := range pairs {
		a.m[Normalize(from)] = Normalize(to)
	}
	return a
}

// Len returns the number of alias pairs.
func (a *Aliases) Len() int {
	if a == nil {
		return 0
	}
	return len(a.m)
}

// Lookup returns the alias target of a normalized name.
func (a *Aliases) Lookup(name string) (string, bool) {
	if a == nil {
		return "", false
	}
	to, ok := a.m[name]
	return to, ok
}

// Resolve rewrites the program component of a canonical key, then the bureau
// component, through the alias table. Malformed keys are returned unchanged.
func (a *Aliases) Resolve(key string) string {
	parts, ok := Split(key)
	if !ok || a.Len() == 0 {
		return key
	}
	if to, ok := a.m[parts[3]]; ok {
		parts[3] = to
	}
	if to, ok := a.m[parts[1]]; ok {
		parts[1] = to
	}
	return parts[0] + Sep + parts[1] + Sep + parts[2] + Sep + parts[3]
}
