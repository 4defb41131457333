package availcache

// Override forces the attributes of one entity. URLs is optional; platforms
// without a URL get a search reference.
type Override struct {
	Platforms map[Platform]Status
	URLs      map[Platform]string
}

// OverrideTable is a static id -> Override mapping consulted before any
// provider. It is never mutated after construction; the zero value and nil are
// empty tables.
type OverrideTable struct {
	m map[string]Override
}

func NewOverrideTable(m map[string]Override) *OverrideTable {
	cp := make(map[string]Override, len(m))
	for id, o := range m {
		ps := make(map[Platform]Status, len(o.Platforms))
		for p, s := range o.Platforms {
			ps[p] = s
		}
		var urls map[Platform]string
		if len(o.URLs) > 0 {
			urls = make(map[Platform]string, len(o.URLs))
			for p, u := range o.URLs {
				urls[p] = u
			}
		}
		cp[id] = Override{Platforms: ps, URLs: urls}
	}
	return &OverrideTable{m: cp}
}

func (t *OverrideTable) Lookup(entityID string) (Override, bool) {
	if t == nil {
		return Override{}, false
	}
	o, ok := t.m[entityID]
	return o, ok
}

func (t *OverrideTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}

func (o Override) attributes(search SearchURLFunc, displayName string) map[Platform]Attribute {
	out := make(map[Platform]Attribute, len(Platforms))
	for _, p := range Platforms {
		st := o.Platforms[p]
		u := o.URLs[p]
		if u == "" {
			u = search(p, displayName)
		}
		out[p] = Attribute{Status: st, URL: u}
	}
	return out
}
