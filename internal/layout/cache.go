package layout

// cache holds every derived layout. It is filled once during Build and only
// read afterwards.
type cache struct {
	structs map[string]*StructLayout
	funcs   map[string]*FuncLayout
	union   UnionLayout
}

func newCache() *cache {
	return &cache{
		structs: make(map[string]*StructLayout, 32),
		funcs:   make(map[string]*FuncLayout, 32),
	}
}

func (c *cache) getStruct(name string) (*StructLayout, bool) {
	if c == nil {
		return nil, false
	}
	l, ok := c.structs[name]
	return l, ok
}

func (c *cache) putStruct(name string, l *StructLayout) {
	if c == nil {
		return
	}
	if l == nil {
		delete(c.structs, name)
		return
	}
	c.structs[name] = l
}
