package query

// Elements collects its arguments into a new slice.
func Elements(items ...Element) []Element {
	return append([]Element(nil), items...)
}

// Builder accumulates child elements in order. The zero value is ready to use.
type Builder struct {
	items []Element
}

func (b *Builder) Add(items ...Element) *Builder {
	b.items = append(b.items, items...)
	return b
}

// AddIf adds items only when cond holds.
func (b *Builder) AddIf(cond bool, items ...Element) *Builder {
	if cond {
		b.items = append(b.items, items...)
	}
	return b
}

func (b *Builder) AddAll(lists ...[]Element) *Builder {
	for _, l := range lists {
		b.items = append(b.items, l...)
	}
	return b
}

// Build returns a copy of the collected elements.
func (b *Builder) Build() []Element {
	return append([]Element(nil), b.items...)
}
