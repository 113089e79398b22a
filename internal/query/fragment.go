package query

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Fragment is a named sub-selection on a type. Two fragments are the same
// declaration when their names match, whatever their children.
type Fragment struct {
	id       uuid.UUID
	name     string
	typeName string
	children []Element
}

// NewFragment declares a fragment on the given type. Its name is derived from
// the type: "Character" becomes "characterFragment".
func NewFragment(on string, children []Element) *Fragment {
	return &Fragment{
		id:       uuid.New(),
		name:     strings.ToLower(on) + "Fragment",
		typeName: on,
		children: append([]Element(nil), children...),
	}
}

func (f *Fragment) ID() uuid.UUID    { return f.id }
func (f *Fragment) Name() string     { return f.name }
func (f *Fragment) TypeName() string { return f.typeName }
func (f *Fragment) QueryText() string {
	return "... " + f.name
}

// Children returns a copy of the fragment's selection.
func (f *Fragment) Children() []Element {
	return append([]Element(nil), f.children...)
}

func (f *Fragment) NodeCost() int { return sumCost(f.children) }

func (f *Fragment) Fragments() []*Fragment {
	return append([]*Fragment{f}, collectFragments(f.children)...)
}

// Declaration renders the fragment definition.
func (f *Fragment) Declaration() string {
	return "fragment " + f.name + " on " + f.typeName + " { __typename " + joinText(f.children) + " }"
}

// Equal reports whether f and other declare the same fragment.
func (f *Fragment) Equal(other *Fragment) bool {
	return other != nil && f.name == other.name
}

// AddingElement returns a copy of f with e appended to its selection.
func (f *Fragment) AddingElement(e Element) *Fragment {
	c := f.clone()
	c.children = append(c.children, e)
	return c
}

func (f *Fragment) AsShell(target Element, _ string) Element {
	if target.ID() == f.id {
		return target
	}
	kept, ok := shellChildren(f.children, target)
	if !ok {
		return nil
	}
	c := f.clone()
	c.children = kept
	return c
}

func (f *Fragment) clone() *Fragment {
	c := *f
	c.children = append([]Element(nil), f.children...)
	return &c
}

func (f *Fragment) scan(ctx context.Context, p *scanPass, data any, parent *Node, _ string) error {
	row, ok := asObject(data)
	if !ok {
		return nil
	}
	return scanChildren(ctx, p, f.children, row, parent)
}

func joinText(children []Element) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.QueryText()
	}
	return strings.Join(parts, " ")
}
