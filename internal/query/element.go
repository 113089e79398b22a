package query

import (
	"context"

	"github.com/google/uuid"
)

// Element is a node of the query schema tree.
type Element interface {
	// ID identifies the element instance. Clones keep the ID of the element
	// they were derived from.
	ID() uuid.UUID
	// Name is the selection name as it appears in query text and responses.
	Name() string
	// QueryText renders the selection.
	QueryText() string
	// Fragments lists every fragment reachable from this element, including
	// duplicates.
	Fragments() []*Fragment
	// NodeCost estimates the execution cost of the selection.
	NodeCost() int
	// AsShell returns the smallest copy of this element that still leads to
	// target, or nil when target is not part of this tree. batchRootID narrows
	// a BatchGroup root down to the single object being continued.
	AsShell(target Element, batchRootID string) Element
}

// Scanner is an Element that can consume a slice of a response payload.
// Fragment, Group and BatchGroup are the only implementations.
type Scanner interface {
	Element
	scan(ctx context.Context, p *scanPass, data any, parent *Node, relationship string) error
}

// scanPass holds the state of one ProcessResponse call.
type scanPass struct {
	query *Query
	extra []*Query
	nodes int
}

func (p *scanPass) emitNode(ctx context.Context, n *Node) error {
	p.nodes++
	if p.query.perNode == nil {
		return nil
	}
	return p.query.perNode(ctx, Output{Kind: OutputNode, Node: n})
}

// scanChildren dispatches row to every scanning child. Fragments receive the
// whole row, other scanners receive the value stored under their name.
func scanChildren(ctx context.Context, p *scanPass, children []Element, row map[string]any, parent *Node) error {
	for _, child := range children {
		s, ok := child.(Scanner)
		if !ok {
			continue
		}
		if _, isFragment := s.(*Fragment); isFragment {
			if err := s.scan(ctx, p, row, parent, ""); err != nil {
				return err
			}
			continue
		}
		value, ok := row[s.Name()]
		if !ok {
			continue
		}
		if err := s.scan(ctx, p, value, parent, s.Name()); err != nil {
			return err
		}
	}
	return nil
}

// shellChildren derives shells for children. It reports false when no child
// leads to target. Otherwise the id field is kept next to the surviving
// children so that continuation rows remain identifiable.
func shellChildren(children []Element, target Element) ([]Element, bool) {
	shells := make([]Element, len(children))
	found := false
	for i, c := range children {
		if s := c.AsShell(target, ""); s != nil {
			shells[i] = s
			found = true
		}
	}
	if !found {
		return nil, false
	}
	kept := make([]Element, 0, len(children))
	for i, c := range children {
		switch {
		case shells[i] != nil:
			kept = append(kept, shells[i])
		case isIDField(c):
			kept = append(kept, c)
		}
	}
	return kept, true
}

func sumCost(children []Element) int {
	total := 0
	for _, c := range children {
		total += c.NodeCost()
	}
	return total
}

func collectFragments(children []Element) []*Fragment {
	var out []*Fragment
	for _, c := range children {
		out = append(out, c.Fragments()...)
	}
	return out
}
