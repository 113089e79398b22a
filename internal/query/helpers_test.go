package query

import (
	"context"
	"fmt"
	"testing"
)

// recorder collects scan output as readable strings:
// "node <type>:<id> parent=<id> rel=<relationship>", "pageComplete", "queryComplete".
type recorder struct {
	events []string
	nodes  []*Node
	stopAt string
}

func (r *recorder) perNode(_ context.Context, out Output) error {
	if out.Kind != OutputNode {
		r.events = append(r.events, out.Kind.String())
		return nil
	}
	n := out.Node
	parent := "-"
	if n.Parent != nil {
		parent = n.Parent.ID
	}
	r.events = append(r.events, fmt.Sprintf("node %s:%s parent=%s rel=%s", n.Type, n.ID, parent, n.Relationship))
	r.nodes = append(r.nodes, n)
	if r.stopAt != "" && n.ID == r.stopAt {
		return ErrAlreadyParsed
	}
	return nil
}

func mustDecode(t *testing.T, body string) any {
	t.Helper()
	v, err := DecodeResponse([]byte(body))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return v
}

func rickAndMortySchema() *Group {
	return NewGroup("characters", Elements(
		NewGroup("results", Elements(
			IDField,
			NewField("name"),
			NewField("status"),
			NewGroup("location", Elements(
				IDField,
				NewField("name"),
				NewField("type"),
			)),
		)),
	), WithParam("filter", `{ name: "Rick" }`))
}
