package query

// Node is one object found in a response: anything carrying both "id" and
// "__typename".
type Node struct {
	ID      string
	Type    string
	Payload map[string]any
	// Parent is the closest enclosing node of the same scan, if any.
	Parent *Node
	// Relationship names the field through which the node was reached.
	Relationship string
	// Flags is free for callers; the scan never reads or writes it.
	Flags int
}

// NodeKey identifies a node under its parent.
type NodeKey struct {
	ID       string
	ParentID string
}

// NewNode builds a node from a response object. It reports false when the
// object has no string id or __typename.
func NewNode(payload map[string]any, parent *Node, relationship string) (*Node, bool) {
	id, ok := stringAt(payload, "id")
	if !ok {
		return nil, false
	}
	typ, ok := stringAt(payload, "__typename")
	if !ok {
		return nil, false
	}
	return &Node{
		ID:           id,
		Type:         typ,
		Payload:      payload,
		Parent:       parent,
		Relationship: relationship,
	}, true
}

func (n *Node) Key() NodeKey {
	k := NodeKey{ID: n.ID}
	if n.Parent != nil {
		k.ParentID = n.Parent.ID
	}
	return k
}

// Equal compares nodes by id and parent id.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.Key() == other.Key()
}
