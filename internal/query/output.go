package query

import "context"

// OutputKind tells what a PerNodeFunc call reports.
type OutputKind int

const (
	// OutputNode carries one scanned node.
	OutputNode OutputKind = iota + 1
	// OutputPageComplete follows the last node of a response.
	OutputPageComplete
	// OutputQueryComplete follows OutputPageComplete when no continuation
	// query is needed.
	OutputQueryComplete
)

func (k OutputKind) String() string {
	switch k {
	case OutputNode:
		return "node"
	case OutputPageComplete:
		return "pageComplete"
	case OutputQueryComplete:
		return "queryComplete"
	default:
		return "unknown"
	}
}

type Output struct {
	Kind OutputKind
	Node *Node
}

// PerNodeFunc receives scan output. Returning ErrAlreadyParsed stops the
// current list; any other error aborts the scan.
type PerNodeFunc func(ctx context.Context, out Output) error
