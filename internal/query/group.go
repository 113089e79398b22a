package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hanpama/graphpager/internal/logging"
)

// maxPageSize is the largest page or batch the protocol serves.
const maxPageSize = 100

// PagingMode selects how a Group pages through a connection.
type PagingMode int

const (
	PagingNone PagingMode = iota
	// PagingFirst requests the first Count rows, optionally tracking cursors.
	PagingFirst
	// PagingLast requests the last Count rows without cursor tracking.
	PagingLast
	// PagingMax requests pages of 100 rows and follows cursors.
	PagingMax
)

// Paging describes a Group's pagination.
type Paging struct {
	Mode   PagingMode
	Count  int
	Cursor bool
}

var NoPaging = Paging{}

func First(count int, cursor bool) Paging {
	return Paging{Mode: PagingFirst, Count: count, Cursor: cursor}
}

func Last(count int) Paging {
	return Paging{Mode: PagingLast, Count: count}
}

func Max() Paging {
	return Paging{Mode: PagingMax, Count: maxPageSize, Cursor: true}
}

// Param is an extra argument rendered after the paging arguments.
type Param struct {
	Name  string
	Value any
}

// Group is a selection with children, optionally paginated.
type Group struct {
	id         uuid.UUID
	name       string
	children   []Element
	paging     Paging
	params     []Param
	lastCursor string
}

type GroupOption func(*Group)

func WithPaging(p Paging) GroupOption { return func(g *Group) { g.paging = p } }

// WithParam adds an argument. Strings are quoted unless they start with '['
// or '{'; other values are rendered as literals.
func WithParam(name string, value any) GroupOption {
	return func(g *Group) { g.params = append(g.params, Param{Name: name, Value: value}) }
}

func NewGroup(name string, children []Element, opts ...GroupOption) *Group {
	g := &Group{
		id:       uuid.New(),
		name:     name,
		children: append([]Element(nil), children...),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Group) ID() uuid.UUID  { return g.id }
func (g *Group) Name() string   { return g.name }
func (g *Group) Paging() Paging { return g.paging }

// Cursor returns the cursor the group continues after, if any.
func (g *Group) Cursor() (string, bool) { return g.lastCursor, g.lastCursor != "" }

func (g *Group) Children() []Element {
	return append([]Element(nil), g.children...)
}

// WithCursor returns a copy of g that continues after cursor.
func (g *Group) WithCursor(cursor string) *Group {
	c := g.clone()
	c.lastCursor = cursor
	return c
}

func (g *Group) clone() *Group {
	c := *g
	c.children = append([]Element(nil), g.children...)
	c.params = append([]Param(nil), g.params...)
	return &c
}

func (g *Group) Fragments() []*Fragment { return collectFragments(g.children) }

func (g *Group) NodeCost() int {
	childCost := sumCost(g.children)
	switch g.paging.Mode {
	case PagingMax:
		return maxPageSize + childCost*maxPageSize
	case PagingFirst, PagingLast:
		return g.paging.Count + childCost*g.paging.Count
	default:
		return childCost
	}
}

// RecommendedLimit returns how many rows of this group fit in maximumCost,
// between 1 and 100. A group without cost always gets 100.
func (g *Group) RecommendedLimit(maximumCost int) int {
	cost := g.NodeCost()
	if cost == 0 {
		return maxPageSize
	}
	return min(maxPageSize, max(1, maximumCost/cost))
}

type queryFormat int

const (
	formatItem queryFormat = iota
	formatList
	formatPagedList
)

func (g *Group) QueryText() string {
	var args []string
	format := formatItem

	switch g.paging.Mode {
	case PagingLast:
		format = formatList
		args = append(args, "last: "+strconv.Itoa(g.paging.Count))
	case PagingMax:
		format = formatPagedList
		args = append(args, "first: "+strconv.Itoa(maxPageSize))
		if g.lastCursor != "" {
			args = append(args, `after: "`+g.lastCursor+`"`)
		}
	case PagingFirst:
		args = append(args, "first: "+strconv.Itoa(g.paging.Count))
		if g.paging.Cursor {
			format = formatPagedList
			if g.lastCursor != "" {
				args = append(args, `after: "`+g.lastCursor+`"`)
			}
		} else {
			format = formatList
		}
	}

	for _, p := range g.params {
		args = append(args, renderParam(p))
	}

	head := g.name
	if len(args) > 0 {
		head += "(" + strings.Join(args, ", ") + ")"
	}

	body := "__typename " + joinText(g.children)
	switch format {
	case formatList:
		return head + " { edges { node { " + body + " } } }"
	case formatPagedList:
		return head + " { edges { node { " + body + " } cursor } pageInfo { hasNextPage } }"
	default:
		return head + " { " + body + " }"
	}
}

func renderParam(p Param) string {
	if s, ok := p.Value.(string); ok && !strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "{") {
		return p.Name + `: "` + s + `"`
	}
	return p.Name + ": " + fmt.Sprint(p.Value)
}

func (g *Group) AsShell(target Element, _ string) Element {
	if target.ID() == g.id {
		return target
	}
	kept, ok := shellChildren(g.children, target)
	if !ok {
		return nil
	}
	c := g.clone()
	c.children = kept
	return c
}

func (g *Group) scan(ctx context.Context, p *scanPass, data any, parent *Node, relationship string) error {
	var err error
	switch v := data.(type) {
	case []any:
		err = g.scanList(ctx, p, v, parent, relationship)
	case map[string]any:
		if edges, ok := v["edges"].([]any); ok {
			err = g.scanEdges(ctx, p, edges, v["pageInfo"], parent, relationship)
		} else {
			err = swallowAlreadyParsed(g.scanNode(ctx, p, v, parent, relationship))
		}
	}
	if err != nil {
		return err
	}
	if len(p.extra) > 0 {
		logging.Ctx(ctx).Debug().
			Str("query", p.query.name).
			Str("group", g.name).
			Int("continuations", len(p.extra)).
			Msg("group will need further paging")
	}
	return nil
}

func (g *Group) scanList(ctx context.Context, p *scanPass, rows []any, parent *Node, relationship string) error {
	for _, r := range rows {
		row, ok := asObject(r)
		if !ok {
			continue
		}
		if err := g.scanNode(ctx, p, row, parent, relationship); err != nil {
			// exhausted new nodes
			return swallowAlreadyParsed(err)
		}
	}
	return nil
}

func (g *Group) scanEdges(ctx context.Context, p *scanPass, edges []any, pageInfo any, parent *Node, relationship string) error {
	for _, e := range edges {
		edge, ok := asObject(e)
		if !ok {
			continue
		}
		row, ok := asObject(edge["node"])
		if !ok {
			continue
		}
		if err := g.scanNode(ctx, p, row, parent, relationship); err != nil {
			return swallowAlreadyParsed(err)
		}
	}

	if parent == nil || len(edges) == 0 {
		return nil
	}
	lastEdge, _ := asObject(edges[len(edges)-1])
	cursor, ok := stringAt(lastEdge, "cursor")
	if !ok || cursor == "" {
		return nil
	}
	info, _ := asObject(pageInfo)
	if !boolAt(info, "hasNextPage") {
		return nil
	}
	next := g.WithCursor(cursor)
	if shell, ok := p.query.root.AsShell(next, parent.ID).(Scanner); ok {
		p.extra = append(p.extra, p.query.withRoot(shell))
	}
	return nil
}

func (g *Group) scanNode(ctx context.Context, p *scanPass, row map[string]any, parent *Node, relationship string) error {
	resolved := parent
	if n, ok := NewNode(row, parent, relationship); ok {
		if err := p.emitNode(ctx, n); err != nil {
			return err
		}
		resolved = n
	}
	// without id and type this level is a container; its children keep the
	// current parent
	return scanChildren(ctx, p, g.children, row, resolved)
}
