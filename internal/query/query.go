package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanpama/graphpager/internal/eventbus"
	"github.com/hanpama/graphpager/internal/events"
	"github.com/hanpama/graphpager/internal/language"
	"github.com/hanpama/graphpager/internal/logging"
)

const rateLimitClause = "rateLimit { limit cost remaining resetAt nodeCount }"

// Query is one request/response cycle over a root element.
type Query struct {
	name                string
	root                Scanner
	parent              *Node
	allowsEmptyResponse bool
	checkRate           bool
	perNode             PerNodeFunc
}

type Option func(*Query)

// WithParent scopes the query to the sub-fields of an already known node.
func WithParent(n *Node) Option { return func(q *Query) { q.parent = n } }

// WithAllowEmptyResponse makes a missing root field a successful, empty
// result instead of an APIError.
func WithAllowEmptyResponse() Option { return func(q *Query) { q.allowsEmptyResponse = true } }

// WithoutRateCheck omits the rateLimit clause, for servers that lack it.
func WithoutRateCheck() Option { return func(q *Query) { q.checkRate = false } }

func WithPerNode(fn PerNodeFunc) Option { return func(q *Query) { q.perNode = fn } }

func New(name string, root Scanner, opts ...Option) *Query {
	q := &Query{name: name, root: root, checkRate: true}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Batching splits ids into queries against a BatchGroup named groupName. The
// chunk size is the template's recommended limit for maxCost.
func Batching(name, groupName string, ids []string, maxCost int, fields []Element, opts ...Option) []*Query {
	template := NewGroup("items", fields)
	limit := template.RecommendedLimit(maxCost)
	var queries []*Query
	for len(ids) > 0 {
		n := min(limit, len(ids))
		queries = append(queries, New(name, NewBatchGroup(groupName, template, ids[:n]), opts...))
		ids = ids[n:]
	}
	return queries
}

func (q *Query) Name() string         { return q.name }
func (q *Query) Root() Scanner        { return q.root }
func (q *Query) Parent() *Node        { return q.parent }
func (q *Query) PerNode() PerNodeFunc { return q.perNode }
func (q *Query) NodeCost() int        { return q.root.NodeCost() }
func (q *Query) logPrefix() string    { return fmt.Sprintf("(graphpager '%s') ", q.name) }
func (q *Query) withRoot(r Scanner) *Query {
	c := *q
	c.root = r
	return &c
}

// Rebind returns a copy of q reporting to fn.
func (q *Query) Rebind(fn PerNodeFunc) *Query {
	c := *q
	c.perNode = fn
	return &c
}

// QueryText renders fragment declarations, the root selection and, unless
// disabled, the rateLimit clause. Fragments are declared once per name in the
// order they are first reached.
func (q *Query) QueryText() string {
	var b strings.Builder
	b.WriteString(q.fragmentText())
	b.WriteString(" { ")
	if q.parent != nil {
		b.WriteString(`node(id: "` + q.parent.ID + `") { ... on ` + q.parent.Type + " { " + q.root.QueryText() + " } }")
	} else {
		b.WriteString(q.root.QueryText())
	}
	if q.checkRate {
		b.WriteString(" " + rateLimitClause)
	}
	b.WriteString(" }")
	return b.String()
}

func (q *Query) fragmentText() string {
	seen := map[string]bool{}
	var decls []string
	for _, f := range q.root.Fragments() {
		if seen[f.name] {
			continue
		}
		seen[f.name] = true
		decls = append(decls, f.Declaration())
	}
	return strings.Join(decls, " ")
}

// Document parses the rendered query text.
func (q *Query) Document() (*language.QueryDocument, error) {
	return language.ParseQuery(q.QueryText())
}

// ProcessResponse scans a decoded response, reporting nodes to the query's
// PerNodeFunc, and returns the queries needed to fetch further pages.
func (q *Query) ProcessResponse(ctx context.Context, payload any) ([]*Query, error) {
	start := time.Now()
	eventbus.Publish(ctx, events.ScanStart{Query: q.name, NodeCost: q.NodeCost()})
	if rl, ok := ParseRateLimit(payload); ok {
		eventbus.Publish(ctx, events.RateLimit{
			Query:     q.name,
			Limit:     rl.Limit,
			Cost:      rl.Cost,
			Remaining: rl.Remaining,
			NodeCount: rl.NodeCount,
			ResetAt:   rl.ResetAt,
		})
	}

	p := &scanPass{query: q}
	err := q.process(ctx, p, payload)
	eventbus.Publish(ctx, events.ScanFinish{
		Query:         q.name,
		Nodes:         p.nodes,
		Continuations: len(p.extra),
		Err:           err,
		Duration:      time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return p.extra, nil
}

func (q *Query) process(ctx context.Context, p *scanPass, payload any) error {
	top, ok := q.topData(payload)
	if !ok {
		if q.allowsEmptyResponse {
			return nil
		}
		return &APIError{Message: q.logPrefix() + "Could not read a `data` or `data.node` from payload"}
	}

	log := logging.Ctx(ctx)
	log.Debug().Str("query", q.name).Msg("scanning result")

	relationship := ""
	if q.parent != nil {
		relationship = q.root.Name()
	}
	if err := q.root.scan(ctx, p, top, q.parent, relationship); err != nil && !errors.Is(err, ErrAlreadyParsed) {
		return err
	}

	if err := q.notify(ctx, OutputPageComplete); err != nil {
		return err
	}
	if len(p.extra) > 0 {
		log.Debug().Str("query", q.name).Int("continuations", len(p.extra)).Msg("needs more page data")
		return nil
	}
	log.Debug().Str("query", q.name).Msg("parsed all pages")
	return q.notify(ctx, OutputQueryComplete)
}

func (q *Query) notify(ctx context.Context, kind OutputKind) error {
	if q.perNode == nil {
		return nil
	}
	return swallowAlreadyParsed(q.perNode(ctx, Output{Kind: kind}))
}

func (q *Query) topData(payload any) (any, bool) {
	root, ok := asObject(payload)
	if !ok {
		return nil, false
	}
	data, ok := asObject(root["data"])
	if !ok {
		return nil, false
	}
	if q.parent != nil {
		if data, ok = asObject(data["node"]); !ok {
			return nil, false
		}
	}
	top, ok := data[q.root.Name()]
	if !ok || top == nil {
		return nil, false
	}
	return top, true
}
