package treefile

import (
	"fmt"

	"github.com/hanpama/graphpager/internal/query"
)

// Build turns the file into queries reporting to perNode. A batch file may
// produce several queries.
func (f *File) Build(perNode query.PerNodeFunc) ([]*query.Query, error) {
	opts := f.options(perNode)

	if f.Batch != nil {
		fields, err := buildAll(f.Batch.Fields)
		if err != nil {
			return nil, err
		}
		return query.Batching(f.Name, f.Batch.Group, f.Batch.IDs, f.Batch.MaxCost, fields, opts...), nil
	}

	root, err := build(f.Root)
	if err != nil {
		return nil, err
	}
	scanner, ok := root.(query.Scanner)
	if !ok {
		return nil, fmt.Errorf("%w: root %s must be a group or fragment", ErrInvalid, f.Root)
	}
	return []*query.Query{query.New(f.Name, scanner, opts...)}, nil
}

func (f *File) options(perNode query.PerNodeFunc) []query.Option {
	var opts []query.Option
	if f.CheckRate != nil && !*f.CheckRate {
		opts = append(opts, query.WithoutRateCheck())
	}
	if f.AllowEmpty {
		opts = append(opts, query.WithAllowEmptyResponse())
	}
	if f.Parent != nil {
		opts = append(opts, query.WithParent(&query.Node{ID: f.Parent.ID, Type: f.Parent.Type}))
	}
	if perNode != nil {
		opts = append(opts, query.WithPerNode(perNode))
	}
	return opts
}

func build(e *Element) (query.Element, error) {
	switch {
	case e.Field == "id":
		return query.IDField, nil
	case e.Field != "":
		return query.NewField(e.Field), nil
	case e.Fragment != "":
		children, err := buildAll(e.Children)
		if err != nil {
			return nil, err
		}
		return query.NewFragment(e.Fragment, children), nil
	default:
		children, err := buildAll(e.Children)
		if err != nil {
			return nil, err
		}
		var opts []query.GroupOption
		if e.Paging != nil {
			opts = append(opts, query.WithPaging(paging(e.Paging)))
		}
		for _, p := range e.Params {
			opts = append(opts, query.WithParam(p.Name, p.Value))
		}
		return query.NewGroup(e.Group, children, opts...), nil
	}
}

func buildAll(list []*Element) ([]query.Element, error) {
	var b query.Builder
	for _, e := range list {
		el, err := build(e)
		if err != nil {
			return nil, err
		}
		b.Add(el)
	}
	return b.Build(), nil
}

func paging(p *Paging) query.Paging {
	switch p.Mode {
	case "first":
		return query.First(p.Count, p.Cursor)
	case "last":
		return query.Last(p.Count)
	case "max":
		return query.Max()
	default:
		return query.NoPaging
	}
}
