package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document. It checks syntax only; no schema
// is involved.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SelectionNames lists the response names of the fields in set, skipping
// fragment spreads and inline fragments.
func SelectionNames(set SelectionSet) []string {
	var names []string
	for _, sel := range set {
		if f, ok := sel.(*Field); ok {
			names = append(names, f.Alias)
		}
	}
	return names
}
