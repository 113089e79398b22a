package treefile

import (
	"fmt"
	"slices"

	yamlv3 "gopkg.in/yaml.v3"
)

// File is a query described in YAML.
type File struct {
	// Name labels the query in logs and errors.
	Name string `yaml:"name" validate:"required"`

	// CheckRate requests the rateLimit clause. Defaults to true.
	CheckRate *bool `yaml:"checkRate"`

	// AllowEmpty turns a missing root field into an empty result.
	AllowEmpty bool `yaml:"allowEmpty"`

	// Parent scopes the root to an already known node.
	Parent *Parent `yaml:"parent"`

	// Root is the element tree of a single query. Exactly one of Root and
	// Batch is set.
	Root *Element `yaml:"root"`

	// Batch describes an id list split into cost-bounded queries.
	Batch *Batch `yaml:"batch"`
}

// Parent identifies the node a query is scoped to.
type Parent struct {
	ID   string `yaml:"id" validate:"required"`
	Type string `yaml:"type" validate:"required"`
}

// Element is one field, group or fragment. Exactly one of the three name
// keys is set.
type Element struct {
	Field    string     `yaml:"field"`
	Group    string     `yaml:"group"`
	Fragment string     `yaml:"fragment"`
	Params   []Param    `yaml:"params" validate:"dive"`
	Paging   *Paging    `yaml:"paging"`
	Children []*Element `yaml:"children" validate:"dive,required"`

	// Line is the position of the element in the source file.
	Line int `yaml:"-"`
}

type internalElement struct {
	Field    string     `yaml:"field"`
	Group    string     `yaml:"group"`
	Fragment string     `yaml:"fragment"`
	Params   []Param    `yaml:"params"`
	Paging   *Paging    `yaml:"paging"`
	Children []*Element `yaml:"children"`
}

// UnmarshalYAML records the source line of each element. Nested decodes do
// not inherit the decoder's KnownFields setting, so keys are checked here.
func (e *Element) UnmarshalYAML(node *yamlv3.Node) error {
	if err := checkKeys(node, "field", "group", "fragment", "params", "paging", "children"); err != nil {
		return err
	}
	var ie internalElement
	if err := node.Decode(&ie); err != nil {
		return err
	}
	*e = Element{
		Field:    ie.Field,
		Group:    ie.Group,
		Fragment: ie.Fragment,
		Params:   ie.Params,
		Paging:   ie.Paging,
		Children: ie.Children,
		Line:     node.Line,
	}
	return nil
}

// checkKeys fails on mapping keys outside allowed.
func checkKeys(node *yamlv3.Node, allowed ...string) error {
	if node.Kind != yamlv3.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !slices.Contains(allowed, key.Value) {
			return fmt.Errorf("%w: line %d: unknown key %q", ErrInvalid, key.Line, key.Value)
		}
	}
	return nil
}

func (e *Element) kind() string {
	switch {
	case e.Field != "":
		return "field"
	case e.Group != "":
		return "group"
	default:
		return "fragment"
	}
}

func (e *Element) String() string {
	return fmt.Sprintf("%s %q (line %d)", e.kind(), e.Field+e.Group+e.Fragment, e.Line)
}

// Param is a group argument. String values are quoted when rendered unless
// they start with [ or {.
type Param struct {
	Name  string `yaml:"name" validate:"required"`
	Value any    `yaml:"value"`
}

type internalParam Param

func (p *Param) UnmarshalYAML(node *yamlv3.Node) error {
	if err := checkKeys(node, "name", "value"); err != nil {
		return err
	}
	return node.Decode((*internalParam)(p))
}

// Paging selects how a group pages through a connection.
type Paging struct {
	Mode   string `yaml:"mode" validate:"required,oneof=none first last max"`
	Count  int    `yaml:"count" validate:"gte=0,lte=100"`
	Cursor bool   `yaml:"cursor"`
}

type internalPaging Paging

func (p *Paging) UnmarshalYAML(node *yamlv3.Node) error {
	if err := checkKeys(node, "mode", "count", "cursor"); err != nil {
		return err
	}
	return node.Decode((*internalPaging)(p))
}

// Batch is an id list fetched through a batch field.
type Batch struct {
	Group   string     `yaml:"group" validate:"required"`
	IDs     []string   `yaml:"ids" validate:"required,min=1,dive,required"`
	MaxCost int        `yaml:"maxCost" validate:"required,gt=0"`
	Fields  []*Element `yaml:"fields" validate:"required,min=1,dive,required"`
}
