package query

import "github.com/google/uuid"

// Field is a leaf selection.
type Field struct {
	id   uuid.UUID
	name string
}

// IDField selects "id". Shells always keep it where the original selection
// had it.
var IDField = NewField("id")

func NewField(name string) *Field {
	return &Field{id: uuid.New(), name: name}
}

func (f *Field) ID() uuid.UUID          { return f.id }
func (f *Field) Name() string           { return f.name }
func (f *Field) QueryText() string      { return f.name }
func (f *Field) Fragments() []*Fragment { return nil }
func (f *Field) NodeCost() int          { return 0 }

func (f *Field) AsShell(target Element, _ string) Element {
	if target.ID() == f.id {
		return target
	}
	return nil
}

func isIDField(e Element) bool {
	f, ok := e.(*Field)
	return ok && f.name == IDField.name
}
