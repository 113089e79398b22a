package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BatchGroup fetches objects by id, applying the same template selection to
// every one of them. Its text selects __typename ahead of the template
// children so each returned row carries the type a Node needs; without it
// batch rows could not become nodes or parents of continuations.
type BatchGroup struct {
	id       uuid.UUID
	name     string
	ids      []string
	template *Group
}

// NewBatchGroup panics when given more than 100 ids.
func NewBatchGroup(name string, template *Group, ids []string) *BatchGroup {
	if len(ids) > maxPageSize {
		panic(fmt.Sprintf("query: batch %q has %d ids, at most %d allowed", name, len(ids), maxPageSize))
	}
	return &BatchGroup{
		id:       uuid.New(),
		name:     name,
		ids:      append([]string(nil), ids...),
		template: template,
	}
}

func (b *BatchGroup) ID() uuid.UUID          { return b.id }
func (b *BatchGroup) Name() string           { return b.name }
func (b *BatchGroup) Template() *Group       { return b.template }
func (b *BatchGroup) IDs() []string          { return append([]string(nil), b.ids...) }
func (b *BatchGroup) Fragments() []*Fragment { return b.template.Fragments() }

func (b *BatchGroup) NodeCost() int {
	n := len(b.ids)
	return n + n*b.template.NodeCost()
}

func (b *BatchGroup) QueryText() string {
	quoted := make([]string, len(b.ids))
	for i, id := range b.ids {
		quoted[i] = `"` + id + `"`
	}
	return b.name + "(ids: [" + strings.Join(quoted, ",") + "]) { __typename " + joinText(b.template.children) + " }"
}

// AsShell narrows the batch to batchRootID and prunes the template down to
// target. The result keeps the batch's ID.
func (b *BatchGroup) AsShell(target Element, batchRootID string) Element {
	if target.ID() == b.id {
		return target
	}
	if batchRootID == "" {
		return nil
	}
	shell, ok := b.template.AsShell(target, "").(*Group)
	if !ok {
		return nil
	}
	return &BatchGroup{
		id:       b.id,
		name:     b.name,
		ids:      []string{batchRootID},
		template: shell,
	}
}

func (b *BatchGroup) scan(ctx context.Context, p *scanPass, data any, parent *Node, relationship string) error {
	rows, ok := data.([]any)
	if !ok {
		return nil
	}
	for _, r := range rows {
		row, ok := asObject(r)
		if !ok {
			continue
		}
		if err := b.template.scan(ctx, p, row, parent, relationship); err != nil {
			return err
		}
	}
	return nil
}
