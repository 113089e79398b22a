// Package query builds GraphQL query text from a tree of schema elements and
// scans response payloads back into a stream of typed nodes.
//
// # Elements
//
// A query is described as a tree of Elements:
//   - Field: a scalar selection. IDField is the shared "id" field.
//   - Fragment: a named sub-selection on a type. Fragments with the same name
//     are declared once per query.
//   - Group: a selection with children, optionally paginated (first N, last N,
//     or up to 100 rows with cursor tracking) and with extra arguments.
//   - BatchGroup: fetches up to 100 objects by id against one template Group.
//
// Elements are immutable. Operations that "modify" an element (adding a
// cursor, pruning children) return a clone that keeps the original ID, so an
// element can still be located after it was rewritten.
//
// # Cost
//
// Every element estimates how expensive it is to execute. Paginated groups
// multiply their children's cost by the number of rows they may return, and
// Group.RecommendedLimit turns a budget into a row count between 1 and 100.
// Batching uses that limit to split long id lists into several queries.
//
// # Scanning
//
// Query.ProcessResponse walks a decoded response. Every object carrying both
// "id" and "__typename" becomes a Node and is reported to the query's
// PerNodeFunc before any of its children. Objects without them are treated as
// pass-through containers. When a cursor-tracked Group reports another page
// and the page belongs to a known parent node, the scan derives a shell of the
// root element (the minimal tree leading to that Group, with the new cursor)
// and returns it as a continuation Query. Callers keep issuing continuation
// queries until none are returned.
//
// A PerNodeFunc may return ErrAlreadyParsed to stop reading the rest of the
// current list once it reaches data it has seen before. The signal never
// escapes ProcessResponse.
package query
