// Package engine runs a resolver over every group of a stored batch.
//
// A run reads the input batch grouped by tile, parent or id, resolves the
// groups concurrently on a bounded worker pool, then writes the output
// batch in one transaction, in group key order.
//
// Groups share nothing but the read-only side inputs held by the
// resolver, so no locking is needed between them. Output ids are made
// unique across the whole output batch before anything is written.
//
// A side input that cannot be loaded fails the run: partially resolved
// output would silently drop the groups that needed it. Per-record
// problems (invalid geometry, out-of-range records, tiny fragments) are
// only counted.
package engine
