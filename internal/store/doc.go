// Package store provides SQLite-backed storage for record batches.
//
// A batch is a named set of records. Records of one batch may come from
// several inputs (independently produced sources); the input number is
// what the nested-loop mode compares across.
//
// # Ordering
//
// Every read is ordered by (group key, input, seq) so a batch always
// comes back in the order it was written, regardless of rowid or insert
// timing. Resolving the same batch twice therefore sees the same groups
// in the same order.
//
// # Storage format
//
// Geometry is stored as WKB. Attributes are stored as canonical JSON
// (sorted keys, NFC strings) so that identical bags compare equal as text.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection, which also makes ":memory:" usable
package store
