// Package harness runs resolve scenarios end to end.
//
// A scenario is a YAML file holding a mode, optional side inputs (grid,
// ROIs, raster metadata) and one or more batches of records written as
// WKT. Run stores the batches in a fresh in-memory database, resolves
// them through the engine exactly as the resolve command does, and
// evaluates the scenario's assertions against the output batch.
//
// Runs are deterministic: ids come from sequence generators and groups
// are resolved one at a time, so the output of a scenario can be compared
// against a golden snapshot (see RunWithGolden).
//
// # Assertions
//
//   - count: number of output records, optionally of one class
//   - no_overlap: no two output records share positive area
//   - coverage: the output covers exactly the union of the live inputs
//   - class_at: the record covering (x, y) has the given class
//     (an empty class asserts that nothing covers the point)
//   - membership_zero: every output record has membership 0
//   - distinct_ids: output ids are unique and every record is valid
//   - parent: every output record (optionally of one class) has the parent
package harness
