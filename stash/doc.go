// Package stash provides disk-backed, re-iterable record sequences with
// external sorting and deduplication.
//
// A Stash bounds peak memory for batch pipelines: rows are spilled to a
// compressed backing file as they are written, and every stage downstream
// re-reads them from disk instead of holding them in memory. SortDedup runs
// an external merge sort (bounded in-memory runs, k-way merge) so sequences
// far larger than RAM can be ordered and deduplicated.
//
// All backing files live under a Tracker, a run-scoped temporary directory
// that is removed in full by Tracker.Close, including on error paths.
//
// Row ordering is defined by the encoded bytes: a Codec must serialize rows
// so that bytes.Compare on the encoded form matches the intended logical
// order. The codecs in this package (String, StringPair, StringU32, U32Pair)
// satisfy that contract.
package stash
