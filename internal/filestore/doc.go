// Package filestore implements executors over flat files: one JSON or CSV
// document per model in a directory.
//
// FILES:
//
//	<dir>/<model>.json   a JSON array of objects, keys in schema order
//	<dir>/<model>.csv    a header of storage names, then one line per record
//
// A missing file is an empty document. JSON documents are checked against a
// JSON Schema derived from the model (gojsonschema): undeclared keys and
// values of the wrong type are SCHEMA_MISMATCH. CSV headers must only name
// declared columns and must contain every column an operation references.
// CSV writes null as \N. An empty CSV field is an empty string in string
// columns and null elsewhere.
//
// Int keys come from a per-document high-water mark kept next to the
// document (.<model>.<format>.seq), so keys of deleted rows are not reused.
//
// REVISIONS:
//
// A revision is a write batch. The first write to a model loads its document
// into the batch; later operations in the same revision see the staged rows.
// Commit rewrites every touched document atomically (temp file, fsync,
// rename), in model name order. Rollback discards the batch.
//
// STREAMING:
//
// Documents are written in key order. A select without an ordering, on a
// document the batch has not staged, checks that order in one pass and then
// reads the open file row by row, stopping at the end of its window.
// Ordered selects and documents out of key order are loaded whole and
// sorted.
//
// The package assumes a single writer per directory.
package filestore
