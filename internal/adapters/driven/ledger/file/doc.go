// Package file implements the durable ingestion ledger on a single
// append-only JSONL log with a point-in-time snapshot side-file.
//
// Durability discipline: every transition is encoded, appended, and
// fsynced before the in-memory map is updated and before the call
// returns. A crash between append and map update is recovered by replay
// on the next load.
//
// Snapshot discovery convention: the snapshot lives at
// "<log>.snapshot.json", always written to a temp file and renamed into
// place. An interrupted snapshot write leaves the previous snapshot and
// an untruncated log, which remain mutually consistent; the convention
// is therefore unambiguous even across a crash mid-snapshot.
package file
