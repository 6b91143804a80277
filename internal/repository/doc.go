// Package repository defines the snapshot storage interface used for
// autosave and crash recovery.
//
// # Repository Interface
//
// SnapshotStore keeps the latest snapshot of every open document, keyed by
// the document's structure path. Snapshots hold everything the DGML pair on
// disk holds plus the pin bindings, so a recovered document is identical to
// the one being edited.
//
// # SQLite Implementation
//
// The sqlite subpackage stores snapshots in normalised tables (documents,
// nodes, pins, edges) using the pure Go modernc.org/sqlite driver. Each save
// replaces the previous snapshot of the document in a single transaction.
//
// # Schema Migration
//
// The schema is created on startup with IF NOT EXISTS statements, so opening
// an existing database is safe.
package repository
