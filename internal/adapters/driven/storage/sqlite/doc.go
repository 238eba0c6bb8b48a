// Package sqlite stores sources and sync history in a single SQLite database.
//
// It uses modernc.org/sqlite, a pure Go driver, so the binary stays free of
// CGO. One Store opens the database and hands out the driven.SourceStore and
// driven.HistoryStore views the engine needs. The schema is managed by the
// numbered migrations embedded from the migrations/ directory.
//
// The database runs in WAL mode with a busy timeout so the CLI and a running
// "mirrorsync serve" can share it.
package sqlite
