// Package sqlite persists finalized recording sessions and their sample
// records in SQLite.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary, so a fresh database file is usable without any external files.
package sqlite
