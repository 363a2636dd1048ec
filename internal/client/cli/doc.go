// Package cli is the vaultsync command-line client.
//
// Every command works against the local SQLite mirror first. Commands that
// need the server (register, verify, login, logout, sync) say so in their
// help; everything else works offline and is pushed by the next sync.
//
// The shell command keeps one process open: unlocked vault keys stay in
// memory, and a background watcher keeps the mirror in step with the
// server while the user types.
package cli
