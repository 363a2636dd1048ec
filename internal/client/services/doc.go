// Package services holds the client's application services. They sit
// between the CLI and the local store: every write lands in SQLite first,
// marks its vault dirty and is announced on the event bus so a running
// watcher can push it. The server is contacted directly only for
// authentication and for chunks missing from the local cache.
package services
