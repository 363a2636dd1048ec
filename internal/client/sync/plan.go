// Package sync reconciles the local store with the server.
//
// The server describes a vault as a snapshot: every version id it holds,
// mapped to whether that version is a tombstone. The client builds the same
// map from its store. Versions are immutable, so the set difference in each
// direction is exactly what has to move; the tombstone flags decide which
// of those moves are deletes.
package sync

import "sort"

// Plan is the plain set difference between two snapshots.
type Plan struct {
	ToPull []string
	ToPush []string
}

// Diff returns the ids only the server has (ToPull) and the ids only the
// client has (ToPush), both sorted.
func Diff(server, local map[string]bool) Plan {
	p := Plan{ToPull: []string{}, ToPush: []string{}}
	for id := range server {
		if _, ok := local[id]; !ok {
			p.ToPull = append(p.ToPull, id)
		}
	}
	for id := range local {
		if _, ok := server[id]; !ok {
			p.ToPush = append(p.ToPush, id)
		}
	}
	sort.Strings(p.ToPull)
	sort.Strings(p.ToPush)
	return p
}

type ActionKind string

const (
	// ActionUpload pushes a live version the server lacks.
	ActionUpload ActionKind = "upload"
	// ActionDownload pulls a live version the client lacks.
	ActionDownload ActionKind = "download"
	// ActionDeleteServer pushes a local tombstone.
	ActionDeleteServer ActionKind = "delete-server"
	// ActionDeleteLocal pulls a server tombstone.
	ActionDeleteLocal ActionKind = "delete-local"
	// ActionPurge compacts a group both sides already consider deleted.
	ActionPurge ActionKind = "purge"
)

type Action struct {
	Kind      ActionKind
	VersionID string
}

// PlanActions classifies every version id of either snapshot that needs
// work. Ids both sides hold as live versions need none. The result is
// sorted by version id.
func PlanActions(server, local map[string]bool) []Action {
	actions := []Action{}
	for id, deleted := range local {
		serverDeleted, onServer := server[id]
		switch {
		case !onServer && deleted:
			actions = append(actions, Action{Kind: ActionDeleteServer, VersionID: id})
		case !onServer:
			actions = append(actions, Action{Kind: ActionUpload, VersionID: id})
		case deleted && serverDeleted:
			actions = append(actions, Action{Kind: ActionPurge, VersionID: id})
		}
	}
	for id, deleted := range server {
		if _, ok := local[id]; ok {
			continue
		}
		kind := ActionDownload
		if deleted {
			kind = ActionDeleteLocal
		}
		actions = append(actions, Action{Kind: kind, VersionID: id})
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i].VersionID < actions[j].VersionID })
	return actions
}
