// Package store persists engine snapshots
package store

import (
	"errors"

	"github.com/mikey/mailgraph/internal/core"
)

// ErrSnapshotNotFound is returned by Load when nothing has been saved yet
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Repository is a snapshot repository that holds resources
type Repository interface {
	core.SnapshotRepository
	Close() error
}

func cloneSnapshot(s *core.Snapshot) *core.Snapshot {
	out := &core.Snapshot{
		TakenAt:  s.TakenAt,
		Persons:  make([]core.PersonRecord, len(s.Persons)),
		Aliases:  make(map[core.PersonID]core.PersonID, len(s.Aliases)),
		Nodes:    make([]core.Node, len(s.Nodes)),
		Edges:    append([]core.Edge(nil), s.Edges...),
		Counters: s.Counters,
	}
	for i, p := range s.Persons {
		p.Addresses = append([]core.NormalizedAddress(nil), p.Addresses...)
		out.Persons[i] = p
	}
	for k, v := range s.Aliases {
		out.Aliases[k] = v
	}
	for i, n := range s.Nodes {
		n.MailingLists = append([]string(nil), n.MailingLists...)
		out.Nodes[i] = n
	}
	return out
}
