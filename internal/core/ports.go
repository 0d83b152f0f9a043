package core

import (
	"context"
)

// DirectoryLookup resolves an address to an external directory reference
type DirectoryLookup interface {
	// Lookup returns the directory URI for an address, if one is known
	Lookup(address NormalizedAddress) (string, bool)
}

// DirectoryFunc adapts a plain function to the DirectoryLookup interface
type DirectoryFunc func(address NormalizedAddress) (string, bool)

// Lookup calls f(address)
func (f DirectoryFunc) Lookup(address NormalizedAddress) (string, bool) {
	return f(address)
}

// SnapshotRepository defines the interface for persisting engine snapshots
type SnapshotRepository interface {
	// Save replaces the stored snapshot
	Save(ctx context.Context, snapshot *Snapshot) error

	// Load returns the last stored snapshot
	Load(ctx context.Context) (*Snapshot, error)
}
