package core

import "errors"

var (
	// ErrMalformedInput is attached to records skipped for a missing id or an unusable sender
	ErrMalformedInput = errors.New("malformed input")
	// ErrReferenceCycle marks a reply link discarded because it would close a cycle
	ErrReferenceCycle = errors.New("reference cycle")
	// ErrIdentityConflict marks a directory reference rejected by first-writer-wins
	ErrIdentityConflict = errors.New("identity conflict")
	// ErrOrphanedReply marks a reply whose parent has not been seen yet
	ErrOrphanedReply = errors.New("orphaned reply")
	// ErrDuplicateMessage is attached to records whose id was already ingested
	ErrDuplicateMessage = errors.New("duplicate message")
)
