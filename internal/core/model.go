package core

import (
	"fmt"
	"strings"
	"time"
)

// RawMessage represents a single archived email as it was ingested.
// It is never mutated once handed to the engine
type RawMessage struct {
	MessageID          string
	From               string
	FromName           string
	To                 []string
	Cc                 []string
	Subject            string
	Body               string
	Date               time.Time
	InReplyTo          []string
	MailingList        string
	SenderDirectoryRef string
}

// NormalizedAddress is the canonical comparison key for an email address
type NormalizedAddress string

// InvalidAddress marks input that had no usable "@" after cleanup
const InvalidAddress NormalizedAddress = "<invalid>"

// Valid reports whether the address can be used as an identity key
func (a NormalizedAddress) Valid() bool {
	return a != InvalidAddress && a != ""
}

// EmailClass labels an address as automated, role-based or individual
type EmailClass int

const (
	ClassIndividual EmailClass = iota
	ClassRoleBased
	ClassAutomated
)

func (c EmailClass) String() string {
	switch c {
	case ClassAutomated:
		return "automated"
	case ClassRoleBased:
		return "role-based"
	default:
		return "individual"
	}
}

// ParseEmailClass converts a configuration label into an EmailClass
func ParseEmailClass(label string) (EmailClass, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "automated":
		return ClassAutomated, nil
	case "role-based", "role_based", "role":
		return ClassRoleBased, nil
	case "individual":
		return ClassIndividual, nil
	default:
		return ClassIndividual, fmt.Errorf("unknown email class: %q", label)
	}
}

// PersonID is the stable identifier issued to a resolved person
type PersonID string

// Person represents a resolved human (or role) identity
type Person struct {
	ID           PersonID
	Addresses    []NormalizedAddress
	DisplayName  string
	DirectoryRef string
	Class        EmailClass
	CreatedSeq   int
}

// Thread represents a conversation tree rooted at a message without a resolvable parent
type Thread struct {
	Root         string
	Parents      map[string]string
	Messages     []string
	Participants []PersonID
}

// InteractionType tags an edge of the interaction graph
type InteractionType string

const (
	InteractionReply           InteractionType = "reply"
	InteractionCoParticipation InteractionType = "co_participation"
)

// Edge represents an accumulated interaction between two persons
type Edge struct {
	From      PersonID
	To        PersonID
	Type      InteractionType
	Weight    int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Node represents per-person activity in the interaction graph
type Node struct {
	Person       PersonID
	MessageCount int
	FirstSeen    time.Time
	LastSeen     time.Time
	MailingLists []string
}

// ActivityDays is the number of whole days between first and last message
func (n Node) ActivityDays() int {
	if n.FirstSeen.IsZero() || n.LastSeen.IsZero() {
		return 0
	}
	return int(n.LastSeen.Sub(n.FirstSeen).Hours() / 24)
}

// IdentityConflict records two directory references claimed for the same address
// or person. The first writer is kept
type IdentityConflict struct {
	Address  NormalizedAddress
	Person   PersonID
	Kept     string
	Rejected string
}

// AmbiguousMatch records a display name that matched more than one person
type AmbiguousMatch struct {
	Address    NormalizedAddress
	Name       string
	Candidates []PersonID
	Created    PersonID
}

// AutomatedAddress is metadata kept for addresses excluded from person creation
type AutomatedAddress struct {
	Address  NormalizedAddress
	Messages int
	Names    []string
}

// SkippedRecord identifies an input record the engine refused
type SkippedRecord struct {
	MessageID string
	Reason    error
}

// Counters accumulate the degradation signals of every ingested batch
type Counters struct {
	Received          int
	Accepted          int
	SkippedMalformed  int
	Duplicates        int
	AutomatedMessages int
	ReferenceCycles   int
	OrphanedReplies   int
	Reattached        int
	IdentityConflicts int
	Merges            int
	AmbiguousMatches  int
}

// Add accumulates other into c
func (c *Counters) Add(other Counters) {
	c.Received += other.Received
	c.Accepted += other.Accepted
	c.SkippedMalformed += other.SkippedMalformed
	c.Duplicates += other.Duplicates
	c.AutomatedMessages += other.AutomatedMessages
	c.ReferenceCycles += other.ReferenceCycles
	c.OrphanedReplies += other.OrphanedReplies
	c.Reattached += other.Reattached
	c.IdentityConflicts += other.IdentityConflicts
	c.Merges += other.Merges
	c.AmbiguousMatches += other.AmbiguousMatches
}

// BatchReport summarises one call to the engine
type BatchReport struct {
	BatchID         string
	Counters        Counters
	Skipped         []SkippedRecord
	AffectedThreads []string
	Duration        time.Duration
}

// PersonRecord is the exported form of a person in a snapshot
type PersonRecord struct {
	ID           PersonID
	Addresses    []NormalizedAddress
	DisplayName  string
	DirectoryRef string
	Class        EmailClass
}

// Snapshot is a read-only export of the person registry and interaction graph
type Snapshot struct {
	TakenAt  time.Time
	Persons  []PersonRecord
	Aliases  map[PersonID]PersonID
	Nodes    []Node
	Edges    []Edge
	Counters Counters
}
