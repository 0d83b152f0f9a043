// Package identity merges normalized addresses into persons
package identity

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/address"
	"github.com/mikey/mailgraph/internal/core"
)

// NameMatch controls the display-name heuristic
type NameMatch string

const (
	NameMatchStrict NameMatch = "strict"
	NameMatchLoose  NameMatch = "loose"
	NameMatchOff    NameMatch = "off"
)

// ParseNameMatch converts a configuration value into a NameMatch
func ParseNameMatch(s string) (NameMatch, error) {
	switch NameMatch(strings.ToLower(strings.TrimSpace(s))) {
	case "", NameMatchStrict:
		return NameMatchStrict, nil
	case NameMatchLoose:
		return NameMatchLoose, nil
	case NameMatchOff:
		return NameMatchOff, nil
	default:
		return "", fmt.Errorf("unknown name match mode: %q", s)
	}
}

// Observation is one sighting of an address
type Observation struct {
	Address      core.NormalizedAddress
	Class        core.EmailClass
	DisplayName  string
	DirectoryRef string
}

// MergeEvent reports that Absorbed now forwards to Survivor
type MergeEvent struct {
	Absorbed core.PersonID
	Survivor core.PersonID
}

// Options configure a Resolver
type Options struct {
	NameMatch NameMatch
	Directory core.DirectoryLookup
}

type person struct {
	id           core.PersonID
	seq          int
	class        core.EmailClass
	addresses    []core.NormalizedAddress
	nameCounts   map[string]int
	nameOrder    []string
	best         string
	directoryRef string
}

type automatedMeta struct {
	messages int
	names    []string
}

// Resolver owns the person registry and every index over it.
// It is not safe for concurrent use; the engine serializes access
type Resolver struct {
	nameMatch NameMatch
	directory core.DirectoryLookup
	logger    *zap.Logger

	seq       int
	persons   map[core.PersonID]*person
	index     map[core.NormalizedAddress]core.PersonID
	aliases   map[core.PersonID]core.PersonID
	byRef     map[string]core.PersonID
	addrRefs  map[core.NormalizedAddress]string
	byName    map[string]map[core.PersonID]struct{}
	automated map[core.NormalizedAddress]*automatedMeta
	autoOrder []core.NormalizedAddress

	conflicts []core.IdentityConflict
	ambiguous []core.AmbiguousMatch
	pending   []MergeEvent
}

// NewResolver creates an empty resolver
func NewResolver(opts Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NameMatch == "" {
		opts.NameMatch = NameMatchStrict
	}
	return &Resolver{
		nameMatch: opts.NameMatch,
		directory: opts.Directory,
		logger:    logger,
		persons:   make(map[core.PersonID]*person),
		index:     make(map[core.NormalizedAddress]core.PersonID),
		aliases:   make(map[core.PersonID]core.PersonID),
		byRef:     make(map[string]core.PersonID),
		addrRefs:  make(map[core.NormalizedAddress]string),
		byName:    make(map[string]map[core.PersonID]struct{}),
		automated: make(map[core.NormalizedAddress]*automatedMeta),
	}
}

// Resolve returns the person for an observation. Invalid and automated
// addresses never produce a person and return false
func (r *Resolver) Resolve(obs Observation) (core.PersonID, bool) {
	if !obs.Address.Valid() {
		return "", false
	}
	if obs.Class == core.ClassAutomated {
		r.recordAutomated(obs)
		return "", false
	}

	ref := r.claimRef(obs)
	displayName := strings.TrimSpace(obs.DisplayName)

	id, mapped := r.index[obs.Address]
	if !mapped && ref != "" {
		if owner, ok := r.byRef[ref]; ok {
			id = r.Canonical(owner)
			r.attach(id, obs.Address)
			mapped = true
		}
	}
	if !mapped && obs.Class == core.ClassIndividual {
		id, mapped = r.matchName(obs.Address, displayName, ref)
	}
	if !mapped {
		id = r.newPerson(obs.Address, obs.Class)
	}

	if ref != "" {
		id = r.linkDirectory(id, obs.Address, ref)
	}
	r.observeName(id, displayName)
	return id, true
}

// claimRef applies first-writer-wins for the address and returns the
// directory reference that stays in effect
func (r *Resolver) claimRef(obs Observation) string {
	ref := strings.TrimSpace(obs.DirectoryRef)
	if ref == "" && r.directory != nil {
		if found, ok := r.directory.Lookup(obs.Address); ok {
			ref = strings.TrimSpace(found)
		}
	}
	if ref == "" {
		return r.addrRefs[obs.Address]
	}

	kept, claimed := r.addrRefs[obs.Address]
	if !claimed {
		r.addrRefs[obs.Address] = ref
		return ref
	}
	if kept != ref {
		var owner core.PersonID
		if id, ok := r.index[obs.Address]; ok {
			owner = id
		}
		r.recordConflict(core.IdentityConflict{
			Address:  obs.Address,
			Person:   owner,
			Kept:     kept,
			Rejected: ref,
		})
	}
	return kept
}

func (r *Resolver) matchName(addr core.NormalizedAddress, displayName, ref string) (core.PersonID, bool) {
	if r.nameMatch == NameMatchOff {
		return "", false
	}
	folded := address.FoldName(displayName)
	if folded == "" {
		return "", false
	}
	if r.nameMatch == NameMatchStrict && address.NameTokens(folded) < 2 {
		return "", false
	}

	var candidates []*person
	for id := range r.byName[folded] {
		p := r.persons[id]
		if p == nil || p.class != core.ClassIndividual {
			continue
		}
		if ref != "" && p.directoryRef != "" && p.directoryRef != ref {
			continue
		}
		candidates = append(candidates, p)
	}

	switch len(candidates) {
	case 0:
		return "", false
	case 1:
		r.attach(candidates[0].id, addr)
		r.logger.Debug("Attached address by display name",
			zap.String("address", string(addr)),
			zap.String("name", displayName),
			zap.String("person", string(candidates[0].id)))
		return candidates[0].id, true
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })
	ids := make([]core.PersonID, len(candidates))
	for i, p := range candidates {
		ids[i] = p.id
	}
	created := r.newPerson(addr, core.ClassIndividual)
	r.ambiguous = append(r.ambiguous, core.AmbiguousMatch{
		Address:    addr,
		Name:       displayName,
		Candidates: ids,
		Created:    created,
	})
	r.logger.Warn("Ambiguous display name match, created a new person for review",
		zap.String("address", string(addr)),
		zap.String("name", displayName),
		zap.Int("candidates", len(ids)),
		zap.String("person", string(created)))
	return created, true
}

func (r *Resolver) linkDirectory(id core.PersonID, addr core.NormalizedAddress, ref string) core.PersonID {
	p := r.persons[id]
	owner, owned := r.byRef[ref]
	if owned {
		owner = r.Canonical(owner)
	}

	switch {
	case owned && owner == id:
		return id
	case p.directoryRef != "" && p.directoryRef != ref:
		r.recordConflict(core.IdentityConflict{
			Address:  addr,
			Person:   id,
			Kept:     p.directoryRef,
			Rejected: ref,
		})
		return id
	case owned:
		return r.Merge(owner, id)
	default:
		p.directoryRef = ref
		r.byRef[ref] = id
		return id
	}
}

func (r *Resolver) newPerson(addr core.NormalizedAddress, class core.EmailClass) core.PersonID {
	r.seq++
	p := &person{
		id:         core.PersonID(fmt.Sprintf("person_%06d", r.seq)),
		seq:        r.seq,
		class:      class,
		nameCounts: make(map[string]int),
	}
	r.persons[p.id] = p
	r.attach(p.id, addr)
	r.logger.Debug("Created person",
		zap.String("person", string(p.id)),
		zap.String("address", string(addr)),
		zap.Stringer("class", class))
	return p.id
}

func (r *Resolver) attach(id core.PersonID, addr core.NormalizedAddress) {
	p := r.persons[id]
	r.index[addr] = id
	p.addresses = append(p.addresses, addr)
}

func (r *Resolver) observeName(id core.PersonID, name string) {
	if name == "" {
		return
	}
	p := r.persons[id]
	if _, seen := p.nameCounts[name]; !seen {
		p.nameOrder = append(p.nameOrder, name)
	}
	p.nameCounts[name]++
	r.refreshBestName(p)
}

// refreshBestName picks the most frequent name, ties going to the first seen,
// and keeps the name index pointing at it
func (r *Resolver) refreshBestName(p *person) {
	best, bestCount := "", 0
	for _, name := range p.nameOrder {
		if c := p.nameCounts[name]; c > bestCount {
			best, bestCount = name, c
		}
	}
	if best == p.best {
		return
	}
	r.unindexName(p)
	p.best = best
	if key := address.FoldName(best); key != "" {
		set, ok := r.byName[key]
		if !ok {
			set = make(map[core.PersonID]struct{})
			r.byName[key] = set
		}
		set[p.id] = struct{}{}
	}
}

func (r *Resolver) unindexName(p *person) {
	key := address.FoldName(p.best)
	if set, ok := r.byName[key]; ok {
		delete(set, p.id)
		if len(set) == 0 {
			delete(r.byName, key)
		}
	}
}

func (r *Resolver) recordAutomated(obs Observation) {
	meta, ok := r.automated[obs.Address]
	if !ok {
		meta = &automatedMeta{}
		r.automated[obs.Address] = meta
		r.autoOrder = append(r.autoOrder, obs.Address)
	}
	meta.messages++
	if name := strings.TrimSpace(obs.DisplayName); name != "" {
		for _, n := range meta.names {
			if n == name {
				return
			}
		}
		meta.names = append(meta.names, name)
	}
}

func (r *Resolver) recordConflict(c core.IdentityConflict) {
	r.conflicts = append(r.conflicts, c)
	r.logger.Warn("Conflicting directory reference, keeping first writer",
		zap.String("address", string(c.Address)),
		zap.String("person", string(c.Person)),
		zap.String("kept", c.Kept),
		zap.String("rejected", c.Rejected))
}

// Merge folds two persons into the one created first and returns the survivor.
// Merging persons that already share a survivor is a no-op
func (r *Resolver) Merge(a, b core.PersonID) core.PersonID {
	ca, cb := r.Canonical(a), r.Canonical(b)
	if ca == cb {
		return ca
	}
	pa, pb := r.persons[ca], r.persons[cb]
	if pa == nil || pb == nil {
		r.logger.Warn("Merge of unknown person ignored",
			zap.String("a", string(a)),
			zap.String("b", string(b)))
		if pa != nil {
			return ca
		}
		return cb
	}

	survivor, absorbed := pa, pb
	if pb.seq < pa.seq {
		survivor, absorbed = pb, pa
	}

	for _, addr := range absorbed.addresses {
		r.index[addr] = survivor.id
	}
	survivor.addresses = append(survivor.addresses, absorbed.addresses...)

	for _, name := range absorbed.nameOrder {
		if _, seen := survivor.nameCounts[name]; !seen {
			survivor.nameOrder = append(survivor.nameOrder, name)
		}
		survivor.nameCounts[name] += absorbed.nameCounts[name]
	}
	r.unindexName(absorbed)
	r.refreshBestName(survivor)

	if absorbed.class == core.ClassIndividual {
		survivor.class = core.ClassIndividual
	}

	switch {
	case absorbed.directoryRef == "":
	case survivor.directoryRef == "":
		survivor.directoryRef = absorbed.directoryRef
		r.byRef[absorbed.directoryRef] = survivor.id
	case survivor.directoryRef != absorbed.directoryRef:
		r.recordConflict(core.IdentityConflict{
			Person:   survivor.id,
			Kept:     survivor.directoryRef,
			Rejected: absorbed.directoryRef,
		})
		r.byRef[absorbed.directoryRef] = survivor.id
	}

	r.aliases[absorbed.id] = survivor.id
	delete(r.persons, absorbed.id)
	r.pending = append(r.pending, MergeEvent{Absorbed: absorbed.id, Survivor: survivor.id})

	r.logger.Info("Merged persons",
		zap.String("absorbed", string(absorbed.id)),
		zap.String("survivor", string(survivor.id)),
		zap.Int("addresses", len(survivor.addresses)))
	return survivor.id
}

// Canonical follows the alias table to the surviving id, compressing the path
func (r *Resolver) Canonical(id core.PersonID) core.PersonID {
	root := r.follow(id)
	for id != root {
		next := r.aliases[id]
		r.aliases[id] = root
		id = next
	}
	return root
}

func (r *Resolver) follow(id core.PersonID) core.PersonID {
	for {
		next, ok := r.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
}

// DrainMerges returns and clears the merges made since the last call
func (r *Resolver) DrainMerges() []MergeEvent {
	events := r.pending
	r.pending = nil
	return events
}

// Person returns a person by id, following aliases
func (r *Resolver) Person(id core.PersonID) (core.Person, bool) {
	p, ok := r.persons[r.follow(id)]
	if !ok {
		return core.Person{}, false
	}
	return p.export(), true
}

// PersonFor returns the person owning an address
func (r *Resolver) PersonFor(addr core.NormalizedAddress) (core.Person, bool) {
	id, ok := r.index[addr]
	if !ok {
		return core.Person{}, false
	}
	return r.Person(id)
}

// Persons returns every surviving person in creation order
func (r *Resolver) Persons() []core.Person {
	out := make([]core.Person, 0, len(r.persons))
	for _, p := range r.persons {
		out = append(out, p.export())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedSeq < out[j].CreatedSeq })
	return out
}

// Len returns the number of surviving persons
func (r *Resolver) Len() int {
	return len(r.persons)
}

// Aliases maps every absorbed id to its current survivor
func (r *Resolver) Aliases() map[core.PersonID]core.PersonID {
	out := make(map[core.PersonID]core.PersonID, len(r.aliases))
	for id := range r.aliases {
		out[id] = r.follow(id)
	}
	return out
}

// Conflicts returns the recorded directory conflicts
func (r *Resolver) Conflicts() []core.IdentityConflict {
	return append([]core.IdentityConflict(nil), r.conflicts...)
}

// Ambiguous returns the name matches flagged for manual review
func (r *Resolver) Ambiguous() []core.AmbiguousMatch {
	return append([]core.AmbiguousMatch(nil), r.ambiguous...)
}

// AutomatedAddresses returns metadata for addresses excluded from person creation
func (r *Resolver) AutomatedAddresses() []core.AutomatedAddress {
	out := make([]core.AutomatedAddress, 0, len(r.autoOrder))
	for _, addr := range r.autoOrder {
		meta := r.automated[addr]
		out = append(out, core.AutomatedAddress{
			Address:  addr,
			Messages: meta.messages,
			Names:    append([]string(nil), meta.names...),
		})
	}
	return out
}

// CheckIndex verifies that the address index and the person address sets agree
func (r *Resolver) CheckIndex() error {
	for id, p := range r.persons {
		if len(p.addresses) == 0 {
			return fmt.Errorf("person %s owns no address", id)
		}
		for _, addr := range p.addresses {
			if owner := r.index[addr]; owner != id {
				return fmt.Errorf("address %s of %s indexed to %q", addr, id, owner)
			}
		}
	}
	for addr, id := range r.index {
		p, ok := r.persons[id]
		if !ok {
			return fmt.Errorf("address %s indexed to absorbed or unknown person %s", addr, id)
		}
		found := false
		for _, a := range p.addresses {
			if a == addr {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("address %s indexed to %s which does not own it", addr, id)
		}
	}
	for absorbed := range r.aliases {
		if _, ok := r.persons[r.follow(absorbed)]; !ok {
			return fmt.Errorf("alias %s does not reach a surviving person", absorbed)
		}
	}
	return nil
}

func (p *person) export() core.Person {
	return core.Person{
		ID:           p.id,
		Addresses:    append([]core.NormalizedAddress(nil), p.addresses...),
		DisplayName:  p.best,
		DirectoryRef: p.directoryRef,
		Class:        p.class,
		CreatedSeq:   p.seq,
	}
}
