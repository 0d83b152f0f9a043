// Package threading links messages into conversation trees from their reply references
package threading

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/core"
)

// Message is the part of a message the forest needs
type Message struct {
	ID        string
	InReplyTo []string
	Date      time.Time
}

// Link is an accepted child to parent pointer
type Link struct {
	Child  string
	Parent string
}

// BatchResult describes what one AddBatch call changed
type BatchResult struct {
	AffectedRoots []string
	Cycles        int
	Orphans       int
	Reattached    int
	Links         []Link
}

// Forest holds parent pointers for every message seen so far. Only roots are
// ever re-parented, so a message is never its own ancestor
type Forest struct {
	seq      map[string]int
	order    []string
	parent   map[string]string
	children map[string][]string

	// unseen reference -> orphans waiting for it
	pending map[string][]string
	// orphan -> unseen references it waits on
	waiting map[string][]string

	logger *zap.Logger
}

// NewForest creates an empty forest
func NewForest(logger *zap.Logger) *Forest {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forest{
		seq:      make(map[string]int),
		parent:   make(map[string]string),
		children: make(map[string][]string),
		pending:  make(map[string][]string),
		waiting:  make(map[string][]string),
		logger:   logger,
	}
}

// AddBatch registers a batch of messages and links them. All ids of the batch
// are registered before any reference is resolved, so order inside a batch
// does not matter. Ids already in the forest are ignored
func (f *Forest) AddBatch(msgs []Message) BatchResult {
	var res BatchResult

	batch := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" || f.Contains(m.ID) {
			continue
		}
		f.seq[m.ID] = len(f.order)
		f.order = append(f.order, m.ID)
		batch = append(batch, m)
	}

	touched := make([]string, 0, len(batch))
	for _, m := range batch {
		touched = append(touched, m.ID)
		f.place(m, &res)
	}

	for _, m := range batch {
		touched = append(touched, f.reattach(m.ID, &res)...)
	}

	seen := make(map[string]struct{})
	for _, id := range touched {
		root := f.Root(id)
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		res.AffectedRoots = append(res.AffectedRoots, root)
	}
	sort.Slice(res.AffectedRoots, func(i, j int) bool {
		return f.seq[res.AffectedRoots[i]] < f.seq[res.AffectedRoots[j]]
	})
	return res
}

func (f *Forest) place(m Message, res *BatchResult) {
	var unseen []string
	for _, ref := range m.InReplyTo {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if !f.Contains(ref) {
			unseen = append(unseen, ref)
			continue
		}
		if ref == m.ID || f.isAncestor(m.ID, ref) {
			res.Cycles++
			f.logger.Warn("Discarded reply link that would create a cycle",
				zap.String("message_id", m.ID),
				zap.String("reference", ref),
				zap.Error(core.ErrReferenceCycle))
			return
		}
		f.link(m.ID, ref)
		res.Links = append(res.Links, Link{Child: m.ID, Parent: ref})
		return
	}

	if len(unseen) == 0 {
		return
	}
	res.Orphans++
	for _, ref := range unseen {
		f.pending[ref] = append(f.pending[ref], m.ID)
	}
	f.waiting[m.ID] = unseen
	f.logger.Debug("Orphaned reply kept as root",
		zap.String("message_id", m.ID),
		zap.Strings("missing", unseen),
		zap.Error(core.ErrOrphanedReply))
}

// reattach links orphans that were waiting for id and returns the ids it moved
func (f *Forest) reattach(id string, res *BatchResult) []string {
	orphans, ok := f.pending[id]
	if !ok {
		return nil
	}
	delete(f.pending, id)

	var moved []string
	for _, orphan := range orphans {
		if _, still := f.waiting[orphan]; !still {
			continue
		}
		if _, hasParent := f.parent[orphan]; hasParent {
			f.forget(orphan)
			continue
		}
		if orphan == id || f.isAncestor(orphan, id) {
			f.stopWaiting(orphan, id)
			res.Cycles++
			f.logger.Warn("Skipped reattachment that would create a cycle",
				zap.String("message_id", orphan),
				zap.String("reference", id),
				zap.Error(core.ErrReferenceCycle))
			continue
		}
		f.link(orphan, id)
		f.forget(orphan)
		res.Reattached++
		res.Links = append(res.Links, Link{Child: orphan, Parent: id})
		moved = append(moved, orphan)
		f.logger.Debug("Reattached orphaned reply",
			zap.String("message_id", orphan),
			zap.String("parent", id))
	}
	return moved
}

// forget drops an orphan from every pending list it is still on
func (f *Forest) forget(orphan string) {
	for _, ref := range f.waiting[orphan] {
		list := f.pending[ref]
		for i, id := range list {
			if id == orphan {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(f.pending, ref)
		} else {
			f.pending[ref] = list
		}
	}
	delete(f.waiting, orphan)
}

func (f *Forest) stopWaiting(orphan, ref string) {
	refs := f.waiting[orphan]
	for i, r := range refs {
		if r == ref {
			refs = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(f.waiting, orphan)
		return
	}
	f.waiting[orphan] = refs
}

func (f *Forest) link(child, parent string) {
	f.parent[child] = parent
	f.children[parent] = append(f.children[parent], child)
}

// isAncestor reports whether candidate is id or one of its ancestors
func (f *Forest) isAncestor(candidate, id string) bool {
	for cur := id; ; {
		if cur == candidate {
			return true
		}
		next, ok := f.parent[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

// Contains reports whether the message has been registered
func (f *Forest) Contains(id string) bool {
	_, ok := f.seq[id]
	return ok
}

// Parent returns the parent of a message
func (f *Forest) Parent(id string) (string, bool) {
	p, ok := f.parent[id]
	return p, ok
}

// Root returns the root of the thread containing id
func (f *Forest) Root(id string) string {
	for {
		p, ok := f.parent[id]
		if !ok {
			return id
		}
		id = p
	}
}

// Ancestors returns the chain of parents, nearest first
func (f *Forest) Ancestors(id string) []string {
	var out []string
	for {
		p, ok := f.parent[id]
		if !ok {
			return out
		}
		out = append(out, p)
		id = p
	}
}

// Thread returns the tree under root in breadth-first order. Participants
// are left empty; they belong to the identity layer
func (f *Forest) Thread(root string) core.Thread {
	t := core.Thread{
		Root:    root,
		Parents: make(map[string]string),
	}
	if !f.Contains(root) {
		return t
	}

	queue := []string{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		t.Messages = append(t.Messages, id)
		for _, child := range f.children[id] {
			t.Parents[child] = id
			queue = append(queue, child)
		}
	}
	return t
}

// Roots returns every thread root in registration order
func (f *Forest) Roots() []string {
	var out []string
	for _, id := range f.order {
		if _, ok := f.parent[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of registered messages
func (f *Forest) Len() int {
	return len(f.order)
}

// PendingOrphans returns the number of roots still waiting for a referenced message
func (f *Forest) PendingOrphans() int {
	return len(f.waiting)
}
