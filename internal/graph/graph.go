// Package graph accumulates the weighted person interaction graph
package graph

import (
	"sort"
	"time"

	"github.com/mikey/mailgraph/internal/core"
)

// Reader is the read-only query surface of the interaction graph
type Reader interface {
	Nodes() []core.Node
	Node(id core.PersonID) (core.Node, bool)
	Edges() []core.Edge
	EdgesOfType(t core.InteractionType) []core.Edge
	Edge(from, to core.PersonID, t core.InteractionType) (core.Edge, bool)
	OutEdges(id core.PersonID) []core.Edge
	InEdges(id core.PersonID) []core.Edge
	TotalWeight(t core.InteractionType) int
	NumNodes() int
	NumEdges() int
}

type edgeKey struct {
	from core.PersonID
	to   core.PersonID
	typ  core.InteractionType
}

// contributions is the set of message ids behind a node or an edge. Counting
// set members instead of increments keeps every mutation idempotent
type contributions struct {
	messages map[string]struct{}
	first    time.Time
	last     time.Time
}

func newContributions() *contributions {
	return &contributions{messages: make(map[string]struct{})}
}

func (c *contributions) add(messageID string, at time.Time) bool {
	if _, ok := c.messages[messageID]; ok {
		return false
	}
	c.messages[messageID] = struct{}{}
	c.widen(at)
	return true
}

func (c *contributions) widen(at time.Time) {
	if at.IsZero() {
		return
	}
	if c.first.IsZero() || at.Before(c.first) {
		c.first = at
	}
	if c.last.IsZero() || at.After(c.last) {
		c.last = at
	}
}

func (c *contributions) union(other *contributions) {
	for id := range other.messages {
		c.messages[id] = struct{}{}
	}
	c.widen(other.first)
	c.widen(other.last)
}

func (c *contributions) clone() *contributions {
	out := &contributions{
		messages: make(map[string]struct{}, len(c.messages)),
		first:    c.first,
		last:     c.last,
	}
	for id := range c.messages {
		out.messages[id] = struct{}{}
	}
	return out
}

type nodeState struct {
	contributions
	lists map[string]struct{}
}

// Graph is a directed multigraph over persons. It is not safe for concurrent use
type Graph struct {
	nodes map[core.PersonID]*nodeState
	edges map[edgeKey]*contributions
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[core.PersonID]*nodeState),
		edges: make(map[edgeKey]*contributions),
	}
}

func (g *Graph) node(id core.PersonID) *nodeState {
	n, ok := g.nodes[id]
	if !ok {
		n = &nodeState{
			contributions: *newContributions(),
			lists:         make(map[string]struct{}),
		}
		g.nodes[id] = n
	}
	return n
}

func (g *Graph) edge(from, to core.PersonID, t core.InteractionType) *contributions {
	key := edgeKey{from: from, to: to, typ: t}
	e, ok := g.edges[key]
	if !ok {
		e = newContributions()
		g.edges[key] = e
	}
	return e
}

// MergeNodes re-keys everything owned by absorbed onto survivor. Co-participation
// pairs that collapse onto a single person are dropped
func (g *Graph) MergeNodes(absorbed, survivor core.PersonID) {
	if absorbed == survivor {
		return
	}

	if n, ok := g.nodes[absorbed]; ok {
		s := g.node(survivor)
		s.union(&n.contributions)
		for l := range n.lists {
			s.lists[l] = struct{}{}
		}
		delete(g.nodes, absorbed)
	}

	for key, e := range g.edges {
		if key.from != absorbed && key.to != absorbed {
			continue
		}
		delete(g.edges, key)

		next := key
		if next.from == absorbed {
			next.from = survivor
		}
		if next.to == absorbed {
			next.to = survivor
		}
		if next.typ == core.InteractionCoParticipation && next.from == next.to {
			continue
		}
		g.edge(next.from, next.to, next.typ).union(e)
	}
}

// Clone returns a deep copy, used to hand out read-only views
func (g *Graph) Clone() *Graph {
	out := New()
	for id, n := range g.nodes {
		c := &nodeState{contributions: *n.clone(), lists: make(map[string]struct{}, len(n.lists))}
		for l := range n.lists {
			c.lists[l] = struct{}{}
		}
		out.nodes[id] = c
	}
	for key, e := range g.edges {
		out.edges[key] = e.clone()
	}
	return out
}

func exportNode(id core.PersonID, n *nodeState) core.Node {
	lists := make([]string, 0, len(n.lists))
	for l := range n.lists {
		lists = append(lists, l)
	}
	sort.Strings(lists)
	return core.Node{
		Person:       id,
		MessageCount: len(n.messages),
		FirstSeen:    n.first,
		LastSeen:     n.last,
		MailingLists: lists,
	}
}

func exportEdge(key edgeKey, e *contributions) core.Edge {
	return core.Edge{
		From:      key.from,
		To:        key.to,
		Type:      key.typ,
		Weight:    len(e.messages),
		FirstSeen: e.first,
		LastSeen:  e.last,
	}
}

// Nodes returns every node ordered by person id
func (g *Graph) Nodes() []core.Node {
	out := make([]core.Node, 0, len(g.nodes))
	for id, n := range g.nodes {
		out = append(out, exportNode(id, n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Person < out[j].Person })
	return out
}

// Node returns the node of a person
func (g *Graph) Node(id core.PersonID) (core.Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return core.Node{}, false
	}
	return exportNode(id, n), true
}

func (g *Graph) collect(keep func(edgeKey) bool) []core.Edge {
	var out []core.Edge
	for key, e := range g.edges {
		if keep(key) {
			out = append(out, exportEdge(key, e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Type < b.Type
	})
	return out
}

// Edges returns every edge ordered by (from, to, type)
func (g *Graph) Edges() []core.Edge {
	return g.collect(func(edgeKey) bool { return true })
}

// EdgesOfType returns the edges carrying one interaction type
func (g *Graph) EdgesOfType(t core.InteractionType) []core.Edge {
	return g.collect(func(k edgeKey) bool { return k.typ == t })
}

// Edge returns a single edge
func (g *Graph) Edge(from, to core.PersonID, t core.InteractionType) (core.Edge, bool) {
	key := edgeKey{from: from, to: to, typ: t}
	e, ok := g.edges[key]
	if !ok {
		return core.Edge{}, false
	}
	return exportEdge(key, e), true
}

// OutEdges returns the edges leaving a person
func (g *Graph) OutEdges(id core.PersonID) []core.Edge {
	return g.collect(func(k edgeKey) bool { return k.from == id })
}

// InEdges returns the edges arriving at a person
func (g *Graph) InEdges(id core.PersonID) []core.Edge {
	return g.collect(func(k edgeKey) bool { return k.to == id })
}

// TotalWeight sums the weights of every edge of a type
func (g *Graph) TotalWeight(t core.InteractionType) int {
	total := 0
	for key, e := range g.edges {
		if key.typ == t {
			total += len(e.messages)
		}
	}
	return total
}

// NumNodes returns the node count
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// NumEdges returns the edge count, counting each direction of a pair
func (g *Graph) NumEdges() int {
	return len(g.edges)
}
