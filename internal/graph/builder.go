package graph

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/core"
)

// AuthorIndex tells the builder who wrote a message
type AuthorIndex interface {
	// Author returns the resolved person, date and mailing list of a message.
	// ok is false for unknown messages and for senders without a person.
	Author(messageID string) (person core.PersonID, date time.Time, list string, ok bool)
}

// AuthorFunc adapts a plain function to AuthorIndex
type AuthorFunc func(messageID string) (core.PersonID, time.Time, string, bool)

// Author calls f(messageID)
func (f AuthorFunc) Author(messageID string) (core.PersonID, time.Time, string, bool) {
	return f(messageID)
}

// ThreadStats counts what one AddThread call contributed. Re-adding a thread
// that is already fully counted yields zero contributions
type ThreadStats struct {
	Messages     int
	Authored     int
	Authors      int
	NodeAdds     int
	ReplyAdds    int
	CoPartAdds   int
	Unattributed int
}

// Builder turns reconstructed threads into graph mutations
type Builder struct {
	graph   *Graph
	authors AuthorIndex
	logger  *zap.Logger
}

// NewBuilder creates a builder writing into g
func NewBuilder(g *Graph, authors AuthorIndex, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{graph: g, authors: authors, logger: logger}
}

// Graph returns the graph the builder writes into
func (b *Builder) Graph() *Graph {
	return b.graph
}

type authored struct {
	person core.PersonID
	date   time.Time
}

// AddThread counts a thread into the graph. It is safe to call again for a
// thread that grew, was re-attached, or was already counted
func (b *Builder) AddThread(t core.Thread) ThreadStats {
	stats := ThreadStats{Messages: len(t.Messages)}

	byMessage := make(map[string]authored, len(t.Messages))
	byPerson := make(map[core.PersonID][]string)
	for _, id := range t.Messages {
		person, date, list, ok := b.authors.Author(id)
		if !ok {
			stats.Unattributed++
			continue
		}
		stats.Authored++
		byMessage[id] = authored{person: person, date: date}
		byPerson[person] = append(byPerson[person], id)

		n := b.graph.node(person)
		if n.add(id, date) {
			stats.NodeAdds++
		}
		if list != "" {
			n.lists[list] = struct{}{}
		}
	}
	stats.Authors = len(byPerson)

	for child, parent := range t.Parents {
		c, ok := byMessage[child]
		if !ok {
			continue
		}
		p, ok := byMessage[parent]
		if !ok {
			continue
		}
		if b.graph.edge(c.person, p.person, core.InteractionReply).add(child, c.date) {
			stats.ReplyAdds++
		}
	}

	persons := make([]core.PersonID, 0, len(byPerson))
	for p := range byPerson {
		persons = append(persons, p)
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i] < persons[j] })

	for i := 0; i < len(persons); i++ {
		for j := i + 1; j < len(persons); j++ {
			x, y := persons[i], persons[j]
			forward := b.graph.edge(x, y, core.InteractionCoParticipation)
			backward := b.graph.edge(y, x, core.InteractionCoParticipation)
			for _, id := range append(append([]string(nil), byPerson[x]...), byPerson[y]...) {
				date := byMessage[id].date
				if forward.add(id, date) {
					stats.CoPartAdds++
				}
				backward.add(id, date)
			}
		}
	}

	b.logger.Debug("Added thread to graph",
		zap.String("root", t.Root),
		zap.Int("messages", stats.Messages),
		zap.Int("authors", stats.Authors),
		zap.Int("reply_adds", stats.ReplyAdds),
		zap.Int("co_participation_adds", stats.CoPartAdds))
	return stats
}
