package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mikey/mailgraph/internal/core"
)

func printSummary(out io.Writer, snap *core.Snapshot, threads int, elapsed time.Duration) {
	c := snap.Counters
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "messages received\t%d\n", c.Received)
	fmt.Fprintf(w, "messages accepted\t%d\n", c.Accepted)
	fmt.Fprintf(w, "skipped malformed\t%d\n", c.SkippedMalformed)
	fmt.Fprintf(w, "duplicates\t%d\n", c.Duplicates)
	fmt.Fprintf(w, "automated messages\t%d\n", c.AutomatedMessages)
	fmt.Fprintf(w, "persons\t%d\n", len(snap.Persons))
	fmt.Fprintf(w, "threads\t%d\n", threads)
	fmt.Fprintf(w, "graph nodes / edges\t%d / %d\n", len(snap.Nodes), len(snap.Edges))
	fmt.Fprintf(w, "reference cycles\t%d\n", c.ReferenceCycles)
	fmt.Fprintf(w, "orphaned / reattached\t%d / %d\n", c.OrphanedReplies, c.Reattached)
	fmt.Fprintf(w, "merges\t%d\n", c.Merges)
	fmt.Fprintf(w, "identity conflicts\t%d\n", c.IdentityConflicts)
	fmt.Fprintf(w, "ambiguous name matches\t%d\n", c.AmbiguousMatches)
	fmt.Fprintf(w, "elapsed\t%s\n", elapsed.Round(time.Millisecond))
	w.Flush()
}

// personLabel shows the display name and first address of a person
func personLabel(byID map[core.PersonID]core.PersonRecord, id core.PersonID) string {
	p, ok := byID[id]
	if !ok {
		return string(id)
	}
	var addr string
	if len(p.Addresses) > 0 {
		addr = string(p.Addresses[0])
	}
	switch {
	case p.DisplayName != "" && addr != "":
		return fmt.Sprintf("%s <%s>", p.DisplayName, addr)
	case addr != "":
		return addr
	default:
		return string(id)
	}
}

func indexPersons(snap *core.Snapshot) map[core.PersonID]core.PersonRecord {
	byID := make(map[core.PersonID]core.PersonRecord, len(snap.Persons))
	for _, p := range snap.Persons {
		byID[p.ID] = p
	}
	return byID
}

func printTopPersons(out io.Writer, snap *core.Snapshot, n int) {
	nodes := append([]core.Node(nil), snap.Nodes...)
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].MessageCount != nodes[j].MessageCount {
			return nodes[i].MessageCount > nodes[j].MessageCount
		}
		return nodes[i].Person < nodes[j].Person
	})
	if n > 0 && len(nodes) > n {
		nodes = nodes[:n]
	}

	byID := indexPersons(snap)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERSON\tMESSAGES\tDAYS\tLISTS")
	for _, node := range nodes {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			personLabel(byID, node.Person),
			node.MessageCount,
			node.ActivityDays(),
			strings.Join(node.MailingLists, ","))
	}
	w.Flush()
}

func printTopReplies(out io.Writer, snap *core.Snapshot, n int) {
	var edges []core.Edge
	for _, e := range snap.Edges {
		if e.Type == core.InteractionReply {
			edges = append(edges, e)
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	if n > 0 && len(edges) > n {
		edges = edges[:n]
	}

	byID := indexPersons(snap)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FROM\tTO\tREPLIES\tLAST")
	for _, e := range edges {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			personLabel(byID, e.From),
			personLabel(byID, e.To),
			e.Weight,
			e.LastSeen.Format("2006-01-02"))
	}
	w.Flush()
}
