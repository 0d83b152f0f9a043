package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mikey/mailgraph/internal/classifier"
	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/identity"
)

var t0 = time.Date(2019, 11, 4, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts identity.Options) *Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return New(classifier.NewDefault(logger), identity.NewResolver(opts, logger), logger)
}

func message(id, from string, hours int, replyTo ...string) core.RawMessage {
	return core.RawMessage{
		MessageID:   id,
		From:        from,
		Date:        t0.Add(time.Duration(hours) * time.Hour),
		InReplyTo:   replyTo,
		MailingList: "quic",
	}
}

func ingest(t *testing.T, e *Engine, batch ...core.RawMessage) *core.BatchReport {
	t.Helper()
	report, err := e.IngestBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	return report
}

func edgeWeight(e *Engine, from, to string, typ core.InteractionType) int {
	a, okA := e.PersonFor(from)
	b, okB := e.PersonFor(to)
	if !okA || !okB {
		return 0
	}
	edge, ok := e.Graph().Edge(a.ID, b.ID, typ)
	if !ok {
		return 0
	}
	return edge.Weight
}

func TestIngestBatch_ThreeMessageScenario(t *testing.T) {
	e := newEngine(t, identity.Options{})
	report := ingest(t, e,
		message("m1", "a@x.org", 0),
		message("m2", "b@x.org", 1, "m1"),
		message("m3", "a@x.org", 2, "m2"),
	)

	if report.BatchID == "" {
		t.Error("missing batch id")
	}
	if report.Counters.Accepted != 3 || len(report.Skipped) != 0 {
		t.Errorf("counters = %+v", report.Counters)
	}
	if got := len(e.Persons()); got != 2 {
		t.Fatalf("Persons() = %d, want 2", got)
	}

	threads := e.Threads()
	if len(threads) != 1 || threads[0].Root != "m1" || len(threads[0].Messages) != 3 {
		t.Fatalf("Threads() = %+v", threads)
	}
	if len(threads[0].Participants) != 2 {
		t.Errorf("Participants = %v", threads[0].Participants)
	}

	if w := edgeWeight(e, "b@x.org", "a@x.org", core.InteractionReply); w != 1 {
		t.Errorf("REPLY b->a = %d, want 1", w)
	}
	if w := edgeWeight(e, "a@x.org", "b@x.org", core.InteractionReply); w != 1 {
		t.Errorf("REPLY a->b = %d, want 1", w)
	}
	for _, pair := range [][2]string{{"a@x.org", "b@x.org"}, {"b@x.org", "a@x.org"}} {
		if w := edgeWeight(e, pair[0], pair[1], core.InteractionCoParticipation); w != 3 {
			t.Errorf("CO_PARTICIPATION %s->%s = %d, want 3", pair[0], pair[1], w)
		}
	}
}

func TestIngestBatch_AutomatedSenderNeverPerson(t *testing.T) {
	e := newEngine(t, identity.Options{})
	report := ingest(t, e,
		message("m1", "noreply@ietf.org", 0),
		message("m2", "a@x.org", 1, "m1"),
	)

	if report.Counters.AutomatedMessages != 1 {
		t.Errorf("AutomatedMessages = %d, want 1", report.Counters.AutomatedMessages)
	}
	if _, ok := e.PersonFor("noreply@ietf.org"); ok {
		t.Error("automated sender became a person")
	}
	if len(e.Persons()) != 1 {
		t.Errorf("Persons() = %+v", e.Persons())
	}
	if n := e.Graph().NumEdges(); n != 0 {
		t.Errorf("replying to an automated message produced %d edges", n)
	}
	if auto := e.AutomatedAddresses(); len(auto) != 1 || auto[0].Address != "noreply@ietf.org" {
		t.Errorf("AutomatedAddresses() = %+v", auto)
	}
}

func TestIngestBatch_SkipsMalformedAndDuplicates(t *testing.T) {
	e := newEngine(t, identity.Options{})
	ingest(t, e, message("m1", "a@x.org", 0))

	report := ingest(t, e,
		message("", "a@x.org", 1),
		message("m2", "not an address", 1),
		message("<m1>", "b@x.org", 2),
		message("m3", "b@x.org", 3, "<m1>"),
		message("m3", "c@x.org", 4),
	)

	c := report.Counters
	if c.Received != 5 || c.Accepted != 1 || c.SkippedMalformed != 2 || c.Duplicates != 2 {
		t.Errorf("counters = %+v", c)
	}
	var malformed, duplicate int
	for _, s := range report.Skipped {
		switch {
		case errors.Is(s.Reason, core.ErrMalformedInput):
			malformed++
		case errors.Is(s.Reason, core.ErrDuplicateMessage):
			duplicate++
		}
	}
	if malformed != 2 || duplicate != 2 {
		t.Errorf("skipped reasons: malformed=%d duplicate=%d", malformed, duplicate)
	}
	if _, ok := e.PersonFor("c@x.org"); ok {
		t.Error("duplicate record created a person")
	}
	if th, ok := e.Thread("m3"); !ok || th.Root != "m1" {
		t.Errorf("Thread(m3) = %+v, %v", th, ok)
	}

	total := e.Counters()
	if total.Received != 6 || total.Accepted != 2 {
		t.Errorf("accumulated counters = %+v", total)
	}
}

func TestIngestBatch_CancelledContextRejectsAtomically(t *testing.T) {
	e := newEngine(t, identity.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.IngestBatch(ctx, []core.RawMessage{message("m1", "a@x.org", 0)})
	if !errors.Is(err, context.Canceled) || report != nil {
		t.Fatalf("IngestBatch() = %v, %v; want context.Canceled", report, err)
	}
	if len(e.Persons()) != 0 || len(e.Threads()) != 0 || e.Counters() != (core.Counters{}) {
		t.Error("rejected batch mutated the engine")
	}

	// the same batch can be retried
	ingest(t, e, message("m1", "a@x.org", 0))
	if len(e.Persons()) != 1 {
		t.Error("retry after rejection did not apply")
	}
}

func TestIngestBatch_ReattachmentMatchesSinglePass(t *testing.T) {
	m1 := message("m1", "a@x.org", 0)
	m2 := message("m2", "b@x.org", 1, "m1")
	m3 := message("m3", "a@x.org", 2, "m2")
	m4 := message("m4", "c@x.org", 3, "m2")

	single := newEngine(t, identity.Options{})
	ingest(t, single, m1, m2, m3, m4)

	staged := newEngine(t, identity.Options{})
	first := ingest(t, staged, m3, m4)
	if first.Counters.OrphanedReplies != 2 {
		t.Errorf("OrphanedReplies = %d, want 2", first.Counters.OrphanedReplies)
	}
	ingest(t, staged, m2)
	second := ingest(t, staged, m1)
	if second.Counters.Reattached != 1 {
		t.Errorf("Reattached = %d, want 1", second.Counters.Reattached)
	}

	for _, typ := range []core.InteractionType{core.InteractionReply, core.InteractionCoParticipation} {
		got, want := staged.Graph().TotalWeight(typ), single.Graph().TotalWeight(typ)
		if got != want {
			t.Errorf("%s total weight = %d, single pass = %d", typ, got, want)
		}
	}
	if len(staged.Threads()) != 1 {
		t.Errorf("Threads() = %d, want 1", len(staged.Threads()))
	}
}

func TestIngestBatch_DirectoryLinkedRegardlessOfOrder(t *testing.T) {
	for _, order := range [][]string{{"a1@x.org", "a2@y.org"}, {"a2@y.org", "a1@x.org"}} {
		e := newEngine(t, identity.Options{})
		var batch []core.RawMessage
		for i, addr := range order {
			m := message(addr+"-msg", addr, i)
			m.SenderDirectoryRef = "/person/42"
			batch = append(batch, m)
		}
		ingest(t, e, batch...)

		if len(e.Persons()) != 1 {
			t.Errorf("order %v: Persons() = %+v", order, e.Persons())
		}
	}
}

func TestIngestBatch_MergeAcrossBatchesRekeysGraph(t *testing.T) {
	dir := map[core.NormalizedAddress]string{}
	lookup := core.DirectoryFunc(func(a core.NormalizedAddress) (string, bool) {
		ref, ok := dir[a]
		return ref, ok
	})
	e := newEngine(t, identity.Options{Directory: lookup, NameMatch: identity.NameMatchOff})

	ingest(t, e,
		message("m1", "a@x.org", 0),
		message("m2", "b@x.org", 1, "m1"),
		message("m3", "a2@y.org", 2, "m2"),
	)
	a, _ := e.PersonFor("a@x.org")
	a2, _ := e.PersonFor("a2@y.org")

	dir["a@x.org"] = "/person/1"
	dir["a2@y.org"] = "/person/1"
	report := ingest(t, e,
		message("m4", "a2@y.org", 3, "m3"),
		message("m5", "a@x.org", 4, "m4"),
	)
	if report.Counters.Merges != 1 {
		t.Fatalf("Merges = %d, want 1", report.Counters.Merges)
	}

	merged, _ := e.Person(a2.ID)
	if merged.ID != a.ID {
		t.Errorf("Person(%s) = %s, want survivor %s", a2.ID, merged.ID, a.ID)
	}
	g := e.Graph()
	for _, edge := range g.Edges() {
		if edge.From == a2.ID || edge.To == a2.ID {
			t.Errorf("edge still references absorbed person: %+v", edge)
		}
	}
	if w := edgeWeight(e, "a@x.org", "b@x.org", core.InteractionReply); w != 1 {
		t.Errorf("REPLY a->b = %d, want 1", w)
	}
	if w := edgeWeight(e, "a@x.org", "a@x.org", core.InteractionReply); w != 2 {
		t.Errorf("REPLY a->a = %d, want 2", w)
	}
	node, _ := g.Node(a.ID)
	if node.MessageCount != 4 {
		t.Errorf("merged node MessageCount = %d, want 4", node.MessageCount)
	}

	snap := e.Snapshot()
	if len(snap.Persons) != 2 || snap.Aliases[a2.ID] != a.ID {
		t.Errorf("snapshot persons=%d aliases=%v", len(snap.Persons), snap.Aliases)
	}
	if snap.Counters.Merges != 1 || len(snap.Edges) != g.NumEdges() {
		t.Errorf("snapshot counters=%+v edges=%d", snap.Counters, len(snap.Edges))
	}
}

func TestEngine_ConcurrentReaders(t *testing.T) {
	e := New(classifier.NewDefault(nil), identity.NewResolver(identity.Options{}, nil), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = e.Persons()
				_ = e.Graph().NumEdges()
				_ = e.Threads()
				_ = e.Snapshot()
			}
		}()
	}

	for i := 0; i < 20; i++ {
		id := string(rune('a'+i%26)) + "-" + time.Duration(i).String()
		if _, err := e.IngestBatch(context.Background(), []core.RawMessage{
			message(id, "p"+id+"@x.org", i),
		}); err != nil {
			t.Errorf("IngestBatch() error = %v", err)
		}
	}
	wg.Wait()

	if got := len(e.Persons()); got != 20 {
		t.Errorf("Persons() = %d, want 20", got)
	}
}
