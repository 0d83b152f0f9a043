// Package engine coordinates classification, identity resolution, threading and
// graph construction over batches of archived messages
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/address"
	"github.com/mikey/mailgraph/internal/classifier"
	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/graph"
	"github.com/mikey/mailgraph/internal/identity"
	"github.com/mikey/mailgraph/internal/metrics"
	"github.com/mikey/mailgraph/internal/threading"
)

type messageRecord struct {
	date      time.Time
	list      string
	person    core.PersonID
	hasPerson bool
}

type prepared struct {
	raw    core.RawMessage
	id     string
	refs   []string
	sender core.NormalizedAddress
	class  core.EmailClass
}

// Engine owns every piece of mutable state. IngestBatch is the single writer;
// queries may run concurrently with each other
type Engine struct {
	mu sync.RWMutex

	classifier *classifier.Classifier
	resolver   *identity.Resolver
	forest     *threading.Forest
	graph      *graph.Graph
	builder    *graph.Builder

	messages map[string]*messageRecord
	counters core.Counters
	logger   *zap.Logger
}

// New creates an engine around a classifier and a resolver
func New(c *classifier.Classifier, r *identity.Resolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		classifier: c,
		resolver:   r,
		forest:     threading.NewForest(logger.Named("threading")),
		graph:      graph.New(),
		messages:   make(map[string]*messageRecord),
		logger:     logger,
	}
	e.builder = graph.NewBuilder(e.graph, graph.AuthorFunc(e.author), logger.Named("graph"))
	return e
}

// NormalizeMessageID strips whitespace and angle brackets from a message id
func NormalizeMessageID(id string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(id), "<>"))
}

// IngestBatch validates a batch and then applies it. Bad records are skipped
// and reported; only a cancelled context rejects the batch, and it does so
// before anything is mutated
func (e *Engine) IngestBatch(ctx context.Context, batch []core.RawMessage) (*core.BatchReport, error) {
	start := time.Now()
	report := &core.BatchReport{BatchID: uuid.NewString()}

	e.mu.Lock()
	defer e.mu.Unlock()

	ready, err := e.prepare(ctx, batch, report)
	if err != nil {
		e.logger.Warn("Rejected batch",
			zap.String("batch_id", report.BatchID),
			zap.Int("records", len(batch)),
			zap.Error(err))
		return nil, fmt.Errorf("batch %s rejected: %w", report.BatchID, err)
	}

	e.apply(ready, report)

	report.Duration = time.Since(start)
	e.counters.Add(report.Counters)
	metrics.RecordBatch(report.Counters, report.Duration)

	e.logger.Info("Ingested batch",
		zap.String("batch_id", report.BatchID),
		zap.Int("received", report.Counters.Received),
		zap.Int("accepted", report.Counters.Accepted),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("threads", len(report.AffectedThreads)),
		zap.Int("merges", report.Counters.Merges),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (e *Engine) prepare(ctx context.Context, batch []core.RawMessage, report *core.BatchReport) ([]prepared, error) {
	c := &report.Counters
	c.Received = len(batch)

	inBatch := make(map[string]struct{}, len(batch))
	ready := make([]prepared, 0, len(batch))
	for _, raw := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := NormalizeMessageID(raw.MessageID)
		if id == "" {
			c.SkippedMalformed++
			report.Skipped = append(report.Skipped, core.SkippedRecord{
				Reason: fmt.Errorf("%w: missing message id", core.ErrMalformedInput),
			})
			continue
		}

		sender := address.Normalize(raw.From)
		if !sender.Valid() {
			c.SkippedMalformed++
			report.Skipped = append(report.Skipped, core.SkippedRecord{
				MessageID: id,
				Reason:    fmt.Errorf("%w: unusable sender %q", core.ErrMalformedInput, raw.From),
			})
			continue
		}

		_, seenBefore := e.messages[id]
		_, seenInBatch := inBatch[id]
		if seenBefore || seenInBatch {
			c.Duplicates++
			report.Skipped = append(report.Skipped, core.SkippedRecord{
				MessageID: id,
				Reason:    core.ErrDuplicateMessage,
			})
			continue
		}
		inBatch[id] = struct{}{}

		var refs []string
		for _, ref := range raw.InReplyTo {
			if ref = NormalizeMessageID(ref); ref != "" {
				refs = append(refs, ref)
			}
		}

		ready = append(ready, prepared{
			raw:    raw,
			id:     id,
			refs:   refs,
			sender: sender,
			class:  e.classifier.Classify(sender, raw.FromName),
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.Accepted = len(ready)
	return ready, nil
}

func (e *Engine) apply(ready []prepared, report *core.BatchReport) {
	c := &report.Counters
	conflictsBefore := len(e.resolver.Conflicts())
	ambiguousBefore := len(e.resolver.Ambiguous())

	msgs := make([]threading.Message, 0, len(ready))
	for _, p := range ready {
		rec := &messageRecord{
			date: p.raw.Date,
			list: strings.TrimSpace(p.raw.MailingList),
		}
		if p.class == core.ClassAutomated {
			c.AutomatedMessages++
		}
		rec.person, rec.hasPerson = e.resolver.Resolve(identity.Observation{
			Address:      p.sender,
			Class:        p.class,
			DisplayName:  p.raw.FromName,
			DirectoryRef: p.raw.SenderDirectoryRef,
		})
		e.messages[p.id] = rec
		msgs = append(msgs, threading.Message{ID: p.id, InReplyTo: p.refs, Date: p.raw.Date})
	}

	merges := e.resolver.DrainMerges()
	for _, m := range merges {
		e.graph.MergeNodes(m.Absorbed, m.Survivor)
	}
	c.Merges = len(merges)
	c.IdentityConflicts = len(e.resolver.Conflicts()) - conflictsBefore
	c.AmbiguousMatches = len(e.resolver.Ambiguous()) - ambiguousBefore

	res := e.forest.AddBatch(msgs)
	c.ReferenceCycles = res.Cycles
	c.OrphanedReplies = res.Orphans
	c.Reattached = res.Reattached

	for _, root := range res.AffectedRoots {
		e.builder.AddThread(e.forest.Thread(root))
	}
	report.AffectedThreads = res.AffectedRoots
}

// author resolves the current person behind a message, following merges
func (e *Engine) author(messageID string) (core.PersonID, time.Time, string, bool) {
	rec, ok := e.messages[messageID]
	if !ok || !rec.hasPerson {
		return "", time.Time{}, "", false
	}
	p, ok := e.resolver.Person(rec.person)
	if !ok {
		return "", time.Time{}, "", false
	}
	return p.ID, rec.date, rec.list, true
}

func (e *Engine) thread(root string) core.Thread {
	t := e.forest.Thread(root)
	seen := make(map[core.PersonID]struct{})
	for _, id := range t.Messages {
		person, _, _, ok := e.author(id)
		if !ok {
			continue
		}
		if _, dup := seen[person]; dup {
			continue
		}
		seen[person] = struct{}{}
		t.Participants = append(t.Participants, person)
	}
	return t
}

// Person returns a person by id; absorbed ids resolve to their survivor
func (e *Engine) Person(id core.PersonID) (core.Person, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolver.Person(id)
}

// PersonFor returns the person owning a raw address
func (e *Engine) PersonFor(raw string) (core.Person, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolver.PersonFor(address.Normalize(raw))
}

// Persons returns every surviving person in creation order
func (e *Engine) Persons() []core.Person {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolver.Persons()
}

// Graph returns a read-only copy of the interaction graph
func (e *Engine) Graph() graph.Reader {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Clone()
}

// Threads returns every thread in root registration order
func (e *Engine) Threads() []core.Thread {
	e.mu.RLock()
	defer e.mu.RUnlock()
	roots := e.forest.Roots()
	out := make([]core.Thread, 0, len(roots))
	for _, root := range roots {
		out = append(out, e.thread(root))
	}
	return out
}

// Thread returns the thread containing a message
func (e *Engine) Thread(messageID string) (core.Thread, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id := NormalizeMessageID(messageID)
	if !e.forest.Contains(id) {
		return core.Thread{}, false
	}
	return e.thread(e.forest.Root(id)), true
}

// Counters returns the totals accumulated over every batch
func (e *Engine) Counters() core.Counters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.counters
}

// Conflicts returns the directory conflicts recorded so far
func (e *Engine) Conflicts() []core.IdentityConflict {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolver.Conflicts()
}

// Ambiguous returns the name matches flagged for review
func (e *Engine) Ambiguous() []core.AmbiguousMatch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolver.Ambiguous()
}

// AutomatedAddresses returns metadata for senders that never became persons
func (e *Engine) AutomatedAddresses() []core.AutomatedAddress {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolver.AutomatedAddresses()
}

// Snapshot exports the person registry and the graph
func (e *Engine) Snapshot() *core.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	persons := e.resolver.Persons()
	records := make([]core.PersonRecord, 0, len(persons))
	for _, p := range persons {
		records = append(records, core.PersonRecord{
			ID:           p.ID,
			Addresses:    p.Addresses,
			DisplayName:  p.DisplayName,
			DirectoryRef: p.DirectoryRef,
			Class:        p.Class,
		})
	}

	return &core.Snapshot{
		TakenAt:  time.Now().UTC(),
		Persons:  records,
		Aliases:  e.resolver.Aliases(),
		Nodes:    e.graph.Nodes(),
		Edges:    e.graph.Edges(),
		Counters: e.counters,
	}
}
