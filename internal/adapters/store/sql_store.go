package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/metrics"
)

// sqlStore holds the snapshot logic shared by the SQLite and MySQL backends.
// Both drivers accept "?" placeholders so the statements are common
type sqlStore struct {
	db      *sql.DB
	backend string
	logger  *zap.Logger
}

var snapshotTables = []string{"edges", "nodes", "aliases", "person_addresses", "persons", "snapshot_meta"}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func createSchema(db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Save replaces the stored snapshot in a single transaction
func (s *sqlStore) Save(ctx context.Context, snap *core.Snapshot) (err error) {
	defer func(start time.Time) {
		metrics.RecordStoreOperation(s.backend, "save", time.Since(start))
	}(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("Failed to roll back snapshot save", zap.Error(rbErr))
			}
		}
	}()

	for _, table := range snapshotTables {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for seq, p := range snap.Persons {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO persons (id, seq, display_name, directory_ref, class)
			VALUES (?, ?, ?, ?, ?)
		`, string(p.ID), seq, p.DisplayName, p.DirectoryRef, int(p.Class)); err != nil {
			return fmt.Errorf("failed to insert person %s: %w", p.ID, err)
		}
		for pos, addr := range p.Addresses {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO person_addresses (address, person_id, position)
				VALUES (?, ?, ?)
			`, string(addr), string(p.ID), pos); err != nil {
				return fmt.Errorf("failed to insert address %s: %w", addr, err)
			}
		}
	}

	for absorbed, survivor := range snap.Aliases {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO aliases (absorbed, survivor) VALUES (?, ?)
		`, string(absorbed), string(survivor)); err != nil {
			return fmt.Errorf("failed to insert alias %s: %w", absorbed, err)
		}
	}

	for _, n := range snap.Nodes {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (person_id, message_count, first_seen, last_seen, mailing_lists)
			VALUES (?, ?, ?, ?, ?)
		`, string(n.Person), n.MessageCount, formatTime(n.FirstSeen), formatTime(n.LastSeen),
			strings.Join(n.MailingLists, "\n")); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.Person, err)
		}
	}

	for _, e := range snap.Edges {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO edges (from_id, to_id, interaction, weight, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
		`, string(e.From), string(e.To), string(e.Type), e.Weight,
			formatTime(e.FirstSeen), formatTime(e.LastSeen)); err != nil {
			return fmt.Errorf("failed to insert edge %s->%s: %w", e.From, e.To, err)
		}
	}

	for name, value := range metaValues(snap) {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_meta (name, value) VALUES (?, ?)
		`, name, value); err != nil {
			return fmt.Errorf("failed to insert metadata %s: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Debug("Saved snapshot",
		zap.String("backend", s.backend),
		zap.Int("persons", len(snap.Persons)),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("edges", len(snap.Edges)))
	return nil
}

// Load reads the stored snapshot back
func (s *sqlStore) Load(ctx context.Context) (*core.Snapshot, error) {
	defer func(start time.Time) {
		metrics.RecordStoreOperation(s.backend, "load", time.Since(start))
	}(time.Now())

	meta, err := s.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	takenAt, ok := meta["taken_at"]
	if !ok {
		return nil, ErrSnapshotNotFound
	}

	snap := &core.Snapshot{Aliases: make(map[core.PersonID]core.PersonID)}
	if snap.TakenAt, err = parseTime(takenAt); err != nil {
		return nil, fmt.Errorf("invalid snapshot time: %w", err)
	}
	snap.Counters = countersFromMeta(meta)

	if snap.Persons, err = s.loadPersons(ctx); err != nil {
		return nil, err
	}
	if err = s.loadAliases(ctx, snap.Aliases); err != nil {
		return nil, err
	}
	if snap.Nodes, err = s.loadNodes(ctx); err != nil {
		return nil, err
	}
	if snap.Edges, err = s.loadEdges(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *sqlStore) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM snapshot_meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta[name] = value
	}
	return meta, rows.Err()
}

func (s *sqlStore) loadPersons(ctx context.Context) ([]core.PersonRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, directory_ref, class FROM persons ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	defer rows.Close()

	var persons []core.PersonRecord
	byID := make(map[core.PersonID]int)
	for rows.Next() {
		var p core.PersonRecord
		var id string
		var class int
		if err := rows.Scan(&id, &p.DisplayName, &p.DirectoryRef, &class); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		p.ID = core.PersonID(id)
		p.Class = core.EmailClass(class)
		byID[p.ID] = len(persons)
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	addrRows, err := s.db.QueryContext(ctx, `
		SELECT person_id, address FROM person_addresses ORDER BY person_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer addrRows.Close()

	for addrRows.Next() {
		var id, addr string
		if err := addrRows.Scan(&id, &addr); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		i, ok := byID[core.PersonID(id)]
		if !ok {
			s.logger.Warn("Address belongs to unknown person", zap.String("person", id))
			continue
		}
		persons[i].Addresses = append(persons[i].Addresses, core.NormalizedAddress(addr))
	}
	return persons, addrRows.Err()
}

func (s *sqlStore) loadAliases(ctx context.Context, into map[core.PersonID]core.PersonID) error {
	rows, err := s.db.QueryContext(ctx, `SELECT absorbed, survivor FROM aliases`)
	if err != nil {
		return fmt.Errorf("failed to query aliases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var absorbed, survivor string
		if err := rows.Scan(&absorbed, &survivor); err != nil {
			return fmt.Errorf("failed to scan alias: %w", err)
		}
		into[core.PersonID(absorbed)] = core.PersonID(survivor)
	}
	return rows.Err()
}

func (s *sqlStore) loadNodes(ctx context.Context) ([]core.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, message_count, first_seen, last_seen, mailing_lists
		FROM nodes ORDER BY person_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []core.Node
	for rows.Next() {
		var n core.Node
		var id, first, last, lists string
		if err := rows.Scan(&id, &n.MessageCount, &first, &last, &lists); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Person = core.PersonID(id)
		if n.FirstSeen, err = parseTime(first); err != nil {
			return nil, fmt.Errorf("invalid first_seen for %s: %w", id, err)
		}
		if n.LastSeen, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("invalid last_seen for %s: %w", id, err)
		}
		if lists != "" {
			n.MailingLists = strings.Split(lists, "\n")
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *sqlStore) loadEdges(ctx context.Context) ([]core.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, interaction, weight, first_seen, last_seen
		FROM edges ORDER BY from_id, to_id, interaction
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []core.Edge
	for rows.Next() {
		var e core.Edge
		var from, to, typ, first, last string
		if err := rows.Scan(&from, &to, &typ, &e.Weight, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.From, e.To, e.Type = core.PersonID(from), core.PersonID(to), core.InteractionType(typ)
		if e.FirstSeen, err = parseTime(first); err != nil {
			return nil, fmt.Errorf("invalid first_seen for edge %s->%s: %w", from, to, err)
		}
		if e.LastSeen, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("invalid last_seen for edge %s->%s: %w", from, to, err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", s.backend, err)
	}
	return nil
}

func metaValues(snap *core.Snapshot) map[string]string {
	c := snap.Counters
	return map[string]string{
		"taken_at":           formatTime(snap.TakenAt),
		"received":           strconv.Itoa(c.Received),
		"accepted":           strconv.Itoa(c.Accepted),
		"skipped_malformed":  strconv.Itoa(c.SkippedMalformed),
		"duplicates":         strconv.Itoa(c.Duplicates),
		"automated_messages": strconv.Itoa(c.AutomatedMessages),
		"reference_cycles":   strconv.Itoa(c.ReferenceCycles),
		"orphaned_replies":   strconv.Itoa(c.OrphanedReplies),
		"reattached":         strconv.Itoa(c.Reattached),
		"identity_conflicts": strconv.Itoa(c.IdentityConflicts),
		"merges":             strconv.Itoa(c.Merges),
		"ambiguous_matches":  strconv.Itoa(c.AmbiguousMatches),
	}
}

func countersFromMeta(meta map[string]string) core.Counters {
	get := func(name string) int {
		n, _ := strconv.Atoi(meta[name])
		return n
	}
	return core.Counters{
		Received:          get("received"),
		Accepted:          get("accepted"),
		SkippedMalformed:  get("skipped_malformed"),
		Duplicates:        get("duplicates"),
		AutomatedMessages: get("automated_messages"),
		ReferenceCycles:   get("reference_cycles"),
		OrphanedReplies:   get("orphaned_replies"),
		Reattached:        get("reattached"),
		IdentityConflicts: get("identity_conflicts"),
		Merges:            get("merges"),
		AmbiguousMatches:  get("ambiguous_matches"),
	}
}
