package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/metrics"
)

// MemoryStore keeps the last snapshot in memory
type MemoryStore struct {
	snapshot *core.Snapshot
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewMemoryStore creates a new in-memory snapshot store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{logger: logger}
}

// Save replaces the stored snapshot with a copy of s
func (m *MemoryStore) Save(ctx context.Context, s *core.Snapshot) error {
	defer func(start time.Time) {
		metrics.RecordStoreOperation("memory", "save", time.Since(start))
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = cloneSnapshot(s)
	m.logger.Debug("Stored snapshot in memory",
		zap.Int("persons", len(s.Persons)),
		zap.Int("edges", len(s.Edges)))
	return nil
}

// Load returns a copy of the stored snapshot
func (m *MemoryStore) Load(ctx context.Context) (*core.Snapshot, error) {
	defer func(start time.Time) {
		metrics.RecordStoreOperation("memory", "load", time.Since(start))
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return nil, ErrSnapshotNotFound
	}
	return cloneSnapshot(m.snapshot), nil
}

// Close releases nothing
func (m *MemoryStore) Close() error {
	return nil
}
