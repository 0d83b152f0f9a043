package ports

import (
	"context"

	"github.com/mikey/mailgraph/internal/core"
)

// MessageSource yields archived messages for ingestion
type MessageSource interface {
	// Read returns every message the source can parse. Records it cannot
	// parse are skipped, not reported as errors.
	Read(ctx context.Context) ([]core.RawMessage, error)
}
