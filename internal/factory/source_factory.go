package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/adapters/source"
	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/ports"
	"github.com/mikey/mailgraph/internal/utils"
)

// SourceFactory creates message sources for archive paths
type SourceFactory struct {
	cfg    *config.Config
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, text *utils.TextProcessor, logger *zap.Logger) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		text:   text,
		logger: logger,
	}
}

// CreateSource creates a source reading paths in the configured format
func (f *SourceFactory) CreateSource(paths []string) (ports.MessageSource, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no archive paths given")
	}
	ic := f.cfg.GetIngest()
	opts := source.Options{
		Paths:       paths,
		MailingList: ic.MailingList,
		MaxBodySize: ic.MaxBodySize,
	}

	switch ic.Format {
	case "mbox":
		return source.NewMboxSource(opts, f.text, f.logger.Named("mbox")), nil
	case "json":
		return source.NewJSONSource(opts, f.text, f.logger.Named("json")), nil
	default:
		return nil, fmt.Errorf("unsupported ingest format: %s", ic.Format)
	}
}
