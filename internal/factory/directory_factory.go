package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/adapters/directory"
	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/core"
)

// DirectoryFactory creates the person directory used by the resolver
type DirectoryFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDirectoryFactory creates a new directory factory
func NewDirectoryFactory(cfg *config.Config, logger *zap.Logger) *DirectoryFactory {
	return &DirectoryFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateDirectory creates a directory lookup based on the configuration
func (f *DirectoryFactory) CreateDirectory() (core.DirectoryLookup, error) {
	dc := f.cfg.GetDirectory()
	switch dc.Type {
	case "", "none":
		return directory.None{}, nil
	case "static":
		d, err := directory.LoadStaticDirectory(dc.StaticPath, f.logger.Named("directory"))
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported directory type: %s", dc.Type)
	}
}
