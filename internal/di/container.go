package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/adapters/store"
	"github.com/mikey/mailgraph/internal/classifier"
	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/engine"
	"github.com/mikey/mailgraph/internal/factory"
	"github.com/mikey/mailgraph/internal/identity"
	"github.com/mikey/mailgraph/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer(opts Options) (*dig.Container, error) {
	container := dig.New()

	// Register options and configuration
	if err := container.Provide(func() *Options { return &opts }); err != nil {
		return nil, err
	}
	if err := container.Provide(loadConfig); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(newLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewDirectoryFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewSourceFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register directory lookup
	if err := container.Provide(func(f *factory.DirectoryFactory) (core.DirectoryLookup, error) {
		return f.CreateDirectory()
	}); err != nil {
		return nil, err
	}

	// Register classifier and resolver
	if err := container.Provide(func(f *factory.ClassifierFactory) (*classifier.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ClassifierFactory, dir core.DirectoryLookup) (*identity.Resolver, error) {
		return f.CreateResolver(dir)
	}); err != nil {
		return nil, err
	}

	// Register engine
	if err := container.Provide(func(c *classifier.Classifier, r *identity.Resolver, logger *zap.Logger) *engine.Engine {
		return engine.New(c, r, logger.Named("engine"))
	}); err != nil {
		return nil, err
	}

	// Register snapshot repository
	if err := container.Provide(func(f *factory.StoreFactory) (store.Repository, error) {
		return f.CreateRepository()
	}); err != nil {
		return nil, err
	}

	// Register ingest and store settings for the CLI
	if err := container.Provide(func(cfg *config.Config) config.IngestConfig {
		return cfg.GetIngest()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) (config.StoreConfig, error) {
		return cfg.GetStore()
	}); err != nil {
		return nil, err
	}

	return container, nil
}
