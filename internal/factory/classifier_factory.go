package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/classifier"
	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/identity"
)

// ClassifierFactory creates the address classifier and identity resolver
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier builds the configured rules, or the built-in set when
// none are configured
func (f *ClassifierFactory) CreateClassifier() (*classifier.Classifier, error) {
	configured, err := f.cfg.GetClassifierRules()
	if err != nil {
		return nil, err
	}
	logger := f.logger.Named("classifier")
	if len(configured) == 0 {
		return classifier.NewDefault(logger), nil
	}

	rules := make([]classifier.Rule, 0, len(configured))
	for i, rc := range configured {
		label, err := core.ParseEmailClass(rc.Label)
		if err != nil {
			return nil, fmt.Errorf("classifier rule %d: %w", i, err)
		}
		rules = append(rules, classifier.Rule{
			Label:   label,
			Field:   classifier.Field(rc.Field),
			Match:   classifier.Match(rc.Match),
			Pattern: rc.Pattern,
		})
	}
	return classifier.New(rules, logger)
}

// CreateResolver creates an identity resolver backed by a directory
func (f *ClassifierFactory) CreateResolver(dir core.DirectoryLookup) (*identity.Resolver, error) {
	mode, err := identity.ParseNameMatch(f.cfg.GetResolver().NameMatch)
	if err != nil {
		return nil, err
	}
	return identity.NewResolver(identity.Options{
		NameMatch: mode,
		Directory: dir,
	}, f.logger.Named("identity")), nil
}
