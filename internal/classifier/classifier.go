// Package classifier labels normalized addresses as automated, role-based or individual
package classifier

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/core"
)

// Classifier evaluates an ordered rule list; the first matching rule wins
type Classifier struct {
	rules  []compiledRule
	logger *zap.Logger
}

// New compiles the rule set. An empty rule set classifies everything as individual
func New(rules []Rule, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		cr, err := compileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		compiled = append(compiled, cr)
	}

	logger.Debug("Initialized classifier", zap.Int("rules", len(compiled)))

	return &Classifier{
		rules:  compiled,
		logger: logger,
	}, nil
}

// NewDefault returns a classifier using DefaultRules
func NewDefault(logger *zap.Logger) *Classifier {
	c, err := New(DefaultRules(), logger)
	if err != nil {
		panic(fmt.Sprintf("default classification rules: %v", err))
	}
	return c
}

// Classify labels an address. Invalid addresses are treated as automated so that
// they can never produce a person
func (c *Classifier) Classify(addr core.NormalizedAddress, displayName string) core.EmailClass {
	if !addr.Valid() {
		return core.ClassAutomated
	}
	for _, rule := range c.rules {
		if rule.matches(addr, displayName) {
			c.logger.Debug("Classification rule matched",
				zap.String("address", string(addr)),
				zap.Stringer("rule", rule.rule))
			return rule.rule.Label
		}
	}
	return core.ClassIndividual
}

// Rules returns a copy of the configured rules in evaluation order
func (c *Classifier) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	for i, cr := range c.rules {
		rules[i] = cr.rule
	}
	return rules
}
