package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mikey/mailgraph/internal/address"
	"github.com/mikey/mailgraph/internal/core"
)

// Field selects which part of an observation a rule looks at
type Field string

const (
	FieldLocal   Field = "local"
	FieldDomain  Field = "domain"
	FieldAddress Field = "address"
	FieldName    Field = "name"
)

// Match selects how a rule compares its pattern
type Match string

const (
	MatchContains Match = "contains"
	MatchPrefix   Match = "prefix"
	MatchSuffix   Match = "suffix"
	MatchEquals   Match = "equals"
	MatchRegex    Match = "regex"
)

// Rule is one ordered (matcher, label) pair of the classification rule set
type Rule struct {
	Label   core.EmailClass
	Field   Field
	Match   Match
	Pattern string
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s %s %q", r.Label, r.Field, r.Match, r.Pattern)
}

// DefaultRules returns the built-in rule set. Automated patterns come first so
// that an address matching both lists is never turned into a person
func DefaultRules() []Rule {
	automated := func(field Field, match Match, pattern string) Rule {
		return Rule{Label: core.ClassAutomated, Field: field, Match: match, Pattern: pattern}
	}
	role := func(field Field, match Match, pattern string) Rule {
		return Rule{Label: core.ClassRoleBased, Field: field, Match: match, Pattern: pattern}
	}

	return []Rule{
		automated(FieldLocal, MatchContains, "noreply"),
		automated(FieldLocal, MatchContains, "no-reply"),
		automated(FieldLocal, MatchContains, "bounces"),
		automated(FieldLocal, MatchContains, "notification"),
		automated(FieldLocal, MatchContains, "archive"),
		automated(FieldLocal, MatchContains, "mailer-daemon"),
		automated(FieldLocal, MatchPrefix, "trac+"),
		automated(FieldAddress, MatchRegex, `^trac\+.*@tools\.ietf\.org$`),

		role(FieldLocal, MatchSuffix, "-chairs"),
		role(FieldLocal, MatchSuffix, "-ads"),
		role(FieldLocal, MatchSuffix, "-secretary"),
		role(FieldLocal, MatchSuffix, "-secretariat"),
		role(FieldLocal, MatchEquals, "chair"),
		role(FieldLocal, MatchEquals, "secretariat"),
		role(FieldLocal, MatchEquals, "iesg"),
		role(FieldLocal, MatchEquals, "iab"),
		role(FieldAddress, MatchRegex, `^ietf-.*@ietf\.org$`),
	}
}

type compiledRule struct {
	rule  Rule
	match func(string) bool
}

func compileRule(r Rule) (compiledRule, error) {
	switch r.Field {
	case FieldLocal, FieldDomain, FieldAddress, FieldName:
	default:
		return compiledRule{}, fmt.Errorf("unknown rule field %q", r.Field)
	}

	if r.Match == MatchRegex {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("compile %q: %w", r.Pattern, err)
		}
		return compiledRule{rule: r, match: re.MatchString}, nil
	}

	pattern := strings.ToLower(strings.TrimSpace(r.Pattern))
	if pattern == "" {
		return compiledRule{}, fmt.Errorf("empty pattern for %s rule", r.Match)
	}

	var fn func(string) bool
	switch r.Match {
	case MatchContains:
		fn = func(s string) bool { return strings.Contains(s, pattern) }
	case MatchPrefix:
		fn = func(s string) bool { return strings.HasPrefix(s, pattern) }
	case MatchSuffix:
		fn = func(s string) bool { return strings.HasSuffix(s, pattern) }
	case MatchEquals:
		fn = func(s string) bool { return s == pattern }
	default:
		return compiledRule{}, fmt.Errorf("unknown rule match %q", r.Match)
	}
	return compiledRule{rule: r, match: fn}, nil
}

func (c compiledRule) matches(addr core.NormalizedAddress, displayName string) bool {
	var subject string
	switch c.rule.Field {
	case FieldLocal:
		subject = address.LocalPart(addr)
	case FieldDomain:
		subject = address.Domain(addr)
	case FieldAddress:
		subject = string(addr)
	case FieldName:
		subject = strings.ToLower(strings.TrimSpace(displayName))
	}
	if subject == "" {
		return false
	}
	return c.match(subject)
}
