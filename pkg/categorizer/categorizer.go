// Package categorizer files transaction candidates under a spending category
// using an ordered rule list. The first matching rule wins.
package categorizer

import (
	"context"
	"strings"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
)

// CategoryLookup confirms a category id exists in the category store
type CategoryLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Categorizer struct {
	rules  []Rule
	lookup CategoryLookup
}

// New creates a categorizer. lookup may be nil to skip the store check.
func New(rules []Rule, lookup CategoryLookup) *Categorizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Categorizer{rules: rules, lookup: lookup}
}

// Categorize returns the category id of the first matching rule, or nil.
// A rule whose category is missing from the store yields nil, not an error.
func (c *Categorizer) Categorize(ctx context.Context, candidate *txndomain.TransactionCandidate) *string {
	if candidate == nil {
		return nil
	}
	rule := c.match(strings.ToLower(candidate.Vendor), strings.ToLower(candidate.Description))
	if rule == nil {
		return nil
	}

	if c.lookup != nil {
		ok, err := c.lookup.Exists(ctx, rule.CategoryID)
		if err != nil || !ok {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("category_id", rule.CategoryID).Msg("category lookup failed, leaving transaction uncategorized")
			return nil
		}
	}

	id := rule.CategoryID
	return &id
}

func (c *Categorizer) match(vendor, description string) *Rule {
	for i := range c.rules {
		for _, re := range c.rules[i].Patterns {
			if re.MatchString(vendor) || re.MatchString(description) {
				return &c.rules[i]
			}
		}
	}
	return nil
}
