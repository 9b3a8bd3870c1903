package categorizer

import (
	"fmt"
	"os"
	"regexp"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"

	"gopkg.in/yaml.v3"
)

// Rule maps a category to patterns matched against the lowercased vendor and description
type Rule struct {
	CategoryID string
	Name       string
	Patterns   []*regexp.Regexp
}

type ruleFile struct {
	Rules []struct {
		CategoryID string   `yaml:"category_id"`
		Name       string   `yaml:"name"`
		Patterns   []string `yaml:"patterns"`
	} `yaml:"rules"`
}

func mustRule(id, name string, patterns ...string) Rule {
	r := Rule{CategoryID: id, Name: name}
	for _, p := range patterns {
		r.Patterns = append(r.Patterns, regexp.MustCompile(p))
	}
	return r
}

// DefaultRules returns the built-in rule list in evaluation order
func DefaultRules() []Rule {
	return []Rule{
		mustRule(txndomain.CategoryBills, "Bills",
			`electricity|power|utility|gas|water|sewage|garbage|waste|internet|phone|cable|mortgage|rent|insurance|bill`,
			`verizon|at&t|comcast|xfinity|sprint|t-mobile|spectrum`),
		mustRule(txndomain.CategoryFoodDining, "Food & Dining",
			`restaurant|food|grocery|meal|dinner|lunch|breakfast|cafe|coffee|doordash|grubhub|ubereats|instacart`,
			`starbucks|mcdonald|chipotle|subway|taco|burger|pizza|deli|bakery`),
		mustRule(txndomain.CategoryShopping, "Shopping",
			`amazon|walmart|target|bestbuy|costco|ikea|clothing|shoes|electronics|purchase|store|shop|mall`,
			`ebay|etsy|wayfair|home depot|lowes|macys|nordstrom|purchase`),
		mustRule(txndomain.CategoryEntertainment, "Entertainment",
			`movie|theatre|theater|netflix|hulu|disney|spotify|pandora|apple music|concert|ticket|game`,
			`cinema|amc|regal|fandango|entertainment|hbo|showtime|playstation|xbox|steam`),
		mustRule(txndomain.CategoryTransportation, "Transportation",
			`uber|lyft|taxi|cab|train|subway|metro|bus|transport|fare|ticket|gas|fuel|parking`,
			`amtrak|transit|airline|flight|travel|car service|toll`),
		mustRule(txndomain.CategoryTravel, "Travel",
			`hotel|airbnb|vrbo|motel|resort|booking|expedia|kayak|airline|flight|cruise|vacation`,
			`travelocity|orbitz|priceline|tripadvisor|delta|united|american airlines|southwest`),
		mustRule(txndomain.CategoryHealth, "Health",
			`doctor|hospital|clinic|pharmacy|medicine|medical|dental|vision|healthcare|health|cvs|walgreens`,
			`therapy|prescription|rite aid|urgent care|laboratory|lab`),
		mustRule(txndomain.CategorySubscriptions, "Subscriptions",
			`subscription|membership|recurring|monthly|plan|service|netflix|hulu|disney|spotify`,
			`apple|google|microsoft|adobe|zoom|amazon prime|youtube|hbo|audible`),
	}
}

// LoadRules reads an ordered rule list from a YAML file. The file replaces
// the built-in list entirely.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules, keeping file order
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse category rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("parse category rules: no rules defined")
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, fr := range f.Rules {
		if fr.CategoryID == "" {
			return nil, fmt.Errorf("parse category rules: rule %d has no category_id", i+1)
		}
		r := Rule{CategoryID: fr.CategoryID, Name: fr.Name}
		for _, p := range fr.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("parse category rules: rule %q: %w", fr.Name, err)
			}
			r.Patterns = append(r.Patterns, re)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
